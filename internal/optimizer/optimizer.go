package optimizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/roster-sim/pkg/logger"
)

// Request is one roster optimization call. Attributes and LeagueBaseline are
// read-only and may be shared between concurrent calls.
type Request struct {
	Season         string
	Constraints    Constraints
	Attributes     []PlayerAttributes
	LeagueBaseline float64
	Observer       Observer
}

// Optimizer builds the constraint model for a request and hands it to a Solver.
// It holds no per-call state.
type Optimizer struct {
	solver     Solver
	timeout    time.Duration
	capDollars float64
}

type Option func(*Optimizer)

// WithTimeout bounds each solve; zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(o *Optimizer) { o.timeout = d }
}

// WithDisplayCap sets the dollar cap used for the budget summary.
func WithDisplayCap(dollars float64) Option {
	return func(o *Optimizer) { o.capDollars = dollars }
}

func NewOptimizer(solver Solver, opts ...Option) *Optimizer {
	if solver == nil {
		solver = NewBranchAndBound()
	}
	o := &Optimizer{
		solver:     solver,
		capDollars: 136000000,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Optimizer) SolverName() string {
	return o.solver.Name()
}

// Validate checks a request without solving it and returns the eligible pool size.
func (o *Optimizer) Validate(req Request) (int, error) {
	p, _, err := buildProblem(req.Constraints, req.Attributes, req.LeagueBaseline)
	if err != nil {
		return 0, err
	}
	return p.Len(), nil
}

// Optimize selects the roster with the highest expected win probability.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (*Roster, error) {
	optimizationID := uuid.New().String()
	startTime := time.Now()
	log := logger.WithOptimizationContext(optimizationID, req.Season, o.solver.Name())

	problem, pool, err := buildProblem(req.Constraints, req.Attributes, req.LeagueBaseline)
	if err != nil {
		log.WithError(err).Warn("Rejected roster optimization request")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"eligible_players": problem.Len(),
		"fixed_players":    len(req.Constraints.FixedPlayers),
		"salary_cap_pct":   req.Constraints.SalaryCapPct,
		"play_time":        req.Constraints.PlayTimeConstraint,
		"min_possessions":  problem.MinPossessions,
	}).Info("Starting roster optimization")

	solveCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	obs := req.Observer
	if obs == nil {
		obs = noopObserver{}
	}

	selection, err := o.solver.Solve(solveCtx, problem, obs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTimeout, time.Since(startTime).Round(time.Millisecond))
		}
		log.WithError(err).WithField("elapsed", time.Since(startTime)).Warn("Roster optimization failed")
		return nil, err
	}

	if violations := problem.Violations(selection); len(violations) > 0 {
		return nil, fmt.Errorf("solver %s returned an invalid roster: %s", o.solver.Name(), strings.Join(violations, "; "))
	}

	fixed := make(map[string]bool, len(req.Constraints.FixedPlayers))
	for _, name := range req.Constraints.FixedPlayers {
		fixed[name] = true
	}
	roster, err := Project(selection, pool, fixed)
	if err != nil {
		if errors.Is(err, ErrEmptyRoster) {
			err = fmt.Errorf("%w: %v", ErrNumericInstability, err)
		}
		return nil, err
	}

	roster.OptimizationID = optimizationID
	roster.Season = req.Season
	roster.Solver = o.solver.Name()
	roster.Budget = NewBudget(req.Constraints.SalaryCapPct, o.capDollars)
	roster.SolveTimeMs = time.Since(startTime).Milliseconds()

	log.WithFields(logrus.Fields{
		"roster_size":      len(roster.Players),
		"expected_win_pct": roster.ExpectedWinPct,
		"total_cost_share": roster.TotalCostShare,
		"solve_time_ms":    roster.SolveTimeMs,
	}).Info("Roster optimization completed")

	return roster, nil
}
