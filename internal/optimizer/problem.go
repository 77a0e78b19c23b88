package optimizer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Observer receives the best objective value found so far. Implementations must
// return quickly; the solver does not depend on them.
type Observer interface {
	OnProgress(value float64)
}

// ProgressFunc adapts a plain function to Observer.
type ProgressFunc func(value float64)

func (f ProgressFunc) OnProgress(value float64) {
	if f != nil {
		f(value)
	}
}

type noopObserver struct{}

func (noopObserver) OnProgress(float64) {}

// Solver searches a Problem for the selection vector maximizing win probability.
// It returns ErrInfeasible when no vector satisfies the constraints and ctx.Err()
// when the context ends first.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p *Problem, obs Observer) ([]bool, error)
}

// Problem is the solver-facing form of one optimization call. Slices are indexed
// by eligible pool position.
type Problem struct {
	Added       []float64 // off_coeff * poss_per_game
	Given       []float64 // def_coeff * poss_per_game
	Cost        []float64
	Possessions []float64
	Pinned      []bool

	MinSize        int
	MaxSize        int
	SalaryFloor    float64
	SalaryCeiling  float64
	MinPossessions float64
}

// Len is the eligible pool size.
func (p *Problem) Len() int {
	return len(p.Cost)
}

// Totals returns pts_added and pts_given for a selection.
func (p *Problem) Totals(x []bool) (added, given float64) {
	for i, selected := range x {
		if selected {
			added += p.Added[i]
			given += p.Given[i]
		}
	}
	return added, given
}

// Violations lists every constraint the selection breaks; empty means feasible.
func (p *Problem) Violations(x []bool) []string {
	var out []string
	if len(x) != p.Len() {
		return []string{fmt.Sprintf("selection length %d, pool size %d", len(x), p.Len())}
	}

	count := 0
	var cost, poss float64
	for i, selected := range x {
		if selected {
			count++
			cost += p.Cost[i]
			poss += p.Possessions[i]
		} else if p.Pinned[i] {
			out = append(out, fmt.Sprintf("fixed player %d not selected", i))
		}
	}

	if count < p.MinSize || count > p.MaxSize {
		out = append(out, fmt.Sprintf("roster size %d outside [%d, %d]", count, p.MinSize, p.MaxSize))
	}
	if cost > p.SalaryCeiling+Tolerance {
		out = append(out, fmt.Sprintf("cost share %.4f above cap %.4f", cost, p.SalaryCeiling))
	}
	if cost < p.SalaryFloor-Tolerance {
		out = append(out, fmt.Sprintf("cost share %.4f below floor %.4f", cost, p.SalaryFloor))
	}
	if poss < p.MinPossessions-Tolerance {
		out = append(out, fmt.Sprintf("possessions %.2f below floor %.2f", poss, p.MinPossessions))
	}
	return out
}

// Feasible reports whether x satisfies every constraint.
func (p *Problem) Feasible(x []bool) bool {
	return len(p.Violations(x)) == 0
}

// buildProblem validates the call inputs and returns the problem together with the
// eligible pool rows it indexes.
func buildProblem(c Constraints, attributes []PlayerAttributes, baseline float64) (*Problem, []PlayerAttributes, error) {
	if math.IsNaN(c.SalaryCapPct) || c.SalaryCapPct < SalaryFloorPct {
		return nil, nil, fmt.Errorf("%w: salary cap percent %.4f is below the %.2f minimum",
			ErrInvalidConstraintConfiguration, c.SalaryCapPct, SalaryFloorPct)
	}

	index := make(map[string]int, len(attributes))
	for i, a := range attributes {
		if _, ok := index[a.Name]; !ok {
			index[a.Name] = i
		}
	}

	wanted := make(map[string]bool, len(c.FixedPlayers)+len(c.AvailablePlayers))
	fixed := make(map[string]bool, len(c.FixedPlayers))
	var missing []string
	reported := make(map[string]bool)
	for _, name := range append(append([]string{}, c.FixedPlayers...), c.AvailablePlayers...) {
		if wanted[name] || reported[name] {
			continue
		}
		if _, ok := index[name]; !ok {
			reported[name] = true
			missing = append(missing, name)
			continue
		}
		wanted[name] = true
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingPlayerData, strings.Join(missing, ", "))
	}
	for _, name := range c.FixedPlayers {
		fixed[name] = true
	}

	pool := make([]PlayerAttributes, 0, len(wanted))
	seen := make(map[string]bool, len(wanted))
	for _, a := range attributes {
		if wanted[a.Name] && !seen[a.Name] {
			seen[a.Name] = true
			pool = append(pool, a)
		}
	}

	var unstable []string
	for _, a := range pool {
		if !a.Finite() {
			unstable = append(unstable, a.Name)
		}
	}
	if len(unstable) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNumericInstability, strings.Join(unstable, ", "))
	}

	n := len(pool)
	p := &Problem{
		Added:         make([]float64, n),
		Given:         make([]float64, n),
		Cost:          make([]float64, n),
		Possessions:   make([]float64, n),
		Pinned:        make([]bool, n),
		MinSize:       MinRosterSize,
		MaxSize:       MaxRosterSize,
		SalaryFloor:   SalaryFloorPct,
		SalaryCeiling: c.SalaryCapPct,
	}
	off := make([]float64, n)
	def := make([]float64, n)
	for i, a := range pool {
		off[i] = a.OffCoeff
		def[i] = a.DefCoeff
		p.Cost[i] = a.CostShare
		p.Possessions[i] = a.PossPerGame
		p.Pinned[i] = fixed[a.Name]
	}
	floats.MulTo(p.Added, off, p.Possessions)
	floats.MulTo(p.Given, def, p.Possessions)

	if c.PlayTimeConstraint {
		if math.IsNaN(baseline) || math.IsInf(baseline, 0) || baseline < 0 {
			return nil, nil, fmt.Errorf("%w: league baseline %v", ErrNumericInstability, baseline)
		}
		p.MinPossessions = PlayTimeMultiplier * baseline
	}

	return p, pool, nil
}
