package optimizer

import (
	"math"
)

// Calibration constants for the roster model.
const (
	PythagoreanExponent = 13.91
	MinRosterSize       = 12
	MaxRosterSize       = 15
	// SalaryFloorPct is the league minimum team spend as a share of the cap.
	SalaryFloorPct = 0.9
	// PlayTimeMultiplier scales the league baseline into the roster possession floor.
	PlayTimeMultiplier = 5.0
	// Tolerance absorbs floating point rounding in constraint sums.
	Tolerance = 1e-9
)

// PlayerAttributes is one row of the valuation output consumed by the optimizer.
type PlayerAttributes struct {
	Name        string  `json:"name"`
	CostShare   float64 `json:"cost_share"`
	OffCoeff    float64 `json:"off_coeff"`
	DefCoeff    float64 `json:"def_coeff"`
	PossPerGame float64 `json:"poss_per_game"`
}

// Finite reports whether every numeric attribute is a usable non-negative number.
func (p PlayerAttributes) Finite() bool {
	for _, v := range []float64{p.CostShare, p.OffCoeff, p.DefCoeff, p.PossPerGame} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// Constraints is the user supplied configuration for one optimization call.
type Constraints struct {
	FixedPlayers       []string `json:"fixed_players"`
	AvailablePlayers   []string `json:"available_players"`
	SalaryCapPct       float64  `json:"salary_cap_pct"`
	PlayTimeConstraint bool     `json:"play_time_constraint"`
}

type RosterPlayer struct {
	Name            string  `json:"name"`
	CostShare       float64 `json:"salary_cap_percent"`
	OffensiveRating float64 `json:"estimated_offensive_rating"`
	DefensiveRating float64 `json:"estimated_defensive_rating"`
	PossPerGame     float64 `json:"poss_per_game"`
	Fixed           bool    `json:"fixed"`
}

// Budget describes the spending limit in dollars against the displayed cap.
type Budget struct {
	SalaryCapPct  float64 `json:"salary_cap_pct"`
	CapDollars    float64 `json:"cap_dollars"`
	BudgetDollars float64 `json:"budget_dollars"`
	Difference    float64 `json:"difference"`
	Summary       string  `json:"summary"`
}

type Roster struct {
	OptimizationID   string         `json:"optimization_id"`
	Season           string         `json:"season,omitempty"`
	Players          []RosterPlayer `json:"players"`
	ExpectedWinPct   float64        `json:"expected_win_pct"`
	TotalCostShare   float64        `json:"total_cost_share"`
	TotalPossessions float64        `json:"total_possessions"`
	Budget           Budget         `json:"budget"`
	Solver           string         `json:"solver"`
	SolveTimeMs      int64          `json:"solve_time_ms"`
}
