package optimizer

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// Project turns a solved selection over the eligible pool into the display roster.
// It performs no search.
func Project(selection []bool, pool []PlayerAttributes, fixed map[string]bool) (*Roster, error) {
	wp, err := WinProbability(selection, pool)
	if err != nil {
		return nil, err
	}

	roster := &Roster{
		Players:        make([]RosterPlayer, 0, MaxRosterSize),
		ExpectedWinPct: wp,
	}
	for i, selected := range selection {
		if !selected {
			continue
		}
		a := pool[i]
		roster.Players = append(roster.Players, RosterPlayer{
			Name:            a.Name,
			CostShare:       a.CostShare,
			OffensiveRating: a.OffCoeff * 100.0,
			DefensiveRating: a.DefCoeff * 100.0,
			PossPerGame:     a.PossPerGame,
			Fixed:           fixed[a.Name],
		})
		roster.TotalCostShare += a.CostShare
		roster.TotalPossessions += a.PossPerGame
	}
	return roster, nil
}

// NewBudget expresses a cap percentage in dollars against the displayed cap.
func NewBudget(salaryCapPct float64, capDollars float64) Budget {
	budget := salaryCapPct * capDollars
	diff := budget - capDollars

	var summary string
	switch {
	case diff > 0:
		summary = fmt.Sprintf("%s above salary cap", FormatDollars(diff))
	case diff == 0:
		summary = "At salary cap"
	default:
		summary = fmt.Sprintf("%s below the salary cap", FormatDollars(math.Abs(diff)))
	}

	return Budget{
		SalaryCapPct:  salaryCapPct,
		CapDollars:    capDollars,
		BudgetDollars: budget,
		Difference:    diff,
		Summary:       summary,
	}
}

// FormatDollars renders v as "$1,234,567.5"; negatives as "-$1,234".
func FormatDollars(v float64) string {
	if v < 0 {
		return "-$" + humanize.CommafWithDigits(-v, 2)
	}
	return "$" + humanize.CommafWithDigits(v, 2)
}
