package optimizer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustProblem(t *testing.T, c Constraints, attrs []PlayerAttributes, baseline float64) *Problem {
	t.Helper()
	p, _, err := buildProblem(c, attrs, baseline)
	require.NoError(t, err)
	return p
}

func TestFindFeasible(t *testing.T) {
	attrs := mixedPool(18)
	p := mustProblem(t, Constraints{AvailablePlayers: names(attrs), SalaryCapPct: 1.1}, attrs, 0)

	x, err := FindFeasible(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, p.Violations(x))
}

func TestFindFeasible_PinnedOverMaxSize(t *testing.T) {
	attrs := twentyPlayerPool()
	p := mustProblem(t, Constraints{FixedPlayers: names(attrs)[:16], SalaryCapPct: 2.0}, attrs, 0)

	_, err := FindFeasible(context.Background(), p)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestProblem_Violations(t *testing.T) {
	attrs := twentyPlayerPool()
	p := mustProblem(t, Constraints{FixedPlayers: []string{"Bench 00"}, AvailablePlayers: names(attrs), SalaryCapPct: 1.0}, attrs, 0)

	x := make([]bool, p.Len())
	assert.NotEmpty(t, p.Violations(x))

	// Bench 00..11 only: 12 players at 0.6 of the cap is below the floor.
	for i := 0; i < 12; i++ {
		x[i] = true
	}
	violations := p.Violations(x)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "below floor")

	// Swap three bench players for stars: 9*0.05 + 3*0.15 = 0.9.
	x[9], x[10], x[11] = false, false, false
	x[15], x[16], x[17] = true, true, true
	assert.True(t, p.Feasible(x))

	x[0] = false
	x[12] = true
	assert.False(t, p.Feasible(x), "dropping a fixed player must be reported")

	assert.NotEmpty(t, p.Violations([]bool{true}))
}

func TestSuffixExtremes(t *testing.T) {
	values := []float64{0.3, 0.1, 0.5, 0.2}
	order := []int{0, 1, 2, 3}

	top := suffixExtremes(values, order, 2, true)
	bottom := suffixExtremes(values, order, 2, false)

	assert.InDeltaSlice(t, []float64{0, 0.5, 0.8}, top[0], 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0.1, 0.3}, bottom[0], 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0.5, 0.7}, top[2], 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0.2}, top[3], 1e-12)
	assert.Equal(t, []float64{0}, top[4])
}

func TestAnnealing_RespectsConstraints(t *testing.T) {
	attrs := mixedPool(18)
	baseline := 80.0
	c := Constraints{
		FixedPlayers:       []string{"Player 05"},
		AvailablePlayers:   names(attrs),
		SalaryCapPct:       1.15,
		PlayTimeConstraint: true,
	}

	exact, err := NewOptimizer(NewBranchAndBound()).Optimize(context.Background(), Request{
		Constraints: c, Attributes: attrs, LeagueBaseline: baseline,
	})
	require.NoError(t, err)

	roster, err := NewOptimizer(NewAnnealing(7, 5000)).Optimize(context.Background(), Request{
		Constraints: c, Attributes: attrs, LeagueBaseline: baseline,
	})
	require.NoError(t, err)
	assertRosterValid(t, roster, c, baseline)
	assert.LessOrEqual(t, roster.ExpectedWinPct, exact.ExpectedWinPct+1e-12)
	assert.Equal(t, "annealing", roster.Solver)
}

func TestAnnealing_DeterministicForSeed(t *testing.T) {
	attrs := mixedPool(18)
	c := Constraints{AvailablePlayers: names(attrs), SalaryCapPct: 1.2}

	first, err := NewOptimizer(NewAnnealing(42, 3000)).Optimize(context.Background(), Request{Constraints: c, Attributes: attrs})
	require.NoError(t, err)
	second, err := NewOptimizer(NewAnnealing(42, 3000)).Optimize(context.Background(), Request{Constraints: c, Attributes: attrs})
	require.NoError(t, err)

	assert.Equal(t, rosterNames(first), rosterNames(second))
	assert.Equal(t, first.ExpectedWinPct, second.ExpectedWinPct)
}

func TestAnnealing_Infeasible(t *testing.T) {
	attrs := twentyPlayerPool()[15:]
	_, err := NewOptimizer(NewAnnealing(1, 100)).Optimize(context.Background(), Request{
		Constraints: Constraints{AvailablePlayers: names(attrs), SalaryCapPct: 2.0},
		Attributes:  attrs,
	})
	assert.ErrorIs(t, err, ErrInfeasible)
}

// swapOnlyPool has 13 players at 8% of the cap, so with a 0.99 cap only
// 12-man rosters fit and every improvement is a one-for-one trade.
func swapOnlyPool() []PlayerAttributes {
	attrs := make([]PlayerAttributes, 13)
	for i := range attrs {
		attrs[i] = PlayerAttributes{
			Name:        fmt.Sprintf("P%02d", i),
			CostShare:   0.08,
			OffCoeff:    1.0,
			DefCoeff:    1.0,
			PossPerGame: 50,
		}
	}
	attrs[0].OffCoeff = 0.5
	attrs[12].OffCoeff = 2.0
	return attrs
}

func TestAnnealing_FindsSwapOnlyImprovement(t *testing.T) {
	attrs := swapOnlyPool()
	c := Constraints{AvailablePlayers: names(attrs), SalaryCapPct: 0.99}

	exact, err := NewOptimizer(NewBranchAndBound()).Optimize(context.Background(), Request{Constraints: c, Attributes: attrs})
	require.NoError(t, err)
	require.Len(t, exact.Players, 12)
	assert.NotContains(t, rosterNames(exact), "P00")

	roster, err := NewOptimizer(NewAnnealing(1, 20000)).Optimize(context.Background(), Request{Constraints: c, Attributes: attrs})
	require.NoError(t, err)

	assert.Equal(t, rosterNames(exact), rosterNames(roster))
	assert.InDelta(t, exact.ExpectedWinPct, roster.ExpectedWinPct, 1e-12)
}

func TestSwapPartner(t *testing.T) {
	x := []bool{true, true, false, true, false}
	free := []int{0, 1, 2, 3, 4}

	assert.Equal(t, 2, swapPartner(x, free, 0, 0))
	assert.Equal(t, 4, swapPartner(x, free, 1, 3))
	assert.Equal(t, 0, swapPartner(x, free, 2, 0))
	assert.Equal(t, -1, swapPartner([]bool{true, true}, []int{0, 1}, 0, 1))
}

func TestBuildProblem_MissingNamesReportedOnce(t *testing.T) {
	attrs := twentyPlayerPool()
	c := Constraints{
		FixedPlayers:     []string{"Nobody"},
		AvailablePlayers: append(names(attrs), "Nobody", "Ghost", "Ghost"),
		SalaryCapPct:     1.0,
	}

	_, _, err := buildProblem(c, attrs, 0)
	require.ErrorIs(t, err, ErrMissingPlayerData)
	assert.Equal(t, 1, strings.Count(err.Error(), "Nobody"))
	assert.Equal(t, 1, strings.Count(err.Error(), "Ghost"))
	assert.Contains(t, err.Error(), "Nobody, Ghost")
}

func TestBuildProblem_Production(t *testing.T) {
	attrs := []PlayerAttributes{
		{Name: "A", CostShare: 0.1, OffCoeff: 1.2, DefCoeff: 1.1, PossPerGame: 40},
		{Name: "B", CostShare: 0.2, OffCoeff: 0.9, DefCoeff: 1.0, PossPerGame: 25},
	}
	p := mustProblem(t, Constraints{FixedPlayers: []string{"B"}, AvailablePlayers: []string{"A"}, SalaryCapPct: 1.0}, attrs, 0)

	assert.InDeltaSlice(t, []float64{48, 22.5}, p.Added, 1e-12)
	assert.InDeltaSlice(t, []float64{44, 25}, p.Given, 1e-12)
	assert.Equal(t, []bool{false, true}, p.Pinned)
}
