package optimizer

import (
	"fmt"
	"math"
)

// WinProbability is the Pythagorean-style expected win rate of the selected players:
// added^p / (added^p + given^p), with added and given the possession-weighted
// offensive and defensive coefficients.
func WinProbability(selection []bool, attributes []PlayerAttributes) (float64, error) {
	if len(selection) != len(attributes) {
		return 0, fmt.Errorf("selection has %d entries for %d players", len(selection), len(attributes))
	}

	var added, given float64
	for i, selected := range selection {
		if !selected {
			continue
		}
		p := attributes[i]
		added += p.OffCoeff * p.PossPerGame
		given += p.DefCoeff * p.PossPerGame
	}
	return winProbability(added, given)
}

// winProbability evaluates the ratio form 1/(1+(given/added)^p) so large totals
// never overflow the power.
func winProbability(added, given float64) (float64, error) {
	if math.IsNaN(added) || math.IsNaN(given) {
		return 0, ErrNumericInstability
	}
	switch {
	case added == 0 && given == 0:
		return 0, ErrEmptyRoster
	case given == 0:
		return 1, nil
	case added == 0:
		return 0, nil
	}
	return 1 / (1 + math.Pow(given/added, PythagoreanExponent)), nil
}

// score is winProbability for search code, where undefined maps to the worst value.
func score(added, given float64) float64 {
	wp, err := winProbability(added, given)
	if err != nil {
		return -1
	}
	return wp
}
