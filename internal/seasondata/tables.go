package seasondata

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrSeasonNotFound is returned when a source has no data for the requested season.
var ErrSeasonNotFound = errors.New("season data not found")

// Source loads the raw tables a season model is built from.
type Source interface {
	Load(ctx context.Context, season string) (*Tables, error)
}

// SkillRow is one player's plus-minus estimate (EPM).
type SkillRow struct {
	NBAID int     `json:"nba_id"`
	Name  string  `json:"name"`
	EPM   float64 `json:"epm"`
}

// SalaryRow is one contract amount in dollars for the season.
type SalaryRow struct {
	Player string  `json:"player"`
	Salary float64 `json:"salary"`
}

// MetricsRow holds estimated offensive and defensive ratings per 100 possessions.
type MetricsRow struct {
	PlayerName string  `json:"player_name"`
	OffRating  float64 `json:"e_off_rating"`
	DefRating  float64 `json:"e_def_rating"`
}

// UsageRow holds total possessions and games played. GamesPlayed may be zero.
type UsageRow struct {
	Player      string  `json:"player"`
	Possessions float64 `json:"poss"`
	GamesPlayed float64 `json:"gp"`
}

// TeamRow holds a team's season possessions. Missing values are NaN.
type TeamRow struct {
	Team        string  `json:"team"`
	Possessions float64 `json:"poss"`
	GamesPlayed float64 `json:"gp"`
}

// Complete reports whether both values are present and usable for averaging.
func (r TeamRow) Complete() bool {
	return !math.IsNaN(r.Possessions) && !math.IsNaN(r.GamesPlayed) && r.GamesPlayed > 0
}

// Tables is everything a source provides for one season.
type Tables struct {
	Season     string
	Skill      []SkillRow
	Salaries   []SalaryRow
	Metrics    []MetricsRow
	Usage      []UsageRow
	Teams      []TeamRow
	FreeAgents []string
}

// ParseDollars parses values like "$12,345,678". ok is false for blank cells.
func ParseDollars(raw string) (value float64, ok bool, err error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	return ParseCount(s)
}

// ParseCount parses a number that may carry thousands separators, e.g. "7,412".
func ParseCount(raw string) (value float64, ok bool, err error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), false, nil
	}
	value, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false, err
	}
	return value, true, nil
}
