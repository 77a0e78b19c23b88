package valuation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/roster-sim/internal/optimizer"
	"github.com/stitts-dev/roster-sim/internal/seasondata"
)

const (
	// DefaultSalaryCap is the 2023-24 cap used to express salaries as shares.
	DefaultSalaryCap = 123000000
	// WindowRadius is how many ranks either side of a player form the comparable window.
	WindowRadius = 3
)

var ErrNoTeamData = errors.New("no complete team possession rows")

// CostShare is a player's valuation before the performance join.
type CostShare struct {
	Player     string  `json:"player"`
	Actual     float64 `json:"actual"`
	Rank       int     `json:"rank"`
	WindowMean float64 `json:"window_mean"`
	Value      float64 `json:"value"`
}

// RankBySkill ranks players by EPM descending, keyed by accent-stripped name.
// Equal values share the best rank and the next distinct value skips ahead.
// The first row wins when a name repeats.
func RankBySkill(rows []seasondata.SkillRow) map[string]int {
	values := make([]float64, 0, len(rows))
	for _, r := range rows {
		if !math.IsNaN(r.EPM) {
			values = append(values, r.EPM)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(values)))

	ranks := make(map[string]int, len(rows))
	for _, r := range rows {
		if math.IsNaN(r.EPM) {
			continue
		}
		name := StripAccents(r.Name)
		if _, seen := ranks[name]; seen {
			continue
		}
		// first index whose value is not greater than this one
		higher := sort.Search(len(values), func(i int) bool { return values[i] <= r.EPM })
		ranks[name] = higher + 1
	}
	return ranks
}

// CostShares expresses each salary as a fraction of salaryCap.
func CostShares(salaries []seasondata.SalaryRow, salaryCap float64) ([]CostShare, error) {
	if salaryCap <= 0 || math.IsNaN(salaryCap) {
		return nil, fmt.Errorf("salary cap must be positive, got %v", salaryCap)
	}
	shares := make([]CostShare, 0, len(salaries))
	for _, s := range salaries {
		shares = append(shares, CostShare{Player: s.Player, Actual: s.Salary / salaryCap})
	}
	return shares, nil
}

// ComparableCostShares values each ranked player at the mean share of the
// players within WindowRadius ranks, never below their own share. Players
// without a rank are dropped. The result is ordered by rank.
func ComparableCostShares(shares []CostShare, ranks map[string]int) (ranked []CostShare, unranked []string) {
	ranked = make([]CostShare, 0, len(shares))
	for _, s := range shares {
		rank, ok := ranks[StripAccents(s.Player)]
		if !ok {
			unranked = append(unranked, s.Player)
			continue
		}
		s.Rank = rank
		ranked = append(ranked, s)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Rank < ranked[j].Rank })

	actual := make([]float64, len(ranked))
	for i := range ranked {
		actual[i] = ranked[i].Actual
	}
	for i := range ranked {
		lo := i - WindowRadius
		if lo < 0 {
			lo = 0
		}
		hi := i + WindowRadius + 1
		if hi > len(ranked) {
			hi = len(ranked)
		}
		ranked[i].WindowMean = stat.Mean(actual[lo:hi], nil)
		ranked[i].Value = math.Max(ranked[i].WindowMean, ranked[i].Actual)
	}
	return ranked, unranked
}

// PossessionsPerGame returns NaN when no games were played.
func PossessionsPerGame(possessions, gamesPlayed float64) float64 {
	if gamesPlayed == 0 {
		return math.NaN()
	}
	return possessions / gamesPlayed
}

// Report lists the players that fell out of the attribute table and why.
type Report struct {
	Unranked       []string `json:"unranked,omitempty"`
	MissingMetrics []string `json:"missing_metrics,omitempty"`
	MissingUsage   []string `json:"missing_usage,omitempty"`
	NoGamesPlayed  []string `json:"no_games_played,omitempty"`
}

func (r Report) Dropped() int {
	return len(r.Unranked) + len(r.MissingMetrics) + len(r.MissingUsage)
}

// BuildAttributes joins comparable cost shares with estimated ratings and
// usage to produce the optimizer's attribute table, ordered by skill rank.
func BuildAttributes(tables *seasondata.Tables, salaryCap float64, log *logrus.Entry) ([]optimizer.PlayerAttributes, Report, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	var report Report

	shares, err := CostShares(tables.Salaries, salaryCap)
	if err != nil {
		return nil, report, err
	}
	valued, unranked := ComparableCostShares(shares, RankBySkill(tables.Skill))
	report.Unranked = unranked
	for _, name := range unranked {
		log.WithFields(logrus.Fields{"player": name, "source": seasondata.SkillFile}).Debug("Dropping player without skill rank")
	}

	metrics := make(map[string]seasondata.MetricsRow, len(tables.Metrics))
	for _, m := range tables.Metrics {
		key := StripAccents(m.PlayerName)
		if _, seen := metrics[key]; !seen {
			metrics[key] = m
		}
	}
	usage := make(map[string]seasondata.UsageRow, len(tables.Usage))
	for _, u := range tables.Usage {
		key := StripAccents(u.Player)
		if _, seen := usage[key]; !seen {
			usage[key] = u
		}
	}

	attributes := make([]optimizer.PlayerAttributes, 0, len(valued))
	added := make(map[string]bool, len(valued))
	for _, c := range valued {
		if added[c.Player] {
			log.WithField("player", c.Player).Debug("Skipping duplicate salary row")
			continue
		}
		key := StripAccents(c.Player)
		m, ok := metrics[key]
		if !ok {
			report.MissingMetrics = append(report.MissingMetrics, c.Player)
			log.WithFields(logrus.Fields{"player": c.Player, "source": seasondata.MetricsFile}).Debug("Dropping player without estimated metrics")
			continue
		}
		u, ok := usage[key]
		if !ok {
			report.MissingUsage = append(report.MissingUsage, c.Player)
			log.WithFields(logrus.Fields{"player": c.Player, "source": seasondata.UsageFile}).Debug("Dropping player without usage data")
			continue
		}
		possPerGame := PossessionsPerGame(u.Possessions, u.GamesPlayed)
		if u.GamesPlayed == 0 {
			report.NoGamesPlayed = append(report.NoGamesPlayed, c.Player)
			log.WithField("player", c.Player).Warn("Player has zero games played, possessions per game undefined")
		}
		added[c.Player] = true
		attributes = append(attributes, optimizer.PlayerAttributes{
			Name:        c.Player,
			CostShare:   c.Value,
			OffCoeff:    m.OffRating / 100,
			DefCoeff:    m.DefRating / 100,
			PossPerGame: possPerGame,
		})
	}

	log.WithFields(logrus.Fields{
		"players":         len(attributes),
		"unranked":        len(report.Unranked),
		"missing_metrics": len(report.MissingMetrics),
		"missing_usage":   len(report.MissingUsage),
	}).Info("Built player attribute table")

	return attributes, report, nil
}

// LeagueBaseline is the mean possessions per game over teams with complete rows.
func LeagueBaseline(teams []seasondata.TeamRow) (float64, error) {
	perGame := make([]float64, 0, len(teams))
	for _, t := range teams {
		if !t.Complete() {
			continue
		}
		perGame = append(perGame, t.Possessions/t.GamesPlayed)
	}
	if len(perGame) == 0 {
		return 0, ErrNoTeamData
	}
	return stat.Mean(perGame, nil), nil
}
