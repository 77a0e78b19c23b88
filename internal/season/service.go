package season

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/roster-sim/internal/optimizer"
	"github.com/stitts-dev/roster-sim/internal/seasondata"
	"github.com/stitts-dev/roster-sim/internal/valuation"
	"github.com/stitts-dev/roster-sim/pkg/cache"
)

// Model is everything the optimizer needs for one season. It is read-only
// once built and shared by concurrent optimization calls.
type Model struct {
	Season         string                       `json:"season"`
	Attributes     []optimizer.PlayerAttributes `json:"attributes"`
	LeagueBaseline float64                      `json:"league_baseline"`
	FreeAgents     []string                     `json:"free_agents"`
	Report         valuation.Report             `json:"report"`
	BuiltAt        time.Time                    `json:"built_at"`
}

// PlayerNames lists the attribute table names in order.
func (m *Model) PlayerNames() []string {
	names := make([]string, len(m.Attributes))
	for i, a := range m.Attributes {
		names[i] = a.Name
	}
	return names
}

// Service turns raw season tables into cached Models.
type Service struct {
	source    seasondata.Source
	cache     *cache.SeasonCache[*Model]
	salaryCap float64
	logger    *logrus.Logger
}

func NewService(source seasondata.Source, seasonCache *cache.SeasonCache[*Model], salaryCap float64, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if seasonCache == nil {
		seasonCache = cache.NewSeasonCache[*Model]("season_model", log)
	}
	if salaryCap <= 0 {
		salaryCap = valuation.DefaultSalaryCap
	}
	return &Service{
		source:    source,
		cache:     seasonCache,
		salaryCap: salaryCap,
		logger:    log,
	}
}

// Model returns the season model, building it on first use.
func (s *Service) Model(ctx context.Context, season string) (*Model, error) {
	return s.cache.Get(ctx, season, s.build)
}

// Invalidate forces the next Model call for season to reload its tables.
func (s *Service) Invalidate(ctx context.Context, season string) error {
	return s.cache.Invalidate(ctx, season)
}

// Cached lists seasons currently held in memory.
func (s *Service) Cached() []string {
	return s.cache.Seasons()
}

func (s *Service) build(ctx context.Context, season string) (*Model, error) {
	start := time.Now()
	log := s.logger.WithField("season", season)

	tables, err := s.source.Load(ctx, season)
	if err != nil {
		return nil, err
	}

	attributes, report, err := valuation.BuildAttributes(tables, s.salaryCap, log)
	if err != nil {
		return nil, fmt.Errorf("failed to value players for %s: %w", season, err)
	}
	baseline, err := valuation.LeagueBaseline(tables.Teams)
	if err != nil {
		return nil, fmt.Errorf("failed to compute league baseline for %s: %w", season, err)
	}

	known := make(map[string]bool, len(attributes))
	for _, a := range attributes {
		known[a.Name] = true
	}
	freeAgents := make([]string, 0, len(tables.FreeAgents))
	for _, name := range tables.FreeAgents {
		if known[name] {
			freeAgents = append(freeAgents, name)
		}
	}

	model := &Model{
		Season:         season,
		Attributes:     attributes,
		LeagueBaseline: baseline,
		FreeAgents:     freeAgents,
		Report:         report,
		BuiltAt:        time.Now().UTC(),
	}

	log.WithFields(logrus.Fields{
		"players":         len(attributes),
		"league_baseline": baseline,
		"free_agents":     len(freeAgents),
		"build_time":      time.Since(start),
	}).Info("Built season model")

	return model, nil
}
