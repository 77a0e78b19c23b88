package season

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Refresher rebuilds cached season models on a cron schedule.
type Refresher struct {
	service       *Service
	defaultSeason string
	schedule      string
	timeout       time.Duration
	logger        *logrus.Logger

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
	lastRun   time.Time
	lastError error
}

// NewRefresher creates a refresher. Each run rebuilds the default season and
// every season currently cached, bounded by timeout.
func NewRefresher(service *Service, defaultSeason, schedule string, timeout time.Duration, logger *logrus.Logger) *Refresher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Refresher{
		service:       service,
		defaultSeason: defaultSeason,
		schedule:      schedule,
		timeout:       timeout,
		logger:        logger,
		cron:          cron.New(),
	}
}

// Start begins the scheduled refresh
func (r *Refresher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("season refresher is already running")
	}

	if _, err := r.cron.AddFunc(r.schedule, r.run); err != nil {
		return fmt.Errorf("failed to schedule season refresh %q: %w", r.schedule, err)
	}

	r.cron.Start()
	r.isRunning = true

	r.logger.WithField("schedule", r.schedule).Info("Season refresher started")
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = false
	r.mu.Unlock()

	<-r.cron.Stop().Done()
	r.logger.Info("Season refresher stopped")
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.Refresh(ctx)

	r.mu.Lock()
	r.lastRun = time.Now().UTC()
	r.lastError = err
	r.mu.Unlock()
}

// Refresh invalidates and rebuilds every tracked season. It keeps going past
// failures and returns the first one.
func (r *Refresher) Refresh(ctx context.Context) error {
	seasons := r.service.Cached()
	if r.defaultSeason != "" && !contains(seasons, r.defaultSeason) {
		seasons = append(seasons, r.defaultSeason)
	}

	var firstErr error
	for _, s := range seasons {
		log := r.logger.WithField("season", s)
		if err := r.service.Invalidate(ctx, s); err != nil {
			log.WithError(err).Warn("Failed to invalidate season before refresh")
		}
		if _, err := r.service.Model(ctx, s); err != nil {
			log.WithError(err).Error("Scheduled season rebuild failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("refresh %s: %w", s, err)
			}
			continue
		}
	}

	r.logger.WithField("seasons", len(seasons)).Info("Season refresh complete")
	return firstErr
}

// Status reports the schedule and the outcome of the last run
func (r *Refresher) Status() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.cron.Entries()
	nextRuns := make([]time.Time, 0, len(entries))
	for _, entry := range entries {
		nextRuns = append(nextRuns, entry.Next)
	}

	status := map[string]interface{}{
		"is_running": r.isRunning,
		"schedule":   r.schedule,
		"next_runs":  nextRuns,
		"last_run":   r.lastRun,
	}
	if r.lastError != nil {
		status["last_error"] = r.lastError.Error()
	}
	return status
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
