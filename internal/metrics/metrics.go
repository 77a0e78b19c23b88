package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label keys shared by the collectors below.
const (
	LabelSolver  = "solver"
	LabelOutcome = "outcome"
	LabelResult  = "result"
	LabelMethod  = "method"
	LabelPath    = "path"
	LabelStatus  = "status"
)

// Recorder exposes roster service metrics on its own registry. A nil
// Recorder is valid and records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	optimizations   *prometheus.CounterVec
	solveSeconds    *prometheus.HistogramVec
	expectedWinPct  prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	progressUpdates prometheus.Counter
	requests        *prometheus.CounterVec
	requestSeconds  *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		optimizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_optimizations_total",
			Help: "Roster optimization calls by solver and outcome.",
		}, []string{LabelSolver, LabelOutcome}),
		solveSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roster_optimization_duration_seconds",
			Help:    "Wall clock time spent in a roster optimization call.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{LabelSolver}),
		expectedWinPct: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roster_expected_win_pct",
			Help:    "Expected win probability of returned rosters.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "season_cache_lookups_total",
			Help: "Season model cache lookups by result.",
		}, []string{LabelResult}),
		progressUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roster_progress_updates_total",
			Help: "Incumbent improvements pushed to progress subscribers.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{LabelMethod, LabelPath, LabelStatus}),
		requestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{LabelMethod, LabelPath}),
	}

	reg.MustRegister(
		r.optimizations,
		r.solveSeconds,
		r.expectedWinPct,
		r.cacheLookups,
		r.progressUpdates,
		r.requests,
		r.requestSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// RecordOptimization counts one optimize call. winPct is ignored unless outcome is "success".
func (r *Recorder) RecordOptimization(solver, outcome string, duration time.Duration, winPct float64) {
	if r == nil {
		return
	}
	r.optimizations.WithLabelValues(solver, outcome).Inc()
	r.solveSeconds.WithLabelValues(solver).Observe(duration.Seconds())
	if outcome == OutcomeSuccess {
		r.expectedWinPct.Observe(winPct)
	}
}

func (r *Recorder) RecordCacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordProgress() {
	if r == nil {
		return
	}
	r.progressUpdates.Inc()
}

func (r *Recorder) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.requestSeconds.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Outcome labels.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalid            = "invalid_constraints"
	OutcomeMissingPlayerData  = "missing_player_data"
	OutcomeInfeasible         = "infeasible"
	OutcomeNumericInstability = "numeric_instability"
	OutcomeTimeout            = "timeout"
	OutcomeCancelled          = "cancelled"
	OutcomeError              = "error"
)
