package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const serviceName = "roster-service"

// Pinger is any dependency that can report its own reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthStatus is the body of /health and /ready
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`

	Refresh map[string]interface{} `json:"refresh,omitempty"`
}

// HealthHandler handles health check endpoints for the roster service
type HealthHandler struct {
	database      Pinger
	redis         Pinger
	models        SeasonModels
	defaultSeason string
	refreshStatus func() map[string]interface{}
	logger        *logrus.Logger
}

// NewHealthHandler creates a new health handler. database and redis may be nil when not configured.
func NewHealthHandler(database, redis Pinger, models SeasonModels, defaultSeason string, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		database:      database,
		redis:         redis,
		models:        models,
		defaultSeason: defaultSeason,
		logger:        logger,
	}
}

// WithRefreshStatus reports the scheduled season refresh on /health
func (h *HealthHandler) WithRefreshStatus(fn func() map[string]interface{}) *HealthHandler {
	h.refreshStatus = fn
	return h
}

func check(ctx context.Context, p Pinger) string {
	if p == nil {
		return "not_configured"
	}
	if err := p.Ping(ctx); err != nil {
		return "failed: " + err.Error()
	}
	return "ok"
}

// GetHealth returns the basic health status
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := HealthStatus{
		Status:    "ok",
		Service:   serviceName,
		Timestamp: time.Now(),
		Checks: map[string]string{
			"database": check(c.Request.Context(), h.database),
			"redis":    check(c.Request.Context(), h.redis),
		},
	}
	if h.refreshStatus != nil {
		response.Refresh = h.refreshStatus()
	}

	// Redis is a cache tier, so losing it only degrades the service
	for _, result := range response.Checks {
		if result != "ok" && result != "not_configured" {
			response.Status = "degraded"
		}
	}

	c.JSON(http.StatusOK, response)
}

// GetReady reports ready once the default season model can be built
func (h *HealthHandler) GetReady(c *gin.Context) {
	response := HealthStatus{
		Status:    "ready",
		Service:   serviceName,
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	if h.database != nil {
		response.Checks["database"] = check(c.Request.Context(), h.database)
		if response.Checks["database"] != "ok" {
			response.Status = "not_ready"
		}
	}

	if _, err := h.models.Model(c.Request.Context(), h.defaultSeason); err != nil {
		h.logger.WithError(err).WithField("season", h.defaultSeason).Warn("Readiness check could not load default season")
		response.Checks["season_data"] = "failed: " + err.Error()
		response.Status = "not_ready"
	} else {
		response.Checks["season_data"] = "ok"
	}

	statusCode := http.StatusOK
	if response.Status != "ready" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}
