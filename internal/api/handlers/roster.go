package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/stitts-dev/roster-sim/internal/metrics"
	"github.com/stitts-dev/roster-sim/internal/optimizer"
	"github.com/stitts-dev/roster-sim/internal/season"
	"github.com/stitts-dev/roster-sim/internal/seasondata"
	"github.com/stitts-dev/roster-sim/internal/websocket"
	"github.com/stitts-dev/roster-sim/pkg/config"
	"github.com/stitts-dev/roster-sim/pkg/logger"
	"github.com/stitts-dev/roster-sim/pkg/utils"
)

// SeasonModels provides cached season models.
type SeasonModels interface {
	Model(ctx context.Context, season string) (*season.Model, error)
	Invalidate(ctx context.Context, season string) error
}

// OptimizeRequest is the body of POST /roster/optimize and /roster/validate
type OptimizeRequest struct {
	Season             string   `json:"season"`
	FixedPlayers       []string `json:"fixed_players"`
	AvailablePlayers   []string `json:"available_players"`
	UseFreeAgents      bool     `json:"use_free_agents"`
	SalaryCapPct       *float64 `json:"salary_cap_pct" binding:"required"`
	PlayTimeConstraint bool     `json:"play_time_constraint"`
	SessionID          string   `json:"session_id"`
}

// PlayerResponse is one attribute row. Undefined values are null.
type PlayerResponse struct {
	Name            string   `json:"name"`
	CostShare       *float64 `json:"salary_cap_percent"`
	OffensiveRating *float64 `json:"estimated_offensive_rating"`
	DefensiveRating *float64 `json:"estimated_defensive_rating"`
	PossPerGame     *float64 `json:"poss_per_game"`
	FreeAgent       bool     `json:"free_agent"`
}

// RosterHandler handles roster optimization endpoints
type RosterHandler struct {
	models    SeasonModels
	optimizer *optimizer.Optimizer
	wsHub     *websocket.Hub
	metrics   *metrics.Recorder
	config    *config.Config
	limiter   *rate.Limiter
	logger    *logrus.Logger
}

// NewRosterHandler creates a new roster handler
func NewRosterHandler(
	models SeasonModels,
	opt *optimizer.Optimizer,
	wsHub *websocket.Hub,
	recorder *metrics.Recorder,
	cfg *config.Config,
	logger *logrus.Logger,
) *RosterHandler {
	h := &RosterHandler{
		models:    models,
		optimizer: opt,
		wsHub:     wsHub,
		metrics:   recorder,
		config:    cfg,
		logger:    logger,
	}
	if cfg.OptimizeRateLimit > 0 {
		burst := cfg.OptimizeBurst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.OptimizeRateLimit), burst)
	}
	return h
}

// RateLimit rejects optimize calls beyond the configured rate with 429
func (h *RosterHandler) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter != nil && !h.limiter.Allow() {
			utils.SendError(c, http.StatusTooManyRequests, utils.NewAppError(utils.ErrCodeRateLimited, "Too many optimization requests, retry shortly"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *RosterHandler) seasonOrDefault(s string) string {
	if s == "" {
		return h.config.Season
	}
	return s
}

// bindRequest parses the body and loads the season model, writing the error response on failure
func (h *RosterHandler) bindRequest(c *gin.Context) (*OptimizeRequest, *season.Model, bool) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request format", err.Error())
		return nil, nil, false
	}
	req.Season = h.seasonOrDefault(req.Season)

	model, err := h.models.Model(c.Request.Context(), req.Season)
	if err != nil {
		h.sendSeasonError(c, req.Season, err)
		return nil, nil, false
	}
	return &req, model, true
}

func (h *RosterHandler) buildRequest(req *OptimizeRequest, model *season.Model) optimizer.Request {
	available := append([]string(nil), req.AvailablePlayers...)
	if req.UseFreeAgents {
		available = append(available, model.FreeAgents...)
	}
	return optimizer.Request{
		Season: model.Season,
		Constraints: optimizer.Constraints{
			FixedPlayers:       req.FixedPlayers,
			AvailablePlayers:   available,
			SalaryCapPct:       *req.SalaryCapPct,
			PlayTimeConstraint: req.PlayTimeConstraint,
		},
		Attributes:     model.Attributes,
		LeagueBaseline: model.LeagueBaseline,
	}
}

// OptimizeRoster handles roster optimization requests
func (h *RosterHandler) OptimizeRoster(c *gin.Context) {
	req, model, ok := h.bindRequest(c)
	if !ok {
		return
	}

	optReq := h.buildRequest(req, model)
	if req.SessionID != "" && h.wsHub != nil {
		optReq.Observer = h.wsHub.Observer(req.SessionID)
		h.wsHub.BroadcastToSession(req.SessionID, websocket.ProgressMessage{
			Type:    websocket.MessageStarted,
			Message: "Starting roster optimization...",
		})
	}

	startTime := time.Now()
	roster, err := h.optimizer.Optimize(c.Request.Context(), optReq)
	elapsed := time.Since(startTime)

	if err != nil {
		status, appErr, outcome := optimizationError(err)
		h.metrics.RecordOptimization(h.optimizer.SolverName(), outcome, elapsed, 0)
		if req.SessionID != "" && h.wsHub != nil {
			h.wsHub.BroadcastToSession(req.SessionID, websocket.ProgressMessage{
				Type:    websocket.MessageFailed,
				Message: appErr.Message,
			})
		}
		h.logger.WithError(err).WithFields(logrus.Fields{
			"season":  req.Season,
			"status":  status,
			"outcome": outcome,
		}).Warn("Roster optimization request failed")
		utils.SendError(c, status, appErr)
		return
	}

	h.metrics.RecordOptimization(roster.Solver, metrics.OutcomeSuccess, elapsed, roster.ExpectedWinPct)
	if req.SessionID != "" && h.wsHub != nil {
		h.wsHub.BroadcastToSession(req.SessionID, websocket.ProgressMessage{
			Type:           websocket.MessageCompleted,
			OptimizationID: roster.OptimizationID,
			ExpectedWinPct: roster.ExpectedWinPct,
			Message:        roster.Budget.Summary,
		})
	}

	utils.SendSuccess(c, roster)
}

// ValidateRoster checks a configuration without solving it
func (h *RosterHandler) ValidateRoster(c *gin.Context) {
	req, model, ok := h.bindRequest(c)
	if !ok {
		return
	}

	eligible, err := h.optimizer.Validate(h.buildRequest(req, model))
	if err != nil {
		status, appErr, _ := optimizationError(err)
		utils.SendError(c, status, appErr)
		return
	}

	utils.SendSuccess(c, gin.H{
		"valid":            true,
		"season":           model.Season,
		"eligible_players": eligible,
		"budget":           optimizer.NewBudget(*req.SalaryCapPct, float64(h.config.DisplaySalaryCap)),
	})
}

// GetPlayers returns the season's attribute table
func (h *RosterHandler) GetPlayers(c *gin.Context) {
	seasonName := c.Param("season")
	model, err := h.models.Model(c.Request.Context(), seasonName)
	if err != nil {
		h.sendSeasonError(c, seasonName, err)
		return
	}

	freeAgents := make(map[string]bool, len(model.FreeAgents))
	for _, name := range model.FreeAgents {
		freeAgents[name] = true
	}

	players := make([]PlayerResponse, 0, len(model.Attributes))
	for _, a := range model.Attributes {
		players = append(players, PlayerResponse{
			Name:            a.Name,
			CostShare:       finiteOrNil(a.CostShare),
			OffensiveRating: finiteOrNil(a.OffCoeff * 100),
			DefensiveRating: finiteOrNil(a.DefCoeff * 100),
			PossPerGame:     finiteOrNil(a.PossPerGame),
			FreeAgent:       freeAgents[a.Name],
		})
	}

	utils.SendSuccess(c, gin.H{
		"season":  model.Season,
		"players": players,
		"count":   len(players),
		"dropped": model.Report,
	})
}

// GetBaseline returns the league possessions baseline and the play time floor it implies
func (h *RosterHandler) GetBaseline(c *gin.Context) {
	seasonName := c.Param("season")
	model, err := h.models.Model(c.Request.Context(), seasonName)
	if err != nil {
		h.sendSeasonError(c, seasonName, err)
		return
	}

	utils.SendSuccess(c, gin.H{
		"season":          model.Season,
		"league_baseline": model.LeagueBaseline,
		"min_possessions": optimizer.PlayTimeMultiplier * model.LeagueBaseline,
		"built_at":        model.BuiltAt,
	})
}

// InvalidateSeason drops the cached season model
func (h *RosterHandler) InvalidateSeason(c *gin.Context) {
	seasonName := c.Param("season")
	if err := h.models.Invalidate(c.Request.Context(), seasonName); err != nil {
		logger.WithSeason(seasonName).WithError(err).Error("Failed to invalidate season cache")
		utils.SendInternalError(c, "Failed to invalidate season cache")
		return
	}

	logger.WithSeason(seasonName).Info("Season cache invalidated via API")
	utils.SendSuccess(c, gin.H{
		"season":      seasonName,
		"invalidated": true,
	})
}

func (h *RosterHandler) sendSeasonError(c *gin.Context, seasonName string, err error) {
	if errors.Is(err, seasondata.ErrSeasonNotFound) {
		utils.SendError(c, http.StatusNotFound, utils.NewAppError(utils.ErrCodeSeasonUnavailable, "No data for season "+seasonName))
		return
	}
	h.logger.WithError(err).WithField("season", seasonName).Error("Failed to load season model")
	utils.SendError(c, http.StatusInternalServerError, utils.NewAppError(utils.ErrCodeSeasonUnavailable, "Failed to load season data", err.Error()))
}

// optimizationError maps optimizer failures to an HTTP status, error body and metrics outcome
func optimizationError(err error) (int, *utils.AppError, string) {
	switch {
	case errors.Is(err, optimizer.ErrInvalidConstraintConfiguration):
		return http.StatusBadRequest, utils.NewAppError(utils.ErrCodeInvalidConstraints, "Invalid constraint configuration", err.Error()), metrics.OutcomeInvalid
	case errors.Is(err, optimizer.ErrMissingPlayerData):
		return http.StatusNotFound, utils.NewAppError(utils.ErrCodeMissingPlayerData, "Missing player data", err.Error()), metrics.OutcomeMissingPlayerData
	case errors.Is(err, optimizer.ErrInfeasible):
		return http.StatusUnprocessableEntity, utils.NewAppError(utils.ErrCodeInfeasible, "No possible roster configuration, try increasing the budget", err.Error()), metrics.OutcomeInfeasible
	case errors.Is(err, optimizer.ErrNumericInstability):
		return http.StatusInternalServerError, utils.NewAppError(utils.ErrCodeNumericInstability, "Player data produced an undefined objective", err.Error()), metrics.OutcomeNumericInstability
	case errors.Is(err, optimizer.ErrTimeout):
		return http.StatusGatewayTimeout, utils.NewAppError(utils.ErrCodeTimeout, "Optimization timed out before proving an optimal roster", err.Error()), metrics.OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, utils.NewAppError(utils.ErrCodeCancelled, "Request cancelled"), metrics.OutcomeCancelled
	default:
		return http.StatusInternalServerError, utils.NewAppError(utils.ErrCodeInternal, "Optimization failed", err.Error()), metrics.OutcomeError
	}
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
