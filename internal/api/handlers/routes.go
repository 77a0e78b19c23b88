package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/roster-sim/internal/metrics"
	"github.com/stitts-dev/roster-sim/internal/websocket"
)

// NewRouter wires every roster service endpoint onto a fresh gin engine
func NewRouter(
	roster *RosterHandler,
	health *HealthHandler,
	wsHub *websocket.Hub,
	recorder *metrics.Recorder,
	corsOrigins []string,
	logger *logrus.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), loggingMiddleware(logger), corsMiddleware(corsOrigins), recorder.Middleware())

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/roster/optimize", roster.RateLimit(), roster.OptimizeRoster)
		apiV1.POST("/roster/validate", roster.ValidateRoster)

		seasons := apiV1.Group("/seasons/:season")
		seasons.GET("/players", roster.GetPlayers)
		seasons.GET("/baseline", roster.GetBaseline)
		seasons.DELETE("/cache", roster.InvalidateSeason)
	}

	if wsHub != nil {
		router.GET("/ws/optimization-progress/:session_id", wsHub.HandleWebSocket)
	}

	router.GET("/health", health.GetHealth)
	router.GET("/ready", health.GetReady)
	router.GET("/metrics", gin.WrapH(recorder.Handler()))

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed := allowOrigin(origins, origin); allowed != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowed)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func allowOrigin(origins []string, origin string) string {
	if len(origins) == 0 {
		return "*"
	}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

func loggingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return gin.LoggerWithWriter(logger.Writer())
}
