package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/roster-sim/internal/api/handlers"
	"github.com/stitts-dev/roster-sim/internal/metrics"
	"github.com/stitts-dev/roster-sim/internal/optimizer"
	"github.com/stitts-dev/roster-sim/internal/season"
	"github.com/stitts-dev/roster-sim/internal/seasondata"
	"github.com/stitts-dev/roster-sim/internal/websocket"
	"github.com/stitts-dev/roster-sim/pkg/cache"
	"github.com/stitts-dev/roster-sim/pkg/config"
	"github.com/stitts-dev/roster-sim/pkg/database"
	"github.com/stitts-dev/roster-sim/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logger with service context
	structuredLogger := logger.InitLogger("", cfg.IsDevelopment())
	log := logger.WithService("roster-service")
	log.WithFields(logrus.Fields{
		"version":     "1.0.0",
		"environment": cfg.Env,
		"port":        cfg.Port,
		"data_source": cfg.DataSource,
		"solver":      cfg.Solver,
	}).Info("Starting Roster Service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	recorder := metrics.NewRecorder()

	// Season tables come from CSV files or Postgres
	var source seasondata.Source
	var dbPinger handlers.Pinger
	switch cfg.DataSource {
	case "postgres":
		db, err := database.NewRosterServiceConnection(cfg.DatabaseURL, cfg.IsDevelopment())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		dbSource := seasondata.NewDBSource(db.DB, structuredLogger)
		if err := dbSource.Migrate(); err != nil {
			log.Fatalf("Failed to migrate season tables: %v", err)
		}
		source = dbSource
		dbPinger = db
	default:
		source = seasondata.NewCSVSource(cfg.DataDir, structuredLogger)
	}

	// Redis is an optional shared tier for season models
	cacheOpts := []cache.SeasonCacheOption[*season.Model]{
		cache.WithLookupHook[*season.Model](recorder.RecordCacheLookup),
	}
	var redisPinger handlers.Pinger
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL, structuredLogger)
		if err != nil {
			log.Fatalf("Failed to configure Redis: %v", err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisStore.Ping(pingCtx); err != nil {
			log.WithError(err).Warn("Redis unavailable at startup, shared cache writes will be retried per request")
		}
		cancel()
		defer redisStore.Close()

		sharedStore := cache.NewBreakerStore(redisStore, 30*time.Second, structuredLogger)
		cacheOpts = append(cacheOpts, cache.WithRemote[*season.Model](sharedStore, cfg.CacheExpiration()))
		redisPinger = redisStore
	}
	seasonCache := cache.NewSeasonCache[*season.Model]("roster:season_model", structuredLogger, cacheOpts...)
	seasons := season.NewService(source, seasonCache, float64(cfg.SalaryCap), structuredLogger)

	var solver optimizer.Solver
	switch cfg.Solver {
	case "annealing":
		solver = optimizer.NewAnnealing(cfg.AnnealingSeed, cfg.AnnealingIterations)
	default:
		solver = optimizer.NewBranchAndBound()
	}
	opt := optimizer.NewOptimizer(solver,
		optimizer.WithTimeout(cfg.SolveTimeout()),
		optimizer.WithDisplayCap(float64(cfg.DisplaySalaryCap)),
	)

	// WebSocket hub for progress updates
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	wsHub := websocket.NewHub(structuredLogger, cfg.CorsOrigins)
	wsHub.OnSend(recorder.RecordProgress)
	go wsHub.Run(hubCtx)

	rosterHandler := handlers.NewRosterHandler(seasons, opt, wsHub, recorder, cfg, structuredLogger)
	healthHandler := handlers.NewHealthHandler(dbPinger, redisPinger, seasons, cfg.Season, structuredLogger)

	// Rebuild cached seasons on a schedule
	if cfg.RefreshSchedule != "" {
		refresher := season.NewRefresher(seasons, cfg.Season, cfg.RefreshSchedule, time.Minute, structuredLogger)
		if err := refresher.Start(); err != nil {
			log.Fatalf("Failed to start season refresher: %v", err)
		}
		defer refresher.Stop()
		healthHandler.WithRefreshStatus(refresher.Status)
	}
	router := handlers.NewRouter(rosterHandler, healthHandler, wsHub, recorder, cfg.CorsOrigins, structuredLogger)

	// Warm the default season so the first request does not pay for the build
	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := seasons.Model(warmCtx, cfg.Season); err != nil {
			log.WithError(err).WithField("season", cfg.Season).Warn("Failed to preload default season")
		}
	}()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Roster service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down roster service...")

	// Allow in-flight solves up to the configured limit to finish
	shutdownTimeout := cfg.SolveTimeout() + 5*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Roster service forced to shutdown: %v", err)
	}
	stopHub()

	log.Info("Roster service exited")
}
