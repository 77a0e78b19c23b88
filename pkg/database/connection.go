package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps the gorm handle season tables are read through.
type DB struct {
	*gorm.DB
}

// SeasonStoreConfig sizes the pool for season table loads. Loads are rare,
// bursty (one per season rebuild) and read six tables back to back.
type SeasonStoreConfig struct {
	DatabaseURL   string
	IsDevelopment bool

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Queries slower than this are logged as warnings; a full season scan
	// above it usually means a missing season index.
	SlowQueryThreshold time.Duration
	Logger             *logrus.Logger
}

// DefaultSeasonStoreConfig is the pool used by the roster service.
func DefaultSeasonStoreConfig(databaseURL string, isDevelopment bool) SeasonStoreConfig {
	return SeasonStoreConfig{
		DatabaseURL:        databaseURL,
		IsDevelopment:      isDevelopment,
		MaxIdleConns:       2,
		MaxOpenConns:       6,
		ConnMaxLifetime:    time.Hour,
		ConnMaxIdleTime:    10 * time.Minute,
		SlowQueryThreshold: 500 * time.Millisecond,
	}
}

// NewRosterServiceConnection opens the Postgres pool for season statistics tables.
func NewRosterServiceConnection(databaseURL string, isDevelopment bool) (*DB, error) {
	return NewSeasonStore(DefaultSeasonStoreConfig(databaseURL, isDevelopment))
}

// NewSeasonStore opens Postgres with the given pool settings.
func NewSeasonStore(config SeasonStoreConfig) (*DB, error) {
	return Open(postgres.Open(config.DatabaseURL), config)
}

// Open connects through any gorm dialector, configures the pool and pings.
func Open(dialector gorm.Dialector, config SeasonStoreConfig) (*DB, error) {
	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	logLevel := logger.Warn
	if config.IsDevelopment {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             config.SlowQueryThreshold,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to season store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping season store: %w", err)
	}

	log.WithFields(logrus.Fields{
		"dialect":         dialector.Name(),
		"max_open_conns":  config.MaxOpenConns,
		"slow_query_time": config.SlowQueryThreshold,
	}).Info("Season store connected")

	return &DB{db}, nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the pool within ctx, used by readiness probes.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("season store ping failed: %w", err)
	}
	return nil
}

func (db *DB) HealthCheck() error {
	return db.Ping(context.Background())
}
