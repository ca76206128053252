package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
)

// Options configures the connection pool
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Debug           bool
}

// DefaultOptions returns pool settings for dsn
func DefaultOptions(dsn string) *Options {
	return &Options{
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// PostgresDB wraps the GORM database connection
type PostgresDB struct {
	DB     *gorm.DB
	logger *slog.Logger
}

// NewPostgresDB creates a new PostgreSQL connection using GORM
func NewPostgresDB(opts *Options, appLogger *slog.Logger) (*PostgresDB, error) {
	if appLogger == nil {
		appLogger = slog.Default()
	}

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Silent)
	if opts.Debug {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	appLogger.Info("database connection established")

	return &PostgresDB{
		DB:     db,
		logger: appLogger,
	}, nil
}

// Close closes the database connection
func (db *PostgresDB) Close() error {
	db.logger.Info("closing database connection")
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Health returns health status of the database
func (db *PostgresDB) Health(ctx context.Context) map[string]interface{} {
	if err := db.Ping(ctx); err != nil {
		return map[string]interface{}{
			"status": "down",
			"error":  err.Error(),
		}
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return map[string]interface{}{
			"status": "down",
			"error":  err.Error(),
		}
	}

	stats := sqlDB.Stats()

	return map[string]interface{}{
		"status":           "up",
		"max_open_conns":   stats.MaxOpenConnections,
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
	}
}

// AutoMigrate creates or updates the reference schema
func (db *PostgresDB) AutoMigrate(ctx context.Context) error {
	db.logger.Info("running auto migrations")
	if err := db.DB.WithContext(ctx).AutoMigrate(&domain.GeocodedPostcode{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	db.logger.Info("migrations completed successfully")
	return nil
}
