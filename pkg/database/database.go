// Package database opens the relational store through gorm.
package database

import (
	"context"
	"fmt"
	"time"

	"TrendCascade/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Option func(*Config)

type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
	Logger       *logger.Logger
}

func WithDriver(driver, dsn string) Option {
	return func(c *Config) {
		c.Driver = driver
		c.DSN = dsn
	}
}

func WithPool(maxOpen, maxIdle int, maxLife time.Duration) Option {
	return func(c *Config) {
		if maxOpen > 0 {
			c.MaxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			c.MaxIdleConns = maxIdle
		}
		if maxLife > 0 {
			c.ConnMaxLife = maxLife
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Open connects with the configured driver, sizes the pool and pings.
func Open(opts ...Option) (*gorm.DB, error) {
	cfg := &Config{
		Driver:       "sqlite",
		DSN:          "file::memory:?cache=shared",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		ConnMaxLife:  30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
		// SQLite allows a single writer.
		cfg.MaxOpenConns = 1
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLife)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database connected",
			logger.String("driver", cfg.Driver),
			logger.Int("max_open_conns", cfg.MaxOpenConns))
	}
	return db, nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
