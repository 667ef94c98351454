// internal/infrastructure/persistence/postgres/connection.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"trading-bot-fleet/internal/infrastructure/config"
	"trading-bot-fleet/pkg/logger"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect открывает пул соединений и ждёт готовности базы с экспоненциальной задержкой
func Connect(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	dbConfig := cfg.Database

	db, err := sqlx.Open("postgres", cfg.GetPostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	// Настройки пула соединений
	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.MaxConnLifetime)
	db.SetConnMaxIdleTime(dbConfig.MaxConnIdleTime)

	attempts := dbConfig.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return struct{}{}, db.PingContext(pingCtx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("⚠️ PostgreSQL недоступен: %v, повтор через %v", err, next)
		}),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info("✅ Connected to PostgreSQL %s:%d/%s", dbConfig.Host, dbConfig.Port, dbConfig.Name)
	return db, nil
}

// RunMigrations применяет встроенные миграции
func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	migrator := NewMigrator(db)

	if err := migrator.Load(Migrations()); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info("✅ Database migrations completed successfully")
	return nil
}
