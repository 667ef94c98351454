// internal/infrastructure/persistence/postgres/database/database_service.go
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trading-bot-fleet/internal/infrastructure/config"
	"trading-bot-fleet/internal/infrastructure/persistence/postgres"
	"trading-bot-fleet/pkg/logger"

	"github.com/jmoiron/sqlx"
)

// DatabaseService сервис для работы с базой данных
type DatabaseService struct {
	config *config.Config
	db     *sqlx.DB
	mu     sync.RWMutex
	state  ServiceState
}

// ServiceState состояние сервиса
type ServiceState string

const (
	StateStopped  ServiceState = "stopped"
	StateStarting ServiceState = "starting"
	StateRunning  ServiceState = "running"
	StateStopping ServiceState = "stopping"
	StateError    ServiceState = "error"
)

// NewDatabaseService создает новый сервис базы данных
func NewDatabaseService(cfg *config.Config) *DatabaseService {
	return &DatabaseService{
		config: cfg,
		state:  StateStopped,
	}
}

// Start подключается к PostgreSQL и, если включено, применяет миграции
// до того как сервис будет считаться запущенным
func (ds *DatabaseService) Start(ctx context.Context) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.state == StateRunning {
		return fmt.Errorf("database service already running")
	}

	logger.Info("🔄 Starting database service...")
	ds.state = StateStarting

	db, err := postgres.Connect(ctx, ds.config)
	if err != nil {
		ds.state = StateError
		return err
	}

	if ds.config.Database.EnableAutoMigrate {
		if err := postgres.RunMigrations(ctx, db); err != nil {
			db.Close()
			ds.state = StateError
			return err
		}
	}

	ds.db = db
	ds.state = StateRunning

	dbConfig := ds.config.Database
	logger.Info("   • Pool: %d/%d connections", dbConfig.MaxIdleConns, dbConfig.MaxOpenConns)
	return nil
}

// Stop останавливает сервис базы данных
func (ds *DatabaseService) Stop() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.state != StateRunning {
		return fmt.Errorf("database service is not running")
	}

	logger.Info("🛑 Stopping database service...")
	ds.state = StateStopping

	if ds.db != nil {
		if err := ds.db.Close(); err != nil {
			ds.state = StateError
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	ds.db = nil
	ds.state = StateStopped
	logger.Info("✅ Database service stopped")
	return nil
}

// GetDB возвращает соединение с базой данных
func (ds *DatabaseService) GetDB() *sqlx.DB {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.db
}

// State возвращает состояние сервиса
func (ds *DatabaseService) State() ServiceState {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.state
}

// IsRunning проверяет, запущен ли сервис
func (ds *DatabaseService) IsRunning() bool {
	return ds.State() == StateRunning
}

// Name - имя сервиса для логов менеджера
func (ds *DatabaseService) Name() string {
	return "PostgreSQL"
}

// HealthCheck проверяет доступность базы
func (ds *DatabaseService) HealthCheck(ctx context.Context) error {
	db := ds.GetDB()
	if db == nil {
		return fmt.Errorf("database service is not running")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// GetStats возвращает статистику пула
func (ds *DatabaseService) GetStats() map[string]interface{} {
	db := ds.GetDB()
	if db == nil {
		return map[string]interface{}{"state": ds.State()}
	}
	stats := db.Stats()
	return map[string]interface{}{
		"state":            ds.State(),
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
		"wait_duration":    stats.WaitDuration.String(),
	}
}
