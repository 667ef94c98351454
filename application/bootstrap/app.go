// application/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"trading-bot-fleet/application/scheduler"
	"trading-bot-fleet/internal/core/domain/fleet"
	"trading-bot-fleet/internal/core/domain/lifecycle"
	"trading-bot-fleet/internal/delivery/dashboard"
	"trading-bot-fleet/internal/delivery/httpapi"
	rediscache "trading-bot-fleet/internal/infrastructure/cache/redis"
	"trading-bot-fleet/internal/infrastructure/config"
	"trading-bot-fleet/internal/infrastructure/persistence/postgres/database"
	events "trading-bot-fleet/internal/infrastructure/transport/event_bus"
	"trading-bot-fleet/internal/types"
	storagetypes "trading-bot-fleet/internal/types/storage"
	"trading-bot-fleet/pkg/clock"
	"trading-bot-fleet/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Application - собранный сервис парка ботов
type Application struct {
	config *config.Config
	clock  clock.Clock

	mu        sync.RWMutex
	running   bool
	startTime time.Time

	store        storagetypes.BotStore
	audit        types.AuditLog
	db           *database.DatabaseService
	redis        *rediscache.RedisService
	sessionStore *rediscache.SessionStore
	subscribers  []types.EventSubscriber
	relay        *rediscache.RelayConsumer

	bus       *events.EventBus
	engine    *lifecycle.Engine
	fleet     *fleet.Service
	sessions  *dashboard.Manager
	scheduler *scheduler.Scheduler
	handler   http.Handler
	health    []httpapi.HealthCheck

	// closers освобождают внешние ресурсы в обратном порядке
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// NewApplication создает приложение; зависимости собираются в Initialize
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("конфигурация не задана")
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = "fleetd-" + uuid.NewString()
	}
	return &Application{
		config: cfg,
		clock:  clock.New(),
	}, nil
}

// Initialize подключает хранилища и собирает компоненты в порядке зависимостей
func (app *Application) Initialize(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.engine != nil {
		return nil
	}

	logger.Info("🔧 Инициализация приложения (хранилище: %s)...", app.config.StoreBackend)

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"storage", app.initStorage},
		{"event bus", app.initEventBus},
		{"lifecycle engine", app.initEngine},
		{"distribution", app.initDistribution},
		{"http", app.initHTTP},
		{"scheduler", app.initScheduler},
	}

	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			app.closeAll()
			return fmt.Errorf("инициализация %s: %w", step.name, err)
		}
		logger.Debug("✅ Компонент %s готов", step.name)
	}
	return nil
}

// Run запускает шину, планировщик и HTTP-сервер и блокируется до отмены ctx
func (app *Application) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}

	app.mu.Lock()
	if app.running {
		app.mu.Unlock()
		return errors.New("приложение уже запущено")
	}
	app.running = true
	app.startTime = app.clock.Now()
	app.mu.Unlock()

	logger.Info("🚀 Запуск приложения...")
	app.config.PrintSummary()

	app.bus.Start()

	// Таймеры карантина не переживают рестарт: взводим их заново по хранилищу
	if _, err := app.engine.Restore(ctx); err != nil {
		logger.Warn("⚠️ Не удалось восстановить таймеры карантина: %v", err)
	}
	// Окна, истёкшие пока сервис был остановлен, закрываем сразу
	if err := app.scheduler.RunNow(ctx, scheduler.JobQuarantineSweep); err != nil {
		logger.Warn("⚠️ Начальный проход по карантину: %v", err)
	}

	app.scheduler.Start()

	server := httpapi.NewServer(
		fmt.Sprintf(":%d", app.config.HTTP.Port),
		app.handler,
		app.config.HTTP.ShutdownTimeout,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	if app.relay != nil {
		g.Go(func() error {
			return app.relay.Run(gctx)
		})
	}

	logger.Info("✅ Приложение запущено, HTTP порт %d", app.config.HTTP.Port)

	err := g.Wait()
	app.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Sweep выполняет один проход по истёкшим карантинам
func (app *Application) Sweep(ctx context.Context) (lifecycle.TickReport, error) {
	if err := app.Initialize(ctx); err != nil {
		return lifecycle.TickReport{}, err
	}
	app.bus.Start()
	defer app.bus.Stop()
	return app.engine.Tick(ctx, app.clock.Now())
}

// Engine возвращает движок жизненного цикла
func (app *Application) Engine() *lifecycle.Engine {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.engine
}

// Handler возвращает HTTP-обработчик приложения
func (app *Application) Handler() http.Handler {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.handler
}

// Status - состояние приложения
func (app *Application) Status() map[string]interface{} {
	app.mu.RLock()
	defer app.mu.RUnlock()

	status := map[string]interface{}{
		"running":       app.running,
		"store_backend": app.config.StoreBackend,
		"version":       app.config.Version,
		"instance_id":   app.config.InstanceID,
	}
	if app.running {
		status["uptime"] = app.clock.Now().Sub(app.startTime).String()
		status["start_time"] = app.startTime.Format(time.RFC3339)
	}
	if app.sessions != nil {
		modes := make(map[string]int)
		for mode, n := range app.sessions.CountByMode() {
			modes[string(mode)] = n
		}
		status["sessions"] = modes
	}
	if app.scheduler != nil {
		status["jobs"] = app.scheduler.Jobs()
	}
	if app.bus != nil {
		status["event_bus"] = app.bus.GetMetrics()
	}
	if app.db != nil {
		status["postgres"] = app.db.GetStats()
	}
	if app.redis != nil {
		status["redis"] = app.redis.GetStats()
	}
	return status
}

// Close освобождает ресурсы без запуска (например, после Sweep)
func (app *Application) Close() {
	app.shutdown()
}

// shutdown останавливает компоненты в обратном порядке запуска
func (app *Application) shutdown() {
	app.mu.Lock()
	defer app.mu.Unlock()

	logger.Info("🛑 Останавливаем приложение...")

	if app.scheduler != nil {
		app.scheduler.Stop()
	}
	if app.engine != nil {
		app.engine.Stop()
	}
	if app.bus != nil {
		app.bus.Stop()
	}
	app.closeAll()

	if app.running {
		logger.Info("✅ Приложение остановлено. Время работы: %v", app.clock.Now().Sub(app.startTime))
	}
	app.running = false
}

func (app *Application) closeAll() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		c := app.closers[i]
		if err := c.fn(); err != nil {
			logger.Warn("⚠️ Ошибка остановки %s: %v", c.name, err)
		}
	}
	app.closers = nil
}

func (app *Application) onClose(name string, fn func() error) {
	app.closers = append(app.closers, closer{name: name, fn: fn})
}
