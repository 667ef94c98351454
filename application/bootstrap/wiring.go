// application/bootstrap/wiring.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"trading-bot-fleet/application/scheduler"
	"trading-bot-fleet/internal/core/domain/auth"
	"trading-bot-fleet/internal/core/domain/fleet"
	"trading-bot-fleet/internal/core/domain/lifecycle"
	"trading-bot-fleet/internal/core/domain/quarantine"
	"trading-bot-fleet/internal/core/domain/regeneration"
	"trading-bot-fleet/internal/delivery/dashboard"
	"trading-bot-fleet/internal/delivery/dashboard/ws"
	"trading-bot-fleet/internal/delivery/httpapi"
	rediscache "trading-bot-fleet/internal/infrastructure/cache/redis"
	memstore "trading-bot-fleet/internal/infrastructure/persistence/in_memory_storage"
	"trading-bot-fleet/internal/infrastructure/persistence/postgres/database"
	audit_repo "trading-bot-fleet/internal/infrastructure/persistence/postgres/repository/audit"
	bots_repo "trading-bot-fleet/internal/infrastructure/persistence/postgres/repository/bots"
	history_repo "trading-bot-fleet/internal/infrastructure/persistence/postgres/repository/history"
	"trading-bot-fleet/internal/infrastructure/transport/kafka_relay"
	events "trading-bot-fleet/internal/infrastructure/transport/event_bus"
	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/logger"

	"github.com/gin-gonic/gin"
)

// initStorage выбирает хранилище ботов и поднимает внешние сервисы.
// PostgreSQL и Redis подключаются и тогда, когда они не основное хранилище:
// PostgreSQL ведёт аудит и историю переходов, Redis хранит сессии дашбордов.
func (app *Application) initStorage(ctx context.Context) error {
	cfg := app.config
	app.audit = logAudit{}

	if cfg.StoreBackend == "postgres" || cfg.Database.Enabled {
		db := database.NewDatabaseService(cfg)
		if err := db.Start(ctx); err != nil {
			return err
		}
		app.onClose(db.Name(), db.Stop)
		app.db = db
		app.health = append(app.health, httpapi.HealthCheck{Name: "postgres", Check: db.HealthCheck})

		app.audit = audit_repo.NewAuditRepository(db.GetDB())
		app.subscribers = append(app.subscribers,
			history_repo.NewRecorder(history_repo.NewHistoryRepository(db.GetDB())))

		if cfg.StoreBackend == "postgres" {
			app.store = bots_repo.NewBotRepository(db.GetDB())
		}
	}

	if cfg.StoreBackend == "redis" || cfg.Redis.Enabled {
		rs := rediscache.NewRedisService(cfg)
		if err := rs.Start(ctx); err != nil {
			return err
		}
		app.onClose(rs.Name(), rs.Stop)
		app.redis = rs
		app.health = append(app.health, httpapi.HealthCheck{Name: "redis", Check: boolCheck(rs.Name(), rs.HealthCheck)})

		client := rs.GetClient()
		app.sessionStore = rediscache.NewSessionStore(client, cfg.Redis.KeyPrefix, cfg.Redis.SessionTTL)
		if cfg.Redis.RelayEvents {
			app.subscribers = append(app.subscribers, rediscache.NewEventRelay(client, cfg.Redis.KeyPrefix, cfg.InstanceID))
		}

		if cfg.StoreBackend == "redis" {
			app.store = rediscache.NewBotStore(client, cfg.Redis.KeyPrefix)
		}
	}

	if cfg.Kafka.Enabled {
		relay := kafka_relay.NewRelay(kafka_relay.NewWriter(cfg.Kafka), cfg.Kafka.Topic, cfg.Kafka.WriteTimeout)
		app.onClose("Kafka", relay.Close)
		app.subscribers = append(app.subscribers, relay)
	}

	if app.store == nil {
		app.store = memstore.NewInMemoryBotStorage().WithClock(app.clock.Now)
		logger.Warn("⚠️ Боты хранятся в памяти и не переживут рестарт")
	}
	return nil
}

// initEventBus создает шину и регистрирует внешних подписчиков.
// При пересылке через Redis события других экземпляров публикуются в эту же шину.
func (app *Application) initEventBus(context.Context) error {
	factory := &events.Factory{}
	app.bus = factory.NewEventBusFromConfig(app.config)
	factory.RegisterDefaultSubscribers(app.bus, app.subscribers...)
	if app.redis != nil && app.config.Redis.RelayEvents {
		app.relay = rediscache.NewRelayConsumer(app.redis.GetClient(), app.config.Redis.KeyPrefix, app.config.InstanceID, app.bus)
	}
	app.health = append(app.health, httpapi.HealthCheck{Name: "event_bus", Check: boolCheck(app.bus.Name(), app.bus.HealthCheck)})
	return nil
}

// initEngine загружает политику карантина и собирает движок жизненного цикла
func (app *Application) initEngine(context.Context) error {
	policy, err := app.loadPolicy()
	if err != nil {
		return err
	}
	logger.Info("🛡️ Политика карантина: %s", policy)

	regen := app.config.Regeneration
	workflow := regeneration.NewWorkflow(app.store, regeneration.Config{
		CarryCapital:     regen.CarryCapital,
		PreserveExchange: regen.PreserveExchange,
		DefaultCapital:   regen.DefaultCapital,
		DefaultExchange:  regen.DefaultExchange,
	}, app.clock)

	engine, err := lifecycle.NewEngine(lifecycle.Config{
		Store:       app.store,
		Policy:      policy,
		Clock:       app.clock,
		Publisher:   app.bus,
		Regenerator: workflow,
		Audit:       app.audit,
	})
	if err != nil {
		return err
	}

	app.engine = engine
	app.fleet = fleet.NewService(app.store, policy, app.clock)
	return nil
}

func (app *Application) loadPolicy() (*quarantine.Policy, error) {
	lc := app.config.Lifecycle
	if lc.PolicyFile != "" {
		return quarantine.LoadPolicyFile(lc.PolicyFile)
	}
	if len(lc.QuarantineWindows) > 0 {
		return quarantine.NewPolicy(lc.QuarantineWindows)
	}
	return quarantine.DefaultPolicy(), nil
}

// initDistribution создает менеджер сессий дашбордов поверх буфера шины
func (app *Application) initDistribution(context.Context) error {
	d := app.config.Distribution
	cfg := dashboard.DefaultManagerConfig()
	cfg.HeartbeatInterval = d.HeartbeatInterval
	cfg.HeartbeatTimeout = d.HeartbeatTimeout
	cfg.Backoff = dashboard.BackoffConfig{
		Initial:     d.BackoffInitial,
		Max:         d.BackoffMax,
		MaxAttempts: d.MaxAttempts,
	}
	cfg.BatchSize = d.BatchSize
	cfg.MaxUnacked = app.config.EventBus.BufferSize
	cfg.SessionTTL = app.config.Redis.SessionTTL

	var store types.SessionStore
	if app.sessionStore != nil {
		store = app.sessionStore
	}
	app.sessions = dashboard.NewManager(app.bus, store, app.clock, cfg)
	return nil
}

// initHTTP собирает роутер: REST, /ws, /health, /metrics
func (app *Application) initHTTP(context.Context) error {
	if len(app.config.HTTP.Tokens) == 0 {
		logger.Warn("⚠️ API_TOKENS не заданы: все запросы к API будут отклонены")
	}
	authenticator := auth.NewTokenAuthenticator(app.config.HTTP.Tokens)
	if !app.config.IsDev() && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	app.handler = httpapi.NewRouter(httpapi.Deps{
		Engine:   app.engine,
		Fleet:    app.fleet,
		Sessions: app.sessions,
		Auth:     authenticator,
		Push:     ws.NewHandler(app.sessions, authenticator.ResolveRequest, app.config.HTTP.AllowedOrigins),
		Health:   app.health,
		Version:  app.config.Version,
		Status:   app.Status,
	})
	return nil
}

// initScheduler регистрирует страховочный обход карантина, проверку пульса сессий
// и ежедневную сводку по парку
func (app *Application) initScheduler(context.Context) error {
	lc := app.config.Lifecycle
	app.scheduler = scheduler.New(
		scheduler.WithClock(app.clock),
		scheduler.WithResolution(lc.SchedulerResolution),
		scheduler.WithJobTimeout(lc.JobTimeout),
	)

	tick := lc.TickInterval
	if tick <= 0 {
		tick = time.Minute
	}
	app.scheduler.Register(scheduler.QuarantineSweepJob(app.engine, app.clock, tick))

	liveness := app.config.Distribution.LivenessInterval
	if liveness <= 0 {
		liveness = app.sessions.Config().HeartbeatInterval
	}
	app.scheduler.Register(scheduler.SessionLivenessJob(app.sessions, liveness))

	hour, minute, ok, err := lc.ReportTime()
	if err != nil {
		return err
	}
	if ok {
		app.scheduler.Register(scheduler.FleetReportJob(app.fleet, hour, minute))
	}
	return nil
}

// boolCheck приводит HealthCheck() bool сервисов к проверке для /health
func boolCheck(name string, check func() bool) func(context.Context) error {
	return func(context.Context) error {
		if !check() {
			return fmt.Errorf("%s is not healthy", name)
		}
		return nil
	}
}

// logAudit - журнал аудита в лог, когда PostgreSQL не подключён
type logAudit struct{}

func (logAudit) Record(_ context.Context, entry types.AuditEntry) error {
	if entry.Outcome == types.AuditRejected {
		logger.Warn("📝 [Audit] %s %s by %s: %s → %s отклонено: %s",
			entry.Action, entry.BotID, entry.Actor, entry.From, entry.To, entry.Error)
		return nil
	}
	logger.Info("📝 [Audit] %s %s by %s: %s → %s (%s)",
		entry.Action, entry.BotID, entry.Actor, entry.From, entry.To, entry.Outcome)
	return nil
}
