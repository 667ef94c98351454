package events

import (
	"trading-bot-fleet/internal/infrastructure/config"
	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/logger"
)

// Factory - фабрика для создания EventBus
type Factory struct{}

// NewEventBusFromConfig создает EventBus из конфигурации
func (f *Factory) NewEventBusFromConfig(cfg *config.Config) *EventBus {
	bus := NewEventBus(EventBusConfig{
		BufferSize:      cfg.EventBus.BufferSize,
		BatchSize:       cfg.EventBus.BatchSize,
		MaxRetries:      cfg.EventBus.MaxRetries,
		RetryDelay:      cfg.EventBus.RetryDelay,
		EnableMetrics:   cfg.EventBus.EnableMetrics,
		EnableLogging:   cfg.EventBus.EnableLogging,
		MetricsInterval: cfg.EventBus.MetricsInterval,
	})

	// Добавляем middleware в зависимости от конфигурации
	if cfg.LogLevel == "debug" {
		bus.AddMiddleware(&LoggingMiddleware{})
	}
	bus.AddMiddleware(&ValidationMiddleware{})
	if cfg.EventBus.EnableMetrics {
		bus.AddMiddleware(&MetricsMiddleware{})
	}

	return bus
}

// RegisterDefaultSubscribers регистрирует стандартных подписчиков и внешних потребителей
func (f *Factory) RegisterDefaultSubscribers(bus *EventBus, extra ...types.EventSubscriber) {
	bus.Subscribe(NewConsoleLoggerSubscriber())

	for _, sub := range extra {
		if sub == nil {
			continue
		}
		bus.Subscribe(sub)
		logger.Info("✅ Подписчик %s зарегистрирован", sub.GetName())
	}
}
