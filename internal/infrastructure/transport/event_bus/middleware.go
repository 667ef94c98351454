// internal/infrastructure/transport/event_bus/middleware.go
package events

import (
	"fmt"
	"time"

	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/logger"
)

// LoggingMiddleware - middleware для логирования
type LoggingMiddleware struct{}

func (m *LoggingMiddleware) Process(event types.Event, next HandlerFunc) error {
	logger.Debug("🔍 [LoggingMiddleware] Начало обработки #%d %s", event.Seq, event.Type)
	start := time.Now()

	err := next(event)

	duration := time.Since(start)
	if err != nil {
		logger.Debug("❌ [LoggingMiddleware] Ошибка обработки %s за %v: %v", event.Type, duration, err)
	} else {
		logger.Debug("✅ [LoggingMiddleware] %s обработан за %v", event.Type, duration)
	}
	return err
}

// MetricsMiddleware - middleware для сбора гистограммы времени обработки
type MetricsMiddleware struct{}

func (m *MetricsMiddleware) Process(event types.Event, next HandlerFunc) error {
	start := time.Now()
	err := next(event)
	handlerDuration.WithLabelValues(string(event.Type)).Observe(time.Since(start).Seconds())
	return err
}

// ValidationMiddleware - middleware для валидации событий
type ValidationMiddleware struct{}

func (m *ValidationMiddleware) Process(event types.Event, next HandlerFunc) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.Source == "" {
		return fmt.Errorf("event source is required")
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("event timestamp is required")
	}
	if event.Type == types.EventBotTransition || event.Type == types.EventBotCreated {
		if event.BotID == "" || event.OwnerID == "" {
			return fmt.Errorf("lifecycle event %s requires bot_id and owner_id", event.ID)
		}
	}
	return next(event)
}
