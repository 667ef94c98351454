// internal/infrastructure/transport/event_bus/subscribers.go
package events

import (
	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/logger"
)

// BaseSubscriber - базовая реализация подписчика
type BaseSubscriber struct {
	name             string
	subscribedEvents []types.EventType
	handler          func(types.Event) error
}

// NewBaseSubscriber создает нового подписчика
func NewBaseSubscriber(name string, events []types.EventType, handler func(types.Event) error) *BaseSubscriber {
	return &BaseSubscriber{
		name:             name,
		subscribedEvents: events,
		handler:          handler,
	}
}

// HandleEvent обрабатывает событие
func (s *BaseSubscriber) HandleEvent(event types.Event) error {
	return s.handler(event)
}

// GetName возвращает имя подписчика
func (s *BaseSubscriber) GetName() string {
	return s.name
}

// GetSubscribedEvents возвращает типы событий
func (s *BaseSubscriber) GetSubscribedEvents() []types.EventType {
	return s.subscribedEvents
}

// NewConsoleLoggerSubscriber - подписчик, пишущий события жизненного цикла в лог
func NewConsoleLoggerSubscriber() *BaseSubscriber {
	return NewBaseSubscriber(
		"console_logger",
		[]types.EventType{types.EventBotTransition, types.EventBotCreated, types.EventError},
		func(event types.Event) error {
			switch event.Type {
			case types.EventBotTransition:
				if tr, ok := event.Data.(types.TransitionEvent); ok {
					logger.Debug("📡 #%d бот %s: %s → %s (%s)", event.Seq, tr.BotID, tr.From, tr.To, tr.Reason)
				}
			case types.EventBotCreated:
				logger.Debug("📡 #%d создан бот %s владельца %s", event.Seq, event.BotID, event.OwnerID)
			case types.EventError:
				logger.Error("❌ Ошибка: %v", event.Data)
			}
			return nil
		},
	)
}
