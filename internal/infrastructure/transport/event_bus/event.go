// internal/infrastructure/transport/event_bus/event.go
package events

import "trading-bot-fleet/internal/types"

// Middleware - промежуточное ПО для обработки событий подписчиками
type Middleware interface {
	Process(event types.Event, next HandlerFunc) error
}

// HandlerFunc - функция обработки события
type HandlerFunc func(event types.Event) error
