// /internal/types/eventbus.go
package types

import (
	"sync"
	"time"
)

// EventBus - интерфейс шины событий
type EventBus interface {
	// Publish ставит событие в ограниченный буфер и сразу возвращается
	Publish(event Event) error

	// Subscribe подписывает обработчик на типы событий (доставка в порядке публикации)
	Subscribe(subscriber EventSubscriber)

	// Unsubscribe отписывает обработчик
	Unsubscribe(subscriber EventSubscriber)

	// Start запускает EventBus
	Start()

	// Stop останавливает EventBus
	Stop()

	// GetMetrics возвращает снимок метрик
	GetMetrics() EventBusMetrics
}

// Event - структура события
type Event struct {
	ID        string      `json:"id"`
	Seq       uint64      `json:"seq"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	OwnerID   string      `json:"owner_id"`
	BotID     string      `json:"bot_id"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	Metadata  Metadata    `json:"metadata"`
}

// PropRelayedFrom - свойство метаданных: экземпляр сервиса, от которого событие пришло через Redis
const PropRelayedFrom = "relayed_from"

// Relayed - событие опубликовано другим экземпляром и уже обработано там
func (e Event) Relayed() bool {
	return e.Metadata.Properties[PropRelayedFrom] != ""
}

// EventType - тип события
type EventType string

// Metadata - метаданные события
type Metadata struct {
	CorrelationID string            `json:"correlation_id"`
	Actor         string            `json:"actor"`
	Properties    map[string]string `json:"properties"`
}

// EventSubscriber - интерфейс подписчика
type EventSubscriber interface {
	HandleEvent(event Event) error
	GetName() string
	GetSubscribedEvents() []EventType
}

// EventBusMetrics - метрики EventBus
type EventBusMetrics struct {
	EventsPublished  int64             `json:"events_published"`
	EventsProcessed  int64             `json:"events_processed"`
	EventsFailed     int64             `json:"events_failed"`
	BacklogOverflow  int64             `json:"backlog_overflow"`
	Evicted          int64             `json:"evicted"`
	Buffered         int               `json:"buffered"`
	LatestSeq        uint64            `json:"latest_seq"`
	SubscribersCount map[EventType]int `json:"subscribers_count"`
	ProcessingTime   time.Duration     `json:"processing_time"`
}

// EventBusCounters - изменяемые счётчики шины под собственной блокировкой
type EventBusCounters struct {
	Mu               sync.RWMutex
	EventsPublished  int64
	EventsProcessed  int64
	EventsFailed     int64
	BacklogOverflow  int64
	Evicted          int64
	SubscribersCount map[EventType]int
	ProcessingTime   time.Duration
}

// Константы типов событий
const (
	EventBotTransition   EventType = "bot_transition"
	EventBotCreated      EventType = "bot_created"
	EventBacklogOverflow EventType = "backlog_overflow"
	EventError           EventType = "error"
)
