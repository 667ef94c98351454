// internal/infrastructure/cache/redis/event_relay.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trading-bot-fleet/internal/types"

	"github.com/go-redis/redis/v8"
)

// relayEnvelope - сообщение в канале владельца
type relayEnvelope struct {
	Origin string      `json:"origin"`
	Event  types.Event `json:"event"`
}

// EventRelay - подписчик шины, который пересылает события в канал владельца
// (<prefix>events:<owner>). Другие экземпляры читают канал через RelayConsumer.
type EventRelay struct {
	client  *redis.Client
	prefix  string
	origin  string
	timeout time.Duration
}

// NewEventRelay создает ретранслятор; origin - id этого экземпляра
func NewEventRelay(client *redis.Client, prefix, origin string) *EventRelay {
	return &EventRelay{client: client, prefix: prefix, origin: origin, timeout: 3 * time.Second}
}

// Channel - имя канала владельца
func (r *EventRelay) Channel(ownerID string) string {
	return relayChannel(r.prefix, ownerID)
}

// HandleEvent публикует событие; ошибка Redis возвращается шине для повтора.
// Пришедшие от других экземпляров события обратно не пересылаются.
func (r *EventRelay) HandleEvent(event types.Event) error {
	if event.OwnerID == "" || event.Relayed() {
		return nil
	}
	payload, err := json.Marshal(relayEnvelope{Origin: r.origin, Event: event})
	if err != nil {
		return fmt.Errorf("EventRelay: encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.Channel(event.OwnerID), payload).Err(); err != nil {
		return fmt.Errorf("EventRelay: publish: %w", err)
	}
	return nil
}

func (r *EventRelay) GetName() string {
	return "redis_event_relay"
}

func (r *EventRelay) GetSubscribedEvents() []types.EventType {
	return []types.EventType{types.EventBotTransition, types.EventBotCreated}
}

func relayChannel(prefix, ownerID string) string {
	return prefix + "events:" + ownerID
}
