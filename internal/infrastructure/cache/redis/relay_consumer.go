// internal/infrastructure/cache/redis/relay_consumer.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// Publisher - локальная шина, в которую попадают события других экземпляров
type Publisher interface {
	Publish(event types.Event) error
}

// RelayConsumer читает каналы <prefix>events:* и публикует события других
// экземпляров в локальную шину, чтобы их получали дашборды этого экземпляра
type RelayConsumer struct {
	client    *redis.Client
	prefix    string
	origin    string
	publisher Publisher
}

// NewRelayConsumer создает потребителя; собственные события (origin) пропускаются
func NewRelayConsumer(client *redis.Client, prefix, origin string, publisher Publisher) *RelayConsumer {
	return &RelayConsumer{client: client, prefix: prefix, origin: origin, publisher: publisher}
}

// Run подписывается на каналы владельцев и блокируется до отмены ctx
func (c *RelayConsumer) Run(ctx context.Context) error {
	pubsub := c.client.PSubscribe(ctx, relayChannel(c.prefix, "*"))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("RelayConsumer: subscribe: %w", err)
	}
	logger.Info("📡 [Redis] слушаем события других экземпляров: %s", relayChannel(c.prefix, "*"))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := c.handle([]byte(msg.Payload)); err != nil {
				logger.Warn("⚠️ [Redis] событие из %s отброшено: %v", msg.Channel, err)
			}
		}
	}
}

// wireEvent - событие с ещё не разобранными данными
type wireEvent struct {
	types.Event
	Data json.RawMessage `json:"data"`
}

type wireEnvelope struct {
	Origin string    `json:"origin"`
	Event  wireEvent `json:"event"`
}

// handle разбирает сообщение канала и публикует его локально
func (c *RelayConsumer) handle(payload []byte) error {
	var env wireEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if env.Origin == "" || env.Origin == c.origin {
		return nil
	}

	event := env.Event.Event
	event.Data = nil
	switch event.Type {
	case types.EventBotTransition, types.EventBotCreated:
		var transition types.TransitionEvent
		if err := json.Unmarshal(env.Event.Data, &transition); err != nil {
			return fmt.Errorf("decode %s data: %w", event.Type, err)
		}
		event.Data = transition
	default:
		return nil
	}

	// локальная шина назначает свой номер
	event.Seq = 0
	props := make(map[string]string, len(event.Metadata.Properties)+1)
	for k, v := range event.Metadata.Properties {
		props[k] = v
	}
	props[types.PropRelayedFrom] = env.Origin
	event.Metadata.Properties = props

	return c.publisher.Publish(event)
}
