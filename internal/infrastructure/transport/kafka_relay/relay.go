// internal/infrastructure/transport/kafka_relay/relay.go
package kafka_relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trading-bot-fleet/internal/infrastructure/config"
	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Writer - часть kafka.Writer, нужная ретранслятору
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Relay - подписчик шины, выгружающий события жизненного цикла в Kafka.
// Ключ сообщения - id бота, поэтому переходы одного бота попадают
// в одну партицию и читаются в порядке публикации.
type Relay struct {
	writer  Writer
	topic   string
	timeout time.Duration
}

// NewWriter создаёт kafka.Writer с хеш-балансировкой по ключу
func NewWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
}

// NewRelay создаёт ретранслятор поверх writer
func NewRelay(writer Writer, topic string, timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Relay{writer: writer, topic: topic, timeout: timeout}
}

// HandleEvent пишет событие в топик; ошибка возвращается шине для повтора
func (r *Relay) HandleEvent(event types.Event) error {
	if event.Relayed() {
		// уже обработано экземпляром-источником
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("KafkaRelay: encode: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.BotID),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "owner_id", Value: []byte(event.OwnerID)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("KafkaRelay: write %s: %w", r.topic, err)
	}
	return nil
}

// Close закрывает writer
func (r *Relay) Close() error {
	logger.Info("🛑 Kafka relay остановлен (topic=%s)", r.topic)
	return r.writer.Close()
}

func (r *Relay) GetName() string {
	return "kafka_relay"
}

func (r *Relay) GetSubscribedEvents() []types.EventType {
	return []types.EventType{types.EventBotTransition, types.EventBotCreated}
}
