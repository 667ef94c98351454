package kafka_relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"trading-bot-fleet/internal/infrastructure/config"
	"trading-bot-fleet/internal/types"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

// TestRelay_KeysByBot verifies messages are keyed by bot id and carry the event
func TestRelay_KeysByBot(t *testing.T) {
	w := &fakeWriter{}
	relay := NewRelay(w, "fleet.lifecycle", time.Second)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, relay.HandleEvent(types.Event{
		ID: "e1", Type: types.EventBotTransition, OwnerID: "alice", BotID: "b1", Timestamp: ts,
	}))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "b1", string(msg.Key))
	assert.Equal(t, ts, msg.Time)

	var decoded types.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "e1", decoded.ID)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "bot_transition", headers["event_type"])
	assert.Equal(t, "alice", headers["owner_id"])

	require.NoError(t, relay.Close())
	assert.True(t, w.closed)
}

// TestRelay_ReturnsWriteErrors verifies broker failures reach the bus retry loop
func TestRelay_ReturnsWriteErrors(t *testing.T) {
	relay := NewRelay(&fakeWriter{err: errors.New("broker down")}, "t", 0)
	assert.Error(t, relay.HandleEvent(types.Event{ID: "e1", BotID: "b1"}))
}

// TestNewWriter_UsesHashBalancer verifies per-key partitioning is configured
func TestNewWriter_UsesHashBalancer(t *testing.T) {
	w := NewWriter(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "fleet.lifecycle"})
	defer w.Close()
	assert.Equal(t, "fleet.lifecycle", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
