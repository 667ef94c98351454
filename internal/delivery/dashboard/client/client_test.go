package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trading-bot-fleet/internal/delivery/dashboard"
	"trading-bot-fleet/internal/delivery/dashboard/ws"
	events "trading-bot-fleet/internal/infrastructure/transport/event_bus"
	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/clock"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu        sync.Mutex
	events    []dashboard.PushPayload
	snapshots map[string]int
	modes     []dashboard.TransportMode
}

func newRecorder() *recorder {
	return &recorder{snapshots: make(map[string]int)}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnEvent: func(p dashboard.PushPayload) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, p)
		},
		OnSnapshot: func(name string, _ []byte) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.snapshots[name]++
		},
		OnMode: func(m dashboard.TransportMode) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.modes = append(r.modes, m)
		},
	}
}

func (r *recorder) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) snapshotCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[name]
}

func fastBackoff(attempts int) dashboard.BackoffConfig {
	return dashboard.BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond, MaxAttempts: attempts}
}

func snapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer alice" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"bots":[]}`))
}

// TestClient_ReceivesPushedEvents verifies the client applies pushed events and acknowledges them
func TestClient_ReceivesPushedEvents(t *testing.T) {
	bus := events.NewEventBus(events.EventBusConfig{BufferSize: 100})
	bus.Start()
	defer bus.Stop()
	mgr := dashboard.NewManager(bus, nil, clock.New(), dashboard.Config{HeartbeatInterval: time.Hour})

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(mgr, func(r *http.Request) (string, error) {
		return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "), nil
	}, nil))
	server := httptest.NewServer(mux)
	defer server.Close()

	rec := newRecorder()
	c := New(Config{BaseURL: server.URL, Token: "alice", Backoff: fastBackoff(3)}, rec.handlers())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.Mode() == dashboard.ModePush }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(types.Event{
		Type: types.EventBotTransition, Source: "lifecycle", OwnerID: "alice", BotID: "a1",
		Data: types.TransitionEvent{BotID: "a1", OwnerID: "alice", To: types.StatusPaused},
	}))
	require.Eventually(t, func() bool { return rec.eventCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		info, err := mgr.Session(c.SessionID())
		return err == nil && info.Acked[types.EventBotTransition] == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

// TestClient_FallsBackToPollingAfterRetries verifies an unreachable push channel ends in polling every endpoint
func TestClient_FallsBackToPollingAfterRetries(t *testing.T) {
	var dials atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/api/v1/bots", snapshotHandler)
	mux.HandleFunc("/api/v1/fleet/summary", snapshotHandler)
	server := httptest.NewServer(mux)
	defer server.Close()

	rec := newRecorder()
	c := New(Config{
		BaseURL: server.URL,
		Token:   "alice",
		Backoff: fastBackoff(3),
		Endpoints: []Endpoint{
			{Name: "bots", Path: "/api/v1/bots", Interval: 10 * time.Millisecond},
			{Name: "summary", Path: "/api/v1/fleet/summary", Interval: 50 * time.Millisecond},
		},
	}, rec.handlers())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return rec.snapshotCount("bots") >= 3 && rec.snapshotCount("summary") >= 1
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, dashboard.ModePolling, c.Mode())
	// первая попытка плюс три переподключения
	assert.Equal(t, int32(4), dials.Load())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// TestClient_ServerRequestedPolling verifies a mode message from the server switches the client to polling at once
func TestClient_ServerRequestedPolling(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		_ = wsjson.Write(r.Context(), conn, dashboard.ServerMessage{
			Type: dashboard.MsgMode, SessionID: "s-1", Mode: dashboard.ModePolling,
		})
		var ignored dashboard.ClientMessage
		_ = wsjson.Read(r.Context(), conn, &ignored)
	})
	mux.HandleFunc("/api/v1/bots", snapshotHandler)
	server := httptest.NewServer(mux)
	defer server.Close()

	rec := newRecorder()
	c := New(Config{
		BaseURL:   server.URL,
		Token:     "alice",
		Backoff:   fastBackoff(5),
		Endpoints: []Endpoint{{Name: "bots", Path: "/api/v1/bots", Interval: 10 * time.Millisecond}},
	}, rec.handlers())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.snapshotCount("bots") >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, dashboard.ModePolling, c.Mode())
	assert.Equal(t, "s-1", c.SessionID())

	cancel()
	<-done
}

// TestDedup_DropsRepeatsAndForgetsOldest verifies duplicate suppression is bounded
func TestDedup_DropsRepeatsAndForgetsOldest(t *testing.T) {
	d := newDedup(2)
	assert.True(t, d.add("a"))
	assert.False(t, d.add("a"))
	assert.True(t, d.add("b"))
	assert.True(t, d.add("c"))
	// "a" вытеснен
	assert.True(t, d.add("a"))
	assert.False(t, d.add("c"))
}
