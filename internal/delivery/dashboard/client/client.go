// internal/delivery/dashboard/client/client.go
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"trading-bot-fleet/internal/delivery/dashboard"
	"trading-bot-fleet/pkg/logger"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// errSwitchToPolling - сервер перевёл сессию в polling
var errSwitchToPolling = errors.New("server switched session to polling")

// Handlers - обратные вызовы клиента. Любой из них может быть nil.
type Handlers struct {
	// OnEvent получает каждое событие ровно один раз (дубли отсекаются по id)
	OnEvent func(dashboard.PushPayload)
	// OnOverflow - часть событий потеряна, нужно перечитать снимки
	OnOverflow func(missed uint64)
	// OnMode - смена режима доставки
	OnMode func(dashboard.TransportMode)
	// OnSnapshot получает ответ polling-эндпоинта (имя эндпоинта и тело)
	OnSnapshot func(endpoint string, body []byte)
}

// Config - параметры клиента дашборда
type Config struct {
	BaseURL    string
	Token      string
	Backoff    dashboard.BackoffConfig
	Endpoints  []Endpoint
	HTTPClient *http.Client
	// HealthyAfter - соединение, прожившее столько, считается здоровым и обнуляет backoff
	HealthyAfter time.Duration
	DedupSize    int
}

// Client держит push-подключение к серверу и при исчерпании попыток
// переходит на опрос снимков
type Client struct {
	config   Config
	handlers Handlers

	mu        sync.Mutex
	sessionID string
	mode      dashboard.TransportMode
	seen      *dedup
	attempts  int
}

// New создает клиента
func New(cfg Config, handlers Handlers) *Client {
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = dashboard.DefaultBackoff()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.HealthyAfter <= 0 {
		cfg.HealthyAfter = 30 * time.Second
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = 1024
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		config:   cfg,
		handlers: handlers,
		mode:     dashboard.ModeDisconnected,
		seen:     newDedup(cfg.DedupSize),
	}
}

// SessionID - текущая сессия (пусто до первого подключения)
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Mode - текущий режим доставки
func (c *Client) Mode() dashboard.TransportMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Run работает до отмены ctx: push с переподключениями, затем polling
func (c *Client) Run(ctx context.Context) error {
	b := c.config.Backoff.NewExponential()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		started := time.Now()
		err := c.runPush(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errSwitchToPolling) {
			return c.runPolling(ctx)
		}

		c.mu.Lock()
		if time.Since(started) >= c.config.HealthyAfter {
			c.attempts = 0
			b.Reset()
		}
		c.attempts++
		attempts := c.attempts
		c.mu.Unlock()
		c.setMode(dashboard.ModeDisconnected)

		if c.config.Backoff.Exhausted(attempts) {
			logger.Warn("📉 [DashboardClient] %d попыток переподключения исчерпано, переход в polling", attempts-1)
			return c.runPolling(ctx)
		}

		delay := b.NextBackOff()
		logger.Warn("⚠️ [DashboardClient] push-канал прерван: %v, повтор #%d через %v", err, attempts, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runPush - одно push-подключение; возвращается при обрыве
func (c *Client) runPush(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.wsURL(), &websocket.DialOptions{
		HTTPClient: c.config.HTTPClient,
		HTTPHeader: c.authHeader(),
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	for {
		var msg dashboard.ServerMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}

		switch msg.Type {
		case dashboard.MsgSession:
			c.mu.Lock()
			c.sessionID = msg.SessionID
			c.mu.Unlock()
			c.setMode(dashboard.ModePush)
			logger.Info("✅ [DashboardClient] push-сессия %s установлена", msg.SessionID)

		case dashboard.MsgPing:
			if err := wsjson.Write(ctx, conn, dashboard.ClientMessage{Type: dashboard.MsgPong}); err != nil {
				return err
			}

		case dashboard.MsgEvent:
			if msg.Event == nil {
				continue
			}
			c.deliver(*msg.Event)
			if err := wsjson.Write(ctx, conn, dashboard.ClientMessage{
				Type:      dashboard.MsgAck,
				EventType: msg.Event.Type,
				Seq:       msg.Event.Seq,
			}); err != nil {
				return err
			}

		case dashboard.MsgBacklogOverflow:
			logger.Warn("⚠️ [DashboardClient] потеряно %d событий, нужен свежий снимок", msg.Missed)
			if c.handlers.OnOverflow != nil {
				c.handlers.OnOverflow(msg.Missed)
			}

		case dashboard.MsgMode:
			if msg.SessionID != "" {
				c.mu.Lock()
				c.sessionID = msg.SessionID
				c.mu.Unlock()
			}
			if msg.Mode == dashboard.ModePolling {
				conn.Close(websocket.StatusNormalClosure, "")
				return errSwitchToPolling
			}
		}
	}
}

// deliver передаёт событие обработчику, отсекая повторную доставку
func (c *Client) deliver(p dashboard.PushPayload) {
	if !c.seen.add(p.EventID) {
		logger.Debug("🔁 [DashboardClient] повтор события %s пропущен", p.EventID)
		return
	}
	if c.handlers.OnEvent != nil {
		c.handlers.OnEvent(p)
	}
}

func (c *Client) setMode(mode dashboard.TransportMode) {
	c.mu.Lock()
	changed := c.mode != mode
	c.mode = mode
	c.mu.Unlock()
	if changed && c.handlers.OnMode != nil {
		c.handlers.OnMode(mode)
	}
}

func (c *Client) wsURL() string {
	url := c.config.BaseURL + "/ws"
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	if id := c.SessionID(); id != "" {
		url += "?session_id=" + id
	}
	return url
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	if c.config.Token != "" {
		h.Set("Authorization", "Bearer "+c.config.Token)
	}
	return h
}

// dedup - ограниченное множество id последних событий
type dedup struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

func newDedup(size int) *dedup {
	return &dedup{ids: make(map[string]struct{}, size), order: make([]string, size)}
}

// add возвращает false, если id уже встречался
func (d *dedup) add(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ids[id]; ok {
		return false
	}
	if old := d.order[d.next]; old != "" {
		delete(d.ids, old)
	}
	d.order[d.next] = id
	d.next = (d.next + 1) % len(d.order)
	d.ids[id] = struct{}{}
	return true
}
