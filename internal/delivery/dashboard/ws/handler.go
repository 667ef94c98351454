// internal/delivery/dashboard/ws/handler.go
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"trading-bot-fleet/internal/delivery/dashboard"
	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/logger"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	writeTimeout  = 10 * time.Second
	readLimit     = 32 << 10
	flushInterval = time.Second
)

// OwnerResolver извлекает владельца из запроса (учётные данные клиента)
type OwnerResolver func(r *http.Request) (string, error)

// Handler - push-канал дашборда поверх WebSocket
type Handler struct {
	manager        *dashboard.Manager
	resolveOwner   OwnerResolver
	originPatterns []string
}

// NewHandler создает обработчик push-канала
func NewHandler(manager *dashboard.Manager, resolve OwnerResolver, originPatterns []string) *Handler {
	return &Handler{
		manager:        manager,
		resolveOwner:   resolve,
		originPatterns: originPatterns,
	}
}

// ServeHTTP принимает подключение, открывает или возобновляет сессию
// и обслуживает её до обрыва
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.resolveOwner(r)
	if err != nil || ownerID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		logger.Warn("⚠️ [WS] не удалось принять подключение: %v", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx := r.Context()
	info, err := h.open(ctx, ownerID, r.URL.Query().Get("session_id"))
	switch {
	case errors.Is(err, types.ErrPushExhausted):
		_ = write(ctx, conn, dashboard.ServerMessage{
			Type:      dashboard.MsgMode,
			SessionID: info.ID,
			Mode:      dashboard.ModePolling,
			Reason:    "push reconnect budget exhausted",
		})
		conn.Close(websocket.StatusNormalClosure, "polling")
		return
	case errors.Is(err, types.ErrForbidden):
		conn.Close(websocket.StatusPolicyViolation, "session belongs to another owner")
		return
	case err != nil:
		logger.Error("❌ [WS] сессия владельца %s не открыта: %v", ownerID, err)
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}

	cfg := h.manager.Config()
	if err := write(ctx, conn, dashboard.ServerMessage{
		Type:              dashboard.MsgSession,
		SessionID:         info.ID,
		Mode:              dashboard.ModePush,
		HeartbeatInterval: cfg.HeartbeatInterval.Milliseconds(),
	}); err != nil {
		h.lost(info, err)
		return
	}

	h.serve(ctx, conn, info)
}

// open возобновляет известную сессию или создает новую
func (h *Handler) open(ctx context.Context, ownerID, sessionID string) (dashboard.SessionInfo, error) {
	if sessionID != "" {
		info, err := h.manager.Resume(ctx, sessionID, ownerID)
		if !errors.Is(err, types.ErrSessionNotFound) {
			return info, err
		}
		logger.Debug("🔍 [WS] сессия %s неизвестна, открываем новую", sessionID)
	}
	return h.manager.Connect(ctx, ownerID, dashboard.ModePush)
}

// serve - цикл записи; чтение выполняет отдельная горутина
func (h *Handler) serve(parent context.Context, conn *websocket.Conn, info dashboard.SessionInfo) {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	go h.readLoop(ctx, cancel, conn, info)

	wake, unwatch := h.manager.Watch()
	defer unwatch()

	ping := time.NewTicker(h.manager.Config().HeartbeatInterval)
	defer ping.Stop()
	flush := time.NewTicker(flushInterval)
	defer flush.Stop()

	if err := h.flush(ctx, conn, info); err != nil {
		h.finish(conn, info, err)
		return
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			h.finish(conn, info, context.Cause(ctx))
			return
		case <-wake:
			err = h.flush(ctx, conn, info)
		case <-flush.C:
			err = h.flush(ctx, conn, info)
		case <-ping.C:
			err = write(ctx, conn, dashboard.ServerMessage{Type: dashboard.MsgPing})
		}
		if err != nil {
			h.finish(conn, info, err)
			return
		}
	}
}

// flush отправляет все неотправленные события сессии
func (h *Handler) flush(ctx context.Context, conn *websocket.Conn, info dashboard.SessionInfo) error {
	batchSize := h.manager.Config().BatchSize
	for {
		d, err := h.manager.Outbound(info.ID, info.Lease)
		if err != nil {
			return err
		}
		if overflow := d.Overflow(); overflow != nil {
			logger.Warn("⚠️ [WS] сессия %s: %v", info.ID, overflow)
			if err := write(ctx, conn, dashboard.ServerMessage{
				Type:   dashboard.MsgBacklogOverflow,
				Missed: d.Missed,
				Seq:    d.Latest,
			}); err != nil {
				return err
			}
		}
		for _, event := range d.Events {
			payload := dashboard.NewPushPayload(event)
			if err := write(ctx, conn, dashboard.ServerMessage{
				Type:  dashboard.MsgEvent,
				Event: &payload,
				Seq:   event.Seq,
			}); err != nil {
				return err
			}
		}
		if len(d.Events) < batchSize {
			return nil
		}
	}
}

// readLoop обрабатывает pong и ack клиента
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelCauseFunc, conn *websocket.Conn, info dashboard.SessionInfo) {
	for {
		var msg dashboard.ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			cancel(err)
			return
		}

		switch msg.Type {
		case dashboard.MsgPong:
			if err := h.manager.Heartbeat(info.ID, info.Lease); err != nil {
				cancel(err)
				return
			}
		case dashboard.MsgAck:
			if err := h.manager.Ack(ctx, info.ID, msg.EventType, msg.Seq); err != nil {
				logger.Warn("⚠️ [WS] ack сессии %s отклонён: %v", info.ID, err)
			}
		default:
			logger.Debug("🔍 [WS] неизвестное сообщение %q от сессии %s", msg.Type, info.ID)
		}
	}
}

// finish закрывает подключение и сообщает менеджеру об обрыве
func (h *Handler) finish(conn *websocket.Conn, info dashboard.SessionInfo, cause error) {
	if errors.Is(cause, types.ErrConnectionLost) {
		// сессию уже переподключили или объявили потерянной по heartbeat
		conn.Close(websocket.StatusPolicyViolation, "connection superseded")
		logger.Info("🔌 [WS] подключение сессии %s вытеснено", info.ID)
		return
	}
	if websocket.CloseStatus(cause) == websocket.StatusNormalClosure {
		// клиент закрыл канал сам: сессия больше не нужна
		if err := h.manager.Disconnect(context.Background(), info.ID); err != nil {
			logger.Debug("🔍 [WS] сессия %s: %v", info.ID, err)
		}
		return
	}
	conn.Close(websocket.StatusGoingAway, "")
	h.lost(info, cause)
}

func (h *Handler) lost(info dashboard.SessionInfo, cause error) {
	status, err := h.manager.ReportConnectionLost(context.Background(), info.ID, info.Lease)
	if err != nil {
		logger.Warn("⚠️ [WS] сессия %s: %v", info.ID, err)
		return
	}
	logger.Info("🔌 [WS] сессия %s отключена (%v), режим %s", info.ID, cause, status.Mode)
}

func write(ctx context.Context, conn *websocket.Conn, msg dashboard.ServerMessage) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, msg)
}
