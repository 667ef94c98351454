// internal/delivery/dashboard/payload.go
package dashboard

import (
	"time"

	"trading-bot-fleet/internal/types"
)

// Типы сообщений push-канала
const (
	MsgSession         = "session"
	MsgEvent           = "event"
	MsgBacklogOverflow = "backlog_overflow"
	MsgPing            = "ping"
	MsgMode            = "mode"

	MsgPong = "pong"
	MsgAck  = "ack"
)

// PushPayload - событие жизненного цикла в том виде, в каком его видит дашборд
type PushPayload struct {
	EventID         string          `json:"event_id"`
	Seq             uint64          `json:"seq"`
	Type            types.EventType `json:"type"`
	BotID           string          `json:"bot_id"`
	BotName         string          `json:"bot_name"`
	Status          types.BotStatus `json:"status"`
	PreviousStatus  types.BotStatus `json:"previous_status,omitempty"`
	QuarantineCount int             `json:"quarantine_count"`
	RetrainingUntil *time.Time      `json:"retraining_until,omitempty"`
	NextAction      string          `json:"next_action,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	TriggeredBy     string          `json:"triggered_by,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// NewPushPayload строит полезную нагрузку из события шины
func NewPushPayload(event types.Event) PushPayload {
	p := PushPayload{
		EventID:    event.ID,
		Seq:        event.Seq,
		Type:       event.Type,
		BotID:      event.BotID,
		OccurredAt: event.Timestamp,
	}
	if tr, ok := event.Data.(types.TransitionEvent); ok {
		p.BotName = tr.BotName
		p.Status = tr.To
		p.PreviousStatus = tr.From
		p.QuarantineCount = tr.QuarantineCount
		p.RetrainingUntil = tr.RetrainingUntil
		p.NextAction = string(tr.NextAction)
		p.Reason = tr.Reason
		p.TriggeredBy = tr.TriggeredBy
		p.OccurredAt = tr.OccurredAt
	}
	return p
}

// ServerMessage - сообщение сервера клиенту
type ServerMessage struct {
	Type              string        `json:"type"`
	SessionID         string        `json:"session_id,omitempty"`
	Mode              TransportMode `json:"mode,omitempty"`
	HeartbeatInterval int64         `json:"heartbeat_interval_ms,omitempty"`
	Event             *PushPayload  `json:"event,omitempty"`
	Missed            uint64        `json:"missed,omitempty"`
	Seq               uint64        `json:"seq,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}

// ClientMessage - сообщение клиента серверу
type ClientMessage struct {
	Type      string          `json:"type"`
	EventType types.EventType `json:"event_type,omitempty"`
	Seq       uint64          `json:"seq,omitempty"`
}
