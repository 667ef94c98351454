// internal/delivery/dashboard/session.go
package dashboard

import (
	"time"

	events "trading-bot-fleet/internal/infrastructure/transport/event_bus"
	"trading-bot-fleet/internal/types"
)

// SessionInfo - снимок состояния сессии для вызывающих
type SessionInfo struct {
	ID                string                     `json:"session_id"`
	OwnerID           string                     `json:"owner_id"`
	Mode              TransportMode              `json:"mode"`
	Acked             map[types.EventType]uint64 `json:"acked"`
	Cursor            uint64                     `json:"cursor"`
	Unacked           int                        `json:"unacked"`
	ReconnectAttempts int                        `json:"reconnect_attempts"`
	NextRetryAt       time.Time                  `json:"next_retry_at,omitempty"`
	LastHeartbeat     time.Time                  `json:"last_heartbeat,omitempty"`
	PushExhausted     bool                       `json:"push_exhausted"`
	// Lease - поколение push-подключения; устаревшее подключение не может менять сессию
	Lease uint64 `json:"-"`
}

// session - изменяемое состояние; доступ только под блокировкой менеджера
type session struct {
	id      string
	ownerID string
	mode    TransportMode

	acked map[types.EventType]uint64
	lease uint64

	// seen - все события шины до этого номера просмотрены; нужные сессии лежат в inflight
	seen uint64
	// inflight - выданные, но не подтверждённые события в порядке номеров
	inflight []types.Event
	// unsent - граница inflight, до которой события уже отправлены текущему push-подключению
	unsent int
	// missed - потерянные события, о которых клиенту ещё не сообщили
	missed uint64

	reconnectAttempts int
	nextRetryAt       time.Time
	lastHeartbeat     time.Time
	pushExhausted     bool
	awaitingHeartbeat bool
	lastActivity      time.Time
	createdAt         time.Time
}

func newSession(id, ownerID string, mode TransportMode, tracked []types.EventType, cursor uint64, now time.Time) *session {
	acked := make(map[types.EventType]uint64, len(tracked))
	for _, et := range tracked {
		acked[et] = cursor
	}
	return &session{
		id:            id,
		ownerID:       ownerID,
		mode:          mode,
		acked:         acked,
		seen:          cursor,
		lastHeartbeat: now,
		lastActivity:  now,
		createdAt:     now,
	}
}

func sessionFromRecord(rec types.SessionRecord, tracked []types.EventType) *session {
	s := &session{
		id:                rec.ID,
		ownerID:           rec.OwnerID,
		mode:              TransportMode(rec.Mode),
		acked:             make(map[types.EventType]uint64, len(tracked)),
		reconnectAttempts: rec.ReconnectAttempts,
		nextRetryAt:       rec.NextRetryAt,
		lastHeartbeat:     rec.LastHeartbeat,
		lastActivity:      rec.LastHeartbeat,
		pushExhausted:     rec.PushExhausted,
		createdAt:         rec.CreatedAt,
	}
	if !s.mode.Valid() {
		s.mode = ModeDisconnected
	}
	for _, et := range tracked {
		s.acked[et] = rec.Acked[et]
	}
	s.seen = rec.Cursor
	if s.seen == 0 {
		s.seen = s.minAcked()
	}
	return s
}

// transition меняет режим по таблице допустимых переходов
func (s *session) transition(to TransportMode) error {
	if s.mode == to {
		return nil
	}
	if !s.mode.CanTransition(to, s.pushExhausted) {
		return &ModeTransitionError{From: s.mode, To: to}
	}
	s.mode = to
	return nil
}

// minAcked - наименьший подтверждённый номер среди отслеживаемых типов
func (s *session) minAcked() uint64 {
	first := true
	var min uint64
	for _, seq := range s.acked {
		if first || seq < min {
			min, first = seq, false
		}
	}
	return min
}

// cursor - номер, до которого все нужные сессии события подтверждены или учтены как потерянные
func (s *session) cursor() uint64 {
	if len(s.inflight) > 0 {
		return s.inflight[0].Seq - 1
	}
	return s.seen
}

// scan дочитывает шину после seen и складывает нужные события в inflight.
// Вытесненные из буфера до просмотра события копятся в missed.
func (s *session) scan(source EventSource, limit int) events.Batch {
	batch := source.Since(s.seen, s.wants, limit)
	s.seen = batch.Next
	s.missed += batch.Missed
	s.inflight = append(s.inflight, batch.Events...)
	return batch
}

// trim ограничивает inflight; самые старые неподтверждённые события считаются потерянными
func (s *session) trim(max int) {
	if max <= 0 || len(s.inflight) <= max {
		return
	}
	drop := len(s.inflight) - max
	s.inflight = append([]types.Event(nil), s.inflight[drop:]...)
	s.missed += uint64(drop)
	s.unsent -= drop
	if s.unsent < 0 {
		s.unsent = 0
	}
}

// ack снимает из inflight события типа eventType с номером не больше seq
func (s *session) ack(eventType types.EventType, seq uint64) {
	s.acked[eventType] = seq
	kept := s.inflight[:0]
	for i, ev := range s.inflight {
		if ev.Type == eventType && ev.Seq <= seq {
			if i < s.unsent {
				s.unsent--
			}
			continue
		}
		kept = append(kept, ev)
	}
	s.inflight = kept
}

// takeMissed возвращает и сбрасывает счётчик потерь
func (s *session) takeMissed() uint64 {
	missed := s.missed
	s.missed = 0
	return missed
}

// wants - событие принадлежит владельцу сессии и ещё не подтверждено
func (s *session) wants(event types.Event) bool {
	if event.OwnerID != s.ownerID {
		return false
	}
	acked, tracked := s.acked[event.Type]
	return tracked && event.Seq > acked
}

func (s *session) info() SessionInfo {
	acked := make(map[types.EventType]uint64, len(s.acked))
	for k, v := range s.acked {
		acked[k] = v
	}
	return SessionInfo{
		ID:                s.id,
		OwnerID:           s.ownerID,
		Mode:              s.mode,
		Acked:             acked,
		Cursor:            s.cursor(),
		Unacked:           len(s.inflight),
		ReconnectAttempts: s.reconnectAttempts,
		NextRetryAt:       s.nextRetryAt,
		LastHeartbeat:     s.lastHeartbeat,
		PushExhausted:     s.pushExhausted,
		Lease:             s.lease,
	}
}

func (s *session) record() types.SessionRecord {
	info := s.info()
	return types.SessionRecord{
		ID:                info.ID,
		OwnerID:           info.OwnerID,
		Mode:              string(info.Mode),
		Acked:             info.Acked,
		Cursor:            info.Cursor,
		ReconnectAttempts: info.ReconnectAttempts,
		NextRetryAt:       info.NextRetryAt,
		LastHeartbeat:     info.LastHeartbeat,
		PushExhausted:     info.PushExhausted,
		CreatedAt:         s.createdAt,
	}
}
