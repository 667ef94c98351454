// /internal/types/session.go
package types

import (
	"context"
	"time"
)

// SessionRecord - сохраняемое состояние сессии распространения событий
type SessionRecord struct {
	ID                string               `json:"id"`
	OwnerID           string               `json:"owner_id"`
	Mode              string               `json:"mode"`
	Acked             map[EventType]uint64 `json:"acked"`
	Cursor            uint64               `json:"cursor"`
	ReconnectAttempts int                  `json:"reconnect_attempts"`
	NextRetryAt       time.Time            `json:"next_retry_at"`
	LastHeartbeat     time.Time            `json:"last_heartbeat"`
	PushExhausted     bool                 `json:"push_exhausted"`
	CreatedAt         time.Time            `json:"created_at"`
}

// SessionStore - внешнее хранилище сессий, чтобы переподключение переживало рестарт
type SessionStore interface {
	Save(ctx context.Context, record SessionRecord) error
	// Load возвращает запись или ErrSessionNotFound
	Load(ctx context.Context, sessionID string) (SessionRecord, error)
	Delete(ctx context.Context, sessionID string) error
}
