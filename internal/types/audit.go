// /internal/types/audit.go
package types

import (
	"context"
	"time"
)

// AuditOutcome - результат вызова, попавший в журнал аудита
type AuditOutcome string

const (
	AuditAccepted AuditOutcome = "accepted"
	AuditNoop     AuditOutcome = "noop"
	AuditRejected AuditOutcome = "rejected"
)

// AuditEntry - запись аудита о вызове с идентичностью инициатора
type AuditEntry struct {
	BotID   string       `json:"bot_id" db:"bot_id"`
	OwnerID string       `json:"owner_id" db:"owner_id"`
	Action  string       `json:"action" db:"action"`
	Actor   string       `json:"actor" db:"actor"`
	Outcome AuditOutcome `json:"outcome" db:"outcome"`
	From    BotStatus    `json:"from_status" db:"from_status"`
	To      BotStatus    `json:"to_status" db:"to_status"`
	Reason  string       `json:"reason" db:"reason"`
	Error   string       `json:"error,omitempty" db:"error"`
	At      time.Time    `json:"at" db:"created_at"`
}

// AuditLog - внешний журнал аудита
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
}
