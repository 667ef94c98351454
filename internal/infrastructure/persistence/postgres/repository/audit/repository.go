// /internal/infrastructure/persistence/postgres/repository/audit/repository.go
package audit_repo

import (
	"context"
	"fmt"
	"time"

	"trading-bot-fleet/internal/types"

	"github.com/jmoiron/sqlx"
)

var _ types.AuditLog = (*AuditRepository)(nil)

// AuditRepository - журнал аудита в таблице bot_audit
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository создаёт репозиторий аудита
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record добавляет запись аудита
func (r *AuditRepository) Record(ctx context.Context, entry types.AuditEntry) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	query := `
		INSERT INTO bot_audit (bot_id, owner_id, action, actor, outcome, from_status, to_status, reason, error, created_at)
		VALUES (:bot_id, :owner_id, :action, :actor, :outcome, :from_status, :to_status, :reason, :error, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("AuditRepo.Record: %w", err)
	}
	return nil
}

// ListByBot возвращает последние записи по боту, новые первыми
func (r *AuditRepository) ListByBot(ctx context.Context, botID string, limit int) ([]types.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT bot_id, owner_id, action, actor, outcome, from_status, to_status, reason, error, created_at
		FROM bot_audit
		WHERE bot_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	var entries []types.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, botID, limit); err != nil {
		return nil, fmt.Errorf("AuditRepo.ListByBot: %w", err)
	}
	return entries, nil
}
