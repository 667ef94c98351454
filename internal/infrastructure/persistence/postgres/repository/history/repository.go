// /internal/infrastructure/persistence/postgres/repository/history/repository.go
package history_repo

import (
	"context"
	"fmt"

	"trading-bot-fleet/internal/infrastructure/persistence/postgres/models"
	"trading-bot-fleet/internal/types"

	"github.com/jmoiron/sqlx"
)

// HistoryRepository - история переходов жизненного цикла
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository создаёт репозиторий истории
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Save сохраняет переход; повторная доставка того же события игнорируется
func (r *HistoryRepository) Save(ctx context.Context, eventID string, t types.TransitionEvent) error {
	query := `
		INSERT INTO bot_transitions (event_id, bot_id, owner_id, from_status, to_status, reason,
			triggered_by, quarantine_count, retraining_until, next_action, occurred_at)
		VALUES (:event_id, :bot_id, :owner_id, :from_status, :to_status, :reason,
			:triggered_by, :quarantine_count, :retraining_until, :next_action, :occurred_at)
		ON CONFLICT (event_id) DO NOTHING
	`
	if _, err := r.db.NamedExecContext(ctx, query, models.FromTransition(eventID, t)); err != nil {
		return fmt.Errorf("HistoryRepo.Save: %w", err)
	}
	return nil
}

// ListByBot возвращает переходы бота в хронологическом порядке
func (r *HistoryRepository) ListByBot(ctx context.Context, botID string, limit int) ([]types.TransitionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, bot_id, owner_id, from_status, to_status, reason, triggered_by,
			quarantine_count, retraining_until, next_action, occurred_at
		FROM bot_transitions
		WHERE bot_id = $1
		ORDER BY occurred_at, event_id
		LIMIT $2
	`
	var rows []models.Transition
	if err := r.db.SelectContext(ctx, &rows, query, botID, limit); err != nil {
		return nil, fmt.Errorf("HistoryRepo.ListByBot: %w", err)
	}
	out := make([]types.TransitionEvent, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToTransition())
	}
	return out, nil
}
