// /internal/infrastructure/persistence/postgres/repository/bots/repository.go
package bots_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trading-bot-fleet/internal/infrastructure/persistence/postgres/models"
	"trading-bot-fleet/internal/types"
	storagetypes "trading-bot-fleet/internal/types/storage"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var _ storagetypes.BotStore = (*BotRepository)(nil)

// BotRepository - хранилище ботов в PostgreSQL.
// CompareAndSet - UPDATE с условием по версии; ноль затронутых строк
// означает либо отсутствие бота, либо чужую запись между чтением и записью.
type BotRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewBotRepository создаёт репозиторий ботов
func NewBotRepository(db *sqlx.DB) *BotRepository {
	return &BotRepository{db: db, now: time.Now}
}

// Get возвращает бота или types.ErrNotFound
func (r *BotRepository) Get(ctx context.Context, botID string) (types.Bot, error) {
	var row models.Bot
	err := r.db.GetContext(ctx, &row, `SELECT `+models.BotColumns+` FROM bots WHERE id = $1`, botID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Bot{}, types.ErrNotFound
		}
		return types.Bot{}, fmt.Errorf("BotRepo.Get: %w", err)
	}
	return row.ToBot(), nil
}

// Create вставляет бота с версией 1; дубликат id - types.ErrVersionConflict
func (r *BotRepository) Create(ctx context.Context, bot types.Bot) (types.Bot, error) {
	stored := bot.Clone()
	stored.Version = 1
	now := r.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	query := `
		INSERT INTO bots (id, owner_id, name, exchange, status, quarantine_count, quarantined_at,
			retraining_until, pause_reason, paused_from, next_action, admin_override, override_by,
			capital, cumulative_profit, trade_count, win_count, loss_count, version, created_at, updated_at)
		VALUES (:id, :owner_id, :name, :exchange, :status, :quarantine_count, :quarantined_at,
			:retraining_until, :pause_reason, :paused_from, :next_action, :admin_override, :override_by,
			:capital, :cumulative_profit, :trade_count, :win_count, :loss_count, :version, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, models.FromBot(stored)); err != nil {
		if isUniqueViolation(err) {
			return types.Bot{}, types.ErrVersionConflict
		}
		return types.Bot{}, fmt.Errorf("BotRepo.Create: %w", err)
	}
	return stored, nil
}

// CompareAndSet обновляет запись, если её версия равна expectedVersion
func (r *BotRepository) CompareAndSet(ctx context.Context, botID string, expectedVersion int64, next types.Bot) (types.Bot, error) {
	stored := next.Clone()
	stored.ID = botID
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = r.now().UTC()

	row := models.FromBot(stored)
	query := `
		UPDATE bots SET
			name = :name, exchange = :exchange, status = :status,
			quarantine_count = :quarantine_count, quarantined_at = :quarantined_at,
			retraining_until = :retraining_until, pause_reason = :pause_reason,
			paused_from = :paused_from, next_action = :next_action,
			admin_override = :admin_override, override_by = :override_by,
			version = :version, updated_at = :updated_at
		WHERE id = :id AND version = :expected_version
		RETURNING ` + models.BotColumns

	named, args, err := sqlx.Named(query, struct {
		models.Bot
		ExpectedVersion int64 `db:"expected_version"`
	}{*row, expectedVersion})
	if err != nil {
		return types.Bot{}, fmt.Errorf("BotRepo.CompareAndSet: %w", err)
	}

	var updated models.Bot
	err = r.db.GetContext(ctx, &updated, r.db.Rebind(named), args...)
	if err == nil {
		return updated.ToBot(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.Bot{}, fmt.Errorf("BotRepo.CompareAndSet: %w", err)
	}

	// Ни одна строка не обновилась: различаем отсутствие и конфликт версий
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM bots WHERE id = $1)`, botID); err != nil {
		return types.Bot{}, fmt.Errorf("BotRepo.CompareAndSet: %w", err)
	}
	if !exists {
		return types.Bot{}, types.ErrNotFound
	}
	return types.Bot{}, types.ErrVersionConflict
}

// ListByOwner возвращает ботов владельца по времени создания
func (r *BotRepository) ListByOwner(ctx context.Context, ownerID string) ([]types.Bot, error) {
	bots, err := r.list(ctx, `SELECT `+models.BotColumns+` FROM bots WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("BotRepo.ListByOwner: %w", err)
	}
	return bots, nil
}

// ListByStatus возвращает ботов в статусе
func (r *BotRepository) ListByStatus(ctx context.Context, status types.BotStatus) ([]types.Bot, error) {
	bots, err := r.list(ctx, `SELECT `+models.BotColumns+` FROM bots WHERE status = $1 ORDER BY created_at, id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("BotRepo.ListByStatus: %w", err)
	}
	return bots, nil
}

func (r *BotRepository) list(ctx context.Context, query string, arg interface{}) ([]types.Bot, error) {
	var rows []models.Bot
	if err := r.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, err
	}
	bots := make([]types.Bot, 0, len(rows))
	for i := range rows {
		bots = append(bots, rows[i].ToBot())
	}
	return bots, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
