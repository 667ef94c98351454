// internal/types/storage/storage.go
package storage

import (
	"context"
	"time"

	"trading-bot-fleet/internal/types"
)

// StorageConfig - конфигурация хранилища
type StorageConfig struct {
	Type      string        `json:"type"` // "memory", "redis", "postgres"
	KeyPrefix string        `json:"key_prefix"`
	TTL       time.Duration `json:"ttl"`
}

// BotStore - адаптер документного хранилища записей ботов.
// CompareAndSet атомарен: запись применяется только если текущая версия равна expectedVersion.
type BotStore interface {
	// Get возвращает бота или types.ErrNotFound
	Get(ctx context.Context, botID string) (types.Bot, error)

	// CompareAndSet записывает next, если версия совпала; возвращает сохранённую запись
	// с увеличенной версией или types.ErrVersionConflict
	CompareAndSet(ctx context.Context, botID string, expectedVersion int64, next types.Bot) (types.Bot, error)

	// Create сохраняет нового бота с версией 1
	Create(ctx context.Context, bot types.Bot) (types.Bot, error)

	// ListByOwner возвращает ботов владельца (включая удалённых)
	ListByOwner(ctx context.Context, ownerID string) ([]types.Bot, error)

	// ListByStatus возвращает ботов в указанном статусе
	ListByStatus(ctx context.Context, status types.BotStatus) ([]types.Bot, error)
}

// QueryOptions - опции выборки истории
type QueryOptions struct {
	FromTime time.Time `json:"from_time,omitempty"`
	ToTime   time.Time `json:"to_time,omitempty"`
	Limit    int       `json:"limit,omitempty"`
	Offset   int       `json:"offset,omitempty"`
}
