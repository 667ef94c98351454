// internal/infrastructure/cache/redis/bot_store.go
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"trading-bot-fleet/internal/types"
	storagetypes "trading-bot-fleet/internal/types/storage"

	"github.com/go-redis/redis/v8"
)

var _ storagetypes.BotStore = (*BotStore)(nil)

// BotStore - записи ботов как JSON-документы.
// CompareAndSet выполняется через WATCH/MULTI: конкурентная запись
// срывает транзакцию и превращается в ErrVersionConflict.
type BotStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewBotStore создает хранилище ботов
func NewBotStore(client *redis.Client, prefix string) *BotStore {
	return &BotStore{client: client, prefix: prefix, now: time.Now}
}

func (s *BotStore) botKey(id string) string {
	return s.prefix + "bot:" + id
}

func (s *BotStore) ownerKey(owner string) string {
	return s.prefix + "owner:" + owner
}

func (s *BotStore) statusKey(status types.BotStatus) string {
	return s.prefix + "status:" + string(status)
}

// Get возвращает бота или types.ErrNotFound
func (s *BotStore) Get(ctx context.Context, botID string) (types.Bot, error) {
	data, err := s.client.Get(ctx, s.botKey(botID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Bot{}, types.ErrNotFound
		}
		return types.Bot{}, fmt.Errorf("BotStore.Get: %w", err)
	}
	return decodeBot(data)
}

// Create сохраняет нового бота с версией 1
func (s *BotStore) Create(ctx context.Context, bot types.Bot) (types.Bot, error) {
	stored := bot.Clone()
	stored.Version = 1
	now := s.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	data, err := json.Marshal(stored)
	if err != nil {
		return types.Bot{}, fmt.Errorf("BotStore.Create: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.botKey(stored.ID), data, 0).Result()
	if err != nil {
		return types.Bot{}, fmt.Errorf("BotStore.Create: %w", err)
	}
	if !created {
		return types.Bot{}, types.ErrVersionConflict
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.ownerKey(stored.OwnerID), stored.ID)
		pipe.SAdd(ctx, s.statusKey(stored.Status), stored.ID)
		return nil
	})
	if err != nil {
		return types.Bot{}, fmt.Errorf("BotStore.Create: index: %w", err)
	}
	return stored, nil
}

// CompareAndSet записывает next, если версия в Redis равна expectedVersion
func (s *BotStore) CompareAndSet(ctx context.Context, botID string, expectedVersion int64, next types.Bot) (types.Bot, error) {
	key := s.botKey(botID)
	var stored types.Bot

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return types.ErrNotFound
			}
			return err
		}
		current, err := decodeBot(data)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return types.ErrVersionConflict
		}

		stored = next.Clone()
		stored.ID = botID
		stored.OwnerID = current.OwnerID
		stored.CreatedAt = current.CreatedAt
		stored.Version = current.Version + 1
		stored.UpdatedAt = s.now().UTC()

		payload, err := json.Marshal(stored)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if current.Status != stored.Status {
				pipe.SRem(ctx, s.statusKey(current.Status), botID)
				pipe.SAdd(ctx, s.statusKey(stored.Status), botID)
			}
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return stored, nil
	case errors.Is(err, redis.TxFailedErr):
		return types.Bot{}, types.ErrVersionConflict
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrVersionConflict):
		return types.Bot{}, err
	default:
		return types.Bot{}, fmt.Errorf("BotStore.CompareAndSet: %w", err)
	}
}

// ListByOwner возвращает ботов владельца
func (s *BotStore) ListByOwner(ctx context.Context, ownerID string) ([]types.Bot, error) {
	bots, err := s.loadSet(ctx, s.ownerKey(ownerID))
	if err != nil {
		return nil, fmt.Errorf("BotStore.ListByOwner: %w", err)
	}
	return bots, nil
}

// ListByStatus возвращает ботов в статусе. Индекс статусов обновляется
// в той же транзакции, что и документ, но фильтр повторяется по самому документу.
func (s *BotStore) ListByStatus(ctx context.Context, status types.BotStatus) ([]types.Bot, error) {
	bots, err := s.loadSet(ctx, s.statusKey(status))
	if err != nil {
		return nil, fmt.Errorf("BotStore.ListByStatus: %w", err)
	}
	filtered := bots[:0]
	for _, b := range bots {
		if b.Status == status {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}

func (s *BotStore) loadSet(ctx context.Context, setKey string) ([]types.Bot, error) {
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []types.Bot{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.botKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	bots := make([]types.Bot, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		bot, err := decodeBot([]byte(raw))
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	sort.Slice(bots, func(i, j int) bool {
		if bots[i].CreatedAt.Equal(bots[j].CreatedAt) {
			return bots[i].ID < bots[j].ID
		}
		return bots[i].CreatedAt.Before(bots[j].CreatedAt)
	})
	return bots, nil
}

func decodeBot(data []byte) (types.Bot, error) {
	var bot types.Bot
	if err := json.Unmarshal(data, &bot); err != nil {
		return types.Bot{}, fmt.Errorf("decode bot: %w", err)
	}
	return bot, nil
}
