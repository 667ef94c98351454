// internal/infrastructure/persistence/in_memory_storage/bot_storage.go
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"trading-bot-fleet/internal/types"
	storagetypes "trading-bot-fleet/internal/types/storage"
)

var _ storagetypes.BotStore = (*InMemoryBotStorage)(nil)

// InMemoryBotStorage - хранилище ботов в памяти с версионированием записей
type InMemoryBotStorage struct {
	mu      sync.RWMutex
	bots    map[string]types.Bot
	byOwner map[string]map[string]struct{}
	now     func() time.Time
}

// NewInMemoryBotStorage создает пустое хранилище
func NewInMemoryBotStorage() *InMemoryBotStorage {
	return &InMemoryBotStorage{
		bots:    make(map[string]types.Bot),
		byOwner: make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// WithClock подменяет источник времени для UpdatedAt
func (s *InMemoryBotStorage) WithClock(now func() time.Time) *InMemoryBotStorage {
	s.now = now
	return s
}

func (s *InMemoryBotStorage) Get(_ context.Context, botID string) (types.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bot, ok := s.bots[botID]
	if !ok {
		return types.Bot{}, types.ErrNotFound
	}
	return bot.Clone(), nil
}

func (s *InMemoryBotStorage) CompareAndSet(_ context.Context, botID string, expectedVersion int64, next types.Bot) (types.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.bots[botID]
	if !ok {
		return types.Bot{}, types.ErrNotFound
	}
	if current.Version != expectedVersion {
		return types.Bot{}, types.ErrVersionConflict
	}

	stored := next.Clone()
	stored.ID = botID
	stored.OwnerID = current.OwnerID
	stored.CreatedAt = current.CreatedAt
	stored.Version = current.Version + 1
	stored.UpdatedAt = s.now()
	s.bots[botID] = stored
	return stored.Clone(), nil
}

func (s *InMemoryBotStorage) Create(_ context.Context, bot types.Bot) (types.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bots[bot.ID]; exists {
		return types.Bot{}, types.ErrVersionConflict
	}

	stored := bot.Clone()
	stored.Version = 1
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.bots[stored.ID] = stored

	if _, ok := s.byOwner[stored.OwnerID]; !ok {
		s.byOwner[stored.OwnerID] = make(map[string]struct{})
	}
	s.byOwner[stored.OwnerID][stored.ID] = struct{}{}
	return stored.Clone(), nil
}

func (s *InMemoryBotStorage) ListByOwner(_ context.Context, ownerID string) ([]types.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]types.Bot, 0, len(s.byOwner[ownerID]))
	for id := range s.byOwner[ownerID] {
		items = append(items, s.bots[id].Clone())
	}
	sortBots(items)
	return items, nil
}

func (s *InMemoryBotStorage) ListByStatus(_ context.Context, status types.BotStatus) ([]types.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []types.Bot
	for _, bot := range s.bots {
		if bot.Status == status {
			items = append(items, bot.Clone())
		}
	}
	sortBots(items)
	return items, nil
}

// Len возвращает количество записей (включая удалённые)
func (s *InMemoryBotStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bots)
}

func sortBots(items []types.Bot) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
