// internal/infrastructure/cache/redis/session_store.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-bot-fleet/internal/types"

	"github.com/go-redis/redis/v8"
)

var _ types.SessionStore = (*SessionStore)(nil)

// SessionStore хранит состояние сессий дашбордов, чтобы переподключение
// переживало рестарт процесса
type SessionStore struct {
	cache      *Cache
	sessionTTL time.Duration
}

// NewSessionStore создает новое хранилище сессий
func NewSessionStore(client *redis.Client, prefix string, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{
		cache:      NewCacheWithClient(client, prefix+"session:"),
		sessionTTL: ttl,
	}
}

// Save сохраняет сессию и продлевает TTL
func (s *SessionStore) Save(ctx context.Context, record types.SessionRecord) error {
	if err := s.cache.Set(ctx, record.ID, record, s.sessionTTL); err != nil {
		return fmt.Errorf("SessionStore.Save: %w", err)
	}
	return nil
}

// Load получает сессию по id
func (s *SessionStore) Load(ctx context.Context, sessionID string) (types.SessionRecord, error) {
	var record types.SessionRecord
	if err := s.cache.Get(ctx, sessionID, &record); err != nil {
		if errors.Is(err, redis.Nil) {
			return types.SessionRecord{}, types.ErrSessionNotFound
		}
		return types.SessionRecord{}, fmt.Errorf("SessionStore.Load: %w", err)
	}
	return record, nil
}

// Delete удаляет сессию
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("SessionStore.Delete: %w", err)
	}
	return nil
}
