package storage

import (
	"context"
	"testing"
	"time"

	"trading-bot-fleet/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBot(id, owner string) types.Bot {
	return types.Bot{ID: id, OwnerID: owner, Name: id, Status: types.StatusActive}
}

// TestInMemory_CreateAndGet verifies created bots start at version 1.
func TestInMemory_CreateAndGet(t *testing.T) {
	s := NewInMemoryBotStorage()
	ctx := context.Background()

	created, err := s.Create(ctx, newBot("b1", "o1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	got, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OwnerID)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// TestInMemory_CompareAndSet verifies version checks on writes.
func TestInMemory_CompareAndSet(t *testing.T) {
	s := NewInMemoryBotStorage()
	ctx := context.Background()
	created, err := s.Create(ctx, newBot("b1", "o1"))
	require.NoError(t, err)

	next := created.Clone()
	next.Status = types.StatusPaused
	stored, err := s.CompareAndSet(ctx, "b1", created.Version, next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, types.StatusPaused, stored.Status)

	// Устаревшая версия
	_, err = s.CompareAndSet(ctx, "b1", created.Version, next)
	assert.ErrorIs(t, err, types.ErrVersionConflict)

	_, err = s.CompareAndSet(ctx, "missing", 1, next)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// TestInMemory_ReturnsCopies verifies callers cannot mutate stored records through pointers.
func TestInMemory_ReturnsCopies(t *testing.T) {
	s := NewInMemoryBotStorage()
	ctx := context.Background()
	bot := newBot("b1", "o1")
	bot.Status = types.StatusQuarantined
	bot.RetrainingUntil = types.TimePtr(time.Unix(100, 0))
	_, err := s.Create(ctx, bot)
	require.NoError(t, err)

	got, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	*got.RetrainingUntil = time.Unix(999, 0)

	again, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(100, 0), *again.RetrainingUntil)
}

// TestInMemory_Listing verifies owner and status projections.
func TestInMemory_Listing(t *testing.T) {
	s := NewInMemoryBotStorage()
	ctx := context.Background()
	for _, b := range []types.Bot{newBot("a", "o1"), newBot("b", "o1"), newBot("c", "o2")} {
		_, err := s.Create(ctx, b)
		require.NoError(t, err)
	}

	owned, err := s.ListByOwner(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	active, err := s.ListByStatus(ctx, types.StatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	paused, err := s.ListByStatus(ctx, types.StatusPaused)
	require.NoError(t, err)
	assert.Empty(t, paused)
}
