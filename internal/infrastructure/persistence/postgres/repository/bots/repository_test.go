package bots_repo

import (
	"context"
	"os"
	"testing"
	"time"

	"trading-bot-fleet/internal/infrastructure/persistence/postgres"
	audit_repo "trading-bot-fleet/internal/infrastructure/persistence/postgres/repository/audit"
	history_repo "trading-bot-fleet/internal/infrastructure/persistence/postgres/repository/history"
	"trading-bot-fleet/internal/types"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDB подключается к FLEET_TEST_POSTGRES_DSN и применяет миграции; без него тесты пропускаются
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("FLEET_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FLEET_TEST_POSTGRES_DSN not set")
	}
	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, postgres.RunMigrations(ctx, db))
	return db
}

// TestBotRepository_CompareAndSet verifies versioned updates and conflict detection
func TestBotRepository_CompareAndSet(t *testing.T) {
	db := testDB(t)
	repo := NewBotRepository(db)
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()
	id := uuid.NewString()

	created, err := repo.Create(ctx, types.Bot{ID: id, OwnerID: owner, Name: "alpha", Exchange: "bybit", Status: types.StatusActive})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	_, err = repo.Create(ctx, types.Bot{ID: id, OwnerID: owner, Status: types.StatusActive})
	assert.ErrorIs(t, err, types.ErrVersionConflict)

	next := created.Clone()
	now := time.Now().UTC().Truncate(time.Second)
	next.Status = types.StatusQuarantined
	next.QuarantineCount = 1
	next.QuarantinedAt = types.TimePtr(now)
	next.RetrainingUntil = types.TimePtr(now.Add(24 * time.Hour))
	next.NextAction = types.NextActionRedeploy

	saved, err := repo.CompareAndSet(ctx, id, 1, next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)
	require.NotNil(t, saved.RetrainingUntil)
	assert.True(t, saved.RetrainingUntil.Equal(now.Add(24*time.Hour)))

	_, err = repo.CompareAndSet(ctx, id, 1, next)
	assert.ErrorIs(t, err, types.ErrVersionConflict)

	_, err = repo.CompareAndSet(ctx, uuid.NewString(), 1, next)
	assert.ErrorIs(t, err, types.ErrNotFound)

	owned, err := repo.ListByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, types.StatusQuarantined, owned[0].Status)

	quarantined, err := repo.ListByStatus(ctx, types.StatusQuarantined)
	require.NoError(t, err)
	var found bool
	for _, b := range quarantined {
		found = found || b.ID == id
	}
	assert.True(t, found)
}

// TestAuditAndHistory verifies audit rows and idempotent transition history
func TestAuditAndHistory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	botID := uuid.NewString()

	audit := audit_repo.NewAuditRepository(db)
	require.NoError(t, audit.Record(ctx, types.AuditEntry{
		BotID: botID, OwnerID: "alice", Action: "pause", Actor: "alice",
		Outcome: types.AuditAccepted, From: types.StatusActive, To: types.StatusPaused,
	}))
	entries, err := audit.ListByBot(ctx, botID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.AuditAccepted, entries[0].Outcome)

	history := history_repo.NewHistoryRepository(db)
	tr := types.TransitionEvent{
		BotID: botID, OwnerID: "alice", From: types.StatusActive, To: types.StatusPaused,
		TriggeredBy: "alice", OccurredAt: time.Now().UTC(),
	}
	eventID := uuid.NewString()
	require.NoError(t, history.Save(ctx, eventID, tr))
	require.NoError(t, history.Save(ctx, eventID, tr))

	list, err := history.ListByBot(ctx, botID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, types.StatusPaused, list[0].To)
}
