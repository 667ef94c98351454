package regeneration

import (
	"context"
	"testing"
	"time"

	"trading-bot-fleet/internal/core/domain/lifecycle"
	memstore "trading-bot-fleet/internal/infrastructure/persistence/in_memory_storage"
	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func deletedBot() types.Bot {
	return types.Bot{
		ID:              "bot-1",
		OwnerID:         "owner-1",
		Name:            "alpha",
		Exchange:        "bybit",
		Status:          types.StatusDeleted,
		QuarantineCount: 4,
		Capital:         1234.5,
		NextAction:      types.NextActionDeleteAndRegenerate,
	}
}

// TestWorkflow_CarriesCapitalAndExchange verifies the default hook keeps capital and exchange.
func TestWorkflow_CarriesCapitalAndExchange(t *testing.T) {
	store := memstore.NewInMemoryBotStorage()
	w := NewWorkflow(store, DefaultConfig(), clock.NewFake(start)).WithIDGenerator(func() string { return "bot-2" })

	bot, err := w.Regenerate(context.Background(), lifecycle.RegenerationRequest{Previous: deletedBot()})
	require.NoError(t, err)
	assert.Equal(t, "bot-2", bot.ID)
	assert.Equal(t, "owner-1", bot.OwnerID)
	assert.Equal(t, "alpha #2", bot.Name)
	assert.Equal(t, "bybit", bot.Exchange)
	assert.Equal(t, 1234.5, bot.Capital)
	assert.Equal(t, types.StatusActive, bot.Status)
	assert.Equal(t, 0, bot.QuarantineCount)
	assert.NoError(t, bot.CheckInvariants())

	stored, err := store.Get(context.Background(), "bot-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

// TestWorkflow_UsesDefaults verifies disabled carry-over falls back to configured defaults.
func TestWorkflow_UsesDefaults(t *testing.T) {
	store := memstore.NewInMemoryBotStorage()
	w := NewWorkflow(store, Config{DefaultCapital: 500, DefaultExchange: "okx"}, nil)

	bot, err := w.Regenerate(context.Background(), lifecycle.RegenerationRequest{Previous: deletedBot()})
	require.NoError(t, err)
	assert.NotEmpty(t, bot.ID)
	assert.NotEqual(t, "bot-1", bot.ID)
	assert.Equal(t, 500.0, bot.Capital)
	assert.Equal(t, "okx", bot.Exchange)
}

// TestWorkflow_RejectsLiveBot verifies only deleted bots are regenerated.
func TestWorkflow_RejectsLiveBot(t *testing.T) {
	w := NewWorkflow(memstore.NewInMemoryBotStorage(), DefaultConfig(), nil)
	prev := deletedBot()
	prev.Status = types.StatusActive

	_, err := w.Regenerate(context.Background(), lifecycle.RegenerationRequest{Previous: prev})
	assert.Error(t, err)
}

// TestNextGenerationName verifies generation suffixes increment.
func TestNextGenerationName(t *testing.T) {
	assert.Equal(t, "alpha #2", nextGenerationName("alpha"))
	assert.Equal(t, "alpha #4", nextGenerationName("alpha #3"))
	assert.Equal(t, "x #y #2", nextGenerationName("x #y"))
	assert.Equal(t, "", nextGenerationName(""))
}

// TestWorkflow_WithEngine verifies the engine regenerates exactly once through the workflow.
func TestWorkflow_WithEngine(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(start)
	store := memstore.NewInMemoryBotStorage().WithClock(c.Now)
	w := NewWorkflow(store, DefaultConfig(), c)

	engine, err := lifecycle.NewEngine(lifecycle.Config{Store: store, Clock: c, Regenerator: w})
	require.NoError(t, err)
	defer engine.Stop()

	_, err = engine.CreateBot(ctx, lifecycle.CreateRequest{ID: "bot-1", OwnerID: "owner-1", Name: "alpha", Exchange: "kraken", Capital: 900})
	require.NoError(t, err)

	var res lifecycle.Result
	for i := 0; i < 4; i++ {
		res, err = engine.RecordFailure(ctx, "bot-1", "drawdown")
		require.NoError(t, err)
		if res.Bot.Status == types.StatusQuarantined {
			c.Set(*res.Bot.RetrainingUntil)
		}
	}

	assert.Equal(t, types.StatusDeleted, res.Bot.Status)
	require.NotNil(t, res.Replacement)
	assert.Equal(t, "kraken", res.Replacement.Exchange)
	assert.Equal(t, 900.0, res.Replacement.Capital)

	owned, err := store.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}
