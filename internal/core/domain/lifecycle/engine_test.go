package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"trading-bot-fleet/internal/core/domain/quarantine"
	memstore "trading-bot-fleet/internal/infrastructure/persistence/in_memory_storage"
	"trading-bot-fleet/internal/types"
	storagetypes "trading-bot-fleet/internal/types/storage"
	"trading-bot-fleet/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.Event
}

func (p *recordingPublisher) Publish(event types.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) transitions(botID string) []types.TransitionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []types.TransitionEvent
	for _, ev := range p.events {
		if ev.Type != types.EventBotTransition || ev.BotID != botID {
			continue
		}
		out = append(out, ev.Data.(types.TransitionEvent))
	}
	return out
}

func (p *recordingPublisher) count(eventType types.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []types.AuditEntry
}

func (a *recordingAudit) Record(_ context.Context, entry types.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

type countingRegenerator struct {
	mu    sync.Mutex
	calls []RegenerationRequest
	store storagetypes.BotStore
}

func (r *countingRegenerator) Regenerate(ctx context.Context, req RegenerationRequest) (types.Bot, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	n := len(r.calls)
	r.mu.Unlock()

	return r.store.Create(ctx, types.Bot{
		ID:       fmt.Sprintf("%s-regen-%d", req.Previous.ID, n),
		OwnerID:  req.Previous.OwnerID,
		Name:     req.Previous.Name,
		Exchange: req.Previous.Exchange,
		Status:   types.StatusActive,
		Capital:  req.Previous.Capital,
	})
}

type fixture struct {
	engine *Engine
	clock  *clock.Fake
	store  *memstore.InMemoryBotStorage
	pub    *recordingPublisher
	audit  *recordingAudit
	regen  *countingRegenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := clock.NewFake(t0)
	store := memstore.NewInMemoryBotStorage().WithClock(c.Now)
	f := &fixture{
		clock: c,
		store: store,
		pub:   &recordingPublisher{},
		audit: &recordingAudit{},
		regen: &countingRegenerator{store: store},
	}
	engine, err := NewEngine(Config{
		Store:       store,
		Policy:      quarantine.DefaultPolicy(),
		Clock:       c,
		Publisher:   f.pub,
		Regenerator: f.regen,
		Audit:       f.audit,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Stop)
	f.engine = engine
	return f
}

func (f *fixture) seed(t *testing.T, bot types.Bot) types.Bot {
	t.Helper()
	if bot.OwnerID == "" {
		bot.OwnerID = "owner-1"
	}
	if bot.Status == "" {
		bot.Status = types.StatusActive
	}
	if bot.Exchange == "" {
		bot.Exchange = "binance"
	}
	created, err := f.store.Create(context.Background(), bot)
	require.NoError(t, err)
	return created
}

func (f *fixture) get(t *testing.T, id string) types.Bot {
	t.Helper()
	bot, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return bot
}

// TestNewEngine_RequiresStore verifies construction fails without a store.
func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine(Config{})
	assert.Error(t, err)
}

// TestEngine_FirstFailureQuarantinesForOneHour covers a first failure followed by redeploy at expiry.
func TestEngine_FirstFailureQuarantinesForOneHour(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1", Name: "alpha"})

	res, err := f.engine.RecordFailure(ctx, "bot-1", "drawdown")
	require.NoError(t, err)
	assert.Equal(t, types.StatusQuarantined, res.Bot.Status)
	assert.Equal(t, 1, res.Bot.QuarantineCount)
	require.NotNil(t, res.Bot.RetrainingUntil)
	assert.Equal(t, t0.Add(time.Hour), *res.Bot.RetrainingUntil)
	assert.Equal(t, types.NextActionRedeploy, res.Bot.NextAction)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, types.StatusActive, res.Transitions[0].From)
	assert.Equal(t, types.StatusQuarantined, res.Transitions[0].To)

	tradable, err := f.engine.CanTrade(ctx, "bot-1")
	require.NoError(t, err)
	assert.False(t, tradable)

	deadline, ok := f.engine.ScheduledExpiry("bot-1")
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour), deadline)

	f.clock.Advance(59 * time.Minute)
	assert.Equal(t, types.StatusQuarantined, f.get(t, "bot-1").Status)

	f.clock.Advance(time.Minute)
	bot := f.get(t, "bot-1")
	assert.Equal(t, types.StatusActive, bot.Status)
	assert.Equal(t, 1, bot.QuarantineCount)
	assert.Nil(t, bot.RetrainingUntil)
	assert.Empty(t, bot.PauseReason)
	assert.Equal(t, types.NextActionNone, bot.NextAction)
	require.NotNil(t, bot.QuarantinedAt)
	assert.True(t, bot.CanTrade())

	events := f.pub.transitions("bot-1")
	require.Len(t, events, 2)
	assert.Equal(t, types.StatusActive, events[1].To)
	assert.Equal(t, ActorSystem, events[1].TriggeredBy)
}

// TestEngine_EscalatingWindows walks the 1h, 3h and 24h quarantine windows.
func TestEngine_EscalatingWindows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1"})

	for i, window := range []time.Duration{time.Hour, 3 * time.Hour, 24 * time.Hour} {
		res, err := f.engine.RecordFailure(ctx, "bot-1", "loss streak")
		require.NoError(t, err)
		assert.Equal(t, i+1, res.Bot.QuarantineCount)
		require.NotNil(t, res.Bot.RetrainingUntil)
		assert.Equal(t, f.clock.Now().Add(window), *res.Bot.RetrainingUntil, "attempt %d", i+1)

		f.clock.Advance(window)
		assert.Equal(t, types.StatusActive, f.get(t, "bot-1").Status)
	}
}

// TestEngine_FourthFailureDeletesAndRegenerates covers the terminal quarantine attempt.
func TestEngine_FourthFailureDeletesAndRegenerates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1", QuarantineCount: 3, Capital: 2500})

	res, err := f.engine.RecordFailure(ctx, "bot-1", "drawdown")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeleted, res.Bot.Status)
	assert.Equal(t, 4, res.Bot.QuarantineCount)
	assert.Equal(t, types.NextActionDeleteAndRegenerate, res.Bot.NextAction)
	assert.Nil(t, res.Bot.RetrainingUntil)

	require.NotNil(t, res.Replacement)
	assert.Equal(t, types.StatusActive, res.Replacement.Status)
	assert.Equal(t, 0, res.Replacement.QuarantineCount)
	assert.Equal(t, 2500.0, res.Replacement.Capital)
	assert.Len(t, f.regen.calls, 1)
	assert.Equal(t, 1, f.pub.count(types.EventBotCreated))

	_, ok := f.engine.ScheduledExpiry("bot-1")
	assert.False(t, ok)

	_, err = f.engine.RecordFailure(ctx, "bot-1", "again")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Len(t, f.regen.calls, 1)
}

// TestEngine_ResumeFromQuarantineRejected verifies quarantine cannot be left by resume.
func TestEngine_ResumeFromQuarantineRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1"})

	_, err := f.engine.RecordFailure(ctx, "bot-1", "drawdown")
	require.NoError(t, err)
	before := f.get(t, "bot-1")
	published := len(f.pub.transitions("bot-1"))

	_, err = f.engine.RequestResume(ctx, "bot-1", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	var inv *types.InvalidTransitionError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, types.StatusQuarantined, inv.From)

	assert.Equal(t, before, f.get(t, "bot-1"))
	assert.Len(t, f.pub.transitions("bot-1"), published)

	last := f.audit.entries[len(f.audit.entries)-1]
	assert.Equal(t, types.AuditRejected, last.Outcome)
	assert.Equal(t, "user-1", last.Actor)
}

// TestEngine_PauseIsIdempotent verifies a repeated pause succeeds without a second event.
func TestEngine_PauseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1"})

	first, err := f.engine.RequestPause(ctx, "bot-1", "manual", "user-1")
	require.NoError(t, err)
	assert.False(t, first.AlreadyInState)
	assert.Equal(t, types.StatusPaused, first.Bot.Status)

	second, err := f.engine.RequestPause(ctx, "bot-1", "manual", "user-1")
	require.NoError(t, err)
	assert.True(t, second.AlreadyInState)
	assert.Empty(t, second.Transitions)
	assert.Equal(t, first.Bot.Version, second.Bot.Version)

	assert.Len(t, f.pub.transitions("bot-1"), 1)
}

// TestEngine_ResumeRestoresLive verifies resume returns a paused live bot to live.
func TestEngine_ResumeRestoresLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1"})

	_, err := f.engine.AdminOverrideLive(ctx, "bot-1", "admin-1")
	require.NoError(t, err)
	_, err = f.engine.RequestPause(ctx, "bot-1", "manual", "user-1")
	require.NoError(t, err)

	res, err := f.engine.RequestResume(ctx, "bot-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusLive, res.Bot.Status)
	assert.Empty(t, res.Bot.PausedFrom)
	assert.Empty(t, res.Bot.PauseReason)

	again, err := f.engine.RequestResume(ctx, "bot-1", "user-1")
	require.NoError(t, err)
	assert.True(t, again.AlreadyInState)
}

// TestEngine_PauseDuringQuarantineCancelsTimer verifies pausing suspends retraining without bypassing it.
func TestEngine_PauseDuringQuarantineCancelsTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1"})
	f.seed(t, types.Bot{ID: "bot-2"})

	_, err := f.engine.RecordFailure(ctx, "bot-1", "drawdown")
	require.NoError(t, err)
	_, err = f.engine.RecordFailure(ctx, "bot-2", "drawdown")
	require.NoError(t, err)

	res, err := f.engine.RequestPause(ctx, "bot-1", "investigate", "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPaused, res.Bot.Status)
	assert.Equal(t, types.StatusQuarantined, res.Bot.PausedFrom)
	assert.Nil(t, res.Bot.RetrainingUntil)
	_, ok := f.engine.ScheduledExpiry("bot-1")
	assert.False(t, ok)

	// resume inside the window re-enters quarantine with the original deadline
	_, err = f.engine.RequestPause(ctx, "bot-2", "investigate", "user-1")
	require.NoError(t, err)
	f.clock.Advance(20 * time.Minute)
	res, err = f.engine.RequestResume(ctx, "bot-2", "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusQuarantined, res.Bot.Status)
	require.NotNil(t, res.Bot.RetrainingUntil)
	assert.Equal(t, t0.Add(time.Hour), *res.Bot.RetrainingUntil)
	deadline, ok := f.engine.ScheduledExpiry("bot-2")
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour), deadline)

	f.clock.Advance(2 * time.Hour)
	assert.Equal(t, types.StatusPaused, f.get(t, "bot-1").Status)
	assert.Equal(t, types.StatusActive, f.get(t, "bot-2").Status)

	// resume after the window has passed goes straight to active
	res, err = f.engine.RequestResume(ctx, "bot-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, res.Bot.Status)
	assert.Equal(t, 1, res.Bot.QuarantineCount)
}

// TestEngine_FailureWhileQuarantinedReschedules verifies a re-quarantine supersedes the earlier timer.
func TestEngine_FailureWhileQuarantinedReschedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1"})

	_, err := f.engine.RecordFailure(ctx, "bot-1", "first")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)

	res, err := f.engine.RecordFailure(ctx, "bot-1", "second")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Bot.QuarantineCount)
	assert.Equal(t, f.clock.Now().Add(3*time.Hour), *res.Bot.RetrainingUntil)

	f.clock.Advance(time.Hour)
	assert.Equal(t, types.StatusQuarantined, f.get(t, "bot-1").Status)

	f.clock.Advance(2 * time.Hour)
	assert.Equal(t, types.StatusActive, f.get(t, "bot-1").Status)
}

// TestEngine_StaleExpiryIsNoop verifies an expiry before the deadline changes nothing.
func TestEngine_StaleExpiryIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1"})

	_, err := f.engine.RecordFailure(ctx, "bot-1", "drawdown")
	require.NoError(t, err)
	before := f.get(t, "bot-1")

	expired, err := f.engine.expire(ctx, "bot-1", t0.Add(10*time.Minute), "timer")
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, before, f.get(t, "bot-1"))

	expired, err = f.engine.expire(ctx, "missing", t0, "timer")
	require.NoError(t, err)
	assert.False(t, expired)
}

// TestEngine_TickExpiresDueBots verifies the sweep redeploys bots whose windows ended.
func TestEngine_TickExpiresDueBots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{
		ID: "due", Status: types.StatusQuarantined, QuarantineCount: 1,
		QuarantinedAt: types.TimePtr(t0.Add(-2 * time.Hour)), RetrainingUntil: types.TimePtr(t0.Add(-time.Hour)),
	})
	f.seed(t, types.Bot{
		ID: "later", Status: types.StatusQuarantined, QuarantineCount: 2,
		QuarantinedAt: types.TimePtr(t0), RetrainingUntil: types.TimePtr(t0.Add(3 * time.Hour)),
	})

	report, err := f.engine.Tick(ctx, t0)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Expired)

	assert.Equal(t, types.StatusActive, f.get(t, "due").Status)
	assert.Equal(t, types.StatusQuarantined, f.get(t, "later").Status)

	report, err = f.engine.Tick(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expired)
}

// TestEngine_RestoreArmsTimers verifies timers are re-armed for persisted quarantines.
func TestEngine_RestoreArmsTimers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{
		ID: "bot-1", Status: types.StatusQuarantined, QuarantineCount: 1,
		QuarantinedAt: types.TimePtr(t0), RetrainingUntil: types.TimePtr(t0.Add(time.Hour)),
	})

	armed, err := f.engine.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, armed)

	f.clock.Advance(time.Hour)
	assert.Equal(t, types.StatusActive, f.get(t, "bot-1").Status)
}

type blockingStore struct {
	*memstore.InMemoryBotStorage
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) ListByStatus(ctx context.Context, status types.BotStatus) ([]types.Bot, error) {
	s.entered <- struct{}{}
	<-s.release
	return s.InMemoryBotStorage.ListByStatus(ctx, status)
}

// TestEngine_TickCoalesces verifies an overlapping sweep is skipped rather than queued.
func TestEngine_TickCoalesces(t *testing.T) {
	store := &blockingStore{
		InMemoryBotStorage: memstore.NewInMemoryBotStorage(),
		entered:            make(chan struct{}),
		release:            make(chan struct{}),
	}
	engine, err := NewEngine(Config{Store: store, Clock: clock.NewFake(t0)})
	require.NoError(t, err)

	done := make(chan TickReport)
	go func() {
		report, _ := engine.Tick(context.Background(), t0)
		done <- report
	}()
	<-store.entered

	report, err := engine.Tick(context.Background(), t0)
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	close(store.release)
	first := <-done
	assert.False(t, first.Skipped)
}

type flakyStore struct {
	*memstore.InMemoryBotStorage
	mu        sync.Mutex
	conflicts int
	casCalls  int
}

func (s *flakyStore) CompareAndSet(ctx context.Context, botID string, expected int64, next types.Bot) (types.Bot, error) {
	s.mu.Lock()
	s.casCalls++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return types.Bot{}, types.ErrVersionConflict
	}
	s.mu.Unlock()
	return s.InMemoryBotStorage.CompareAndSet(ctx, botID, expected, next)
}

// TestEngine_RetriesVersionConflictOnce verifies one retry after a conflict and failure after two.
func TestEngine_RetriesVersionConflictOnce(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{InMemoryBotStorage: memstore.NewInMemoryBotStorage(), conflicts: 1}
	_, err := store.Create(ctx, types.Bot{ID: "bot-1", OwnerID: "o", Status: types.StatusActive})
	require.NoError(t, err)

	pub := &recordingPublisher{}
	engine, err := NewEngine(Config{Store: store, Clock: clock.NewFake(t0), Publisher: pub})
	require.NoError(t, err)

	res, err := engine.RequestPause(ctx, "bot-1", "manual", "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPaused, res.Bot.Status)
	assert.Equal(t, 2, store.casCalls)
	assert.Len(t, pub.transitions("bot-1"), 1)

	store.conflicts = 2
	_, err = engine.RequestResume(ctx, "bot-1", "user-1")
	assert.ErrorIs(t, err, types.ErrVersionConflict)
	assert.Len(t, pub.transitions("bot-1"), 1)
}

// TestEngine_ChangeExchange covers the pause-switch-restore sequence and in-place switches.
func TestEngine_ChangeExchange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "trading", Exchange: "binance"})
	f.seed(t, types.Bot{ID: "paused", Status: types.StatusPaused, PausedFrom: types.StatusActive, Exchange: "binance"})

	res, err := f.engine.ChangeExchange(ctx, "trading", "bybit", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, res.Bot.Status)
	assert.Equal(t, "bybit", res.Bot.Exchange)
	require.Len(t, res.Transitions, 2)
	assert.Equal(t, types.StatusPaused, res.Transitions[0].To)
	assert.Equal(t, types.StatusActive, res.Transitions[1].To)
	assert.Equal(t, "admin-1", res.Transitions[1].TriggeredBy)

	same, err := f.engine.ChangeExchange(ctx, "trading", "bybit", "admin-1")
	require.NoError(t, err)
	assert.True(t, same.AlreadyInState)

	res, err = f.engine.ChangeExchange(ctx, "paused", "okx", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPaused, res.Bot.Status)
	assert.Equal(t, "okx", res.Bot.Exchange)
	assert.Len(t, res.Transitions, 1)

	_, err = f.engine.ChangeExchange(ctx, "paused", "", "admin-1")
	assert.Error(t, err)
}

// TestEngine_AdminOverrideLive verifies the override is accepted only from active.
func TestEngine_AdminOverrideLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1"})
	f.seed(t, types.Bot{ID: "bot-2", Status: types.StatusPaused, PausedFrom: types.StatusActive})

	res, err := f.engine.AdminOverrideLive(ctx, "bot-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusLive, res.Bot.Status)
	assert.True(t, res.Bot.AdminOverride)
	assert.Equal(t, "admin-1", res.Bot.OverrideBy)

	_, err = f.engine.AdminOverrideLive(ctx, "bot-2", "admin-1")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	// провал live-бота снимает override
	res, err = f.engine.RecordFailure(ctx, "bot-1", "slippage")
	require.NoError(t, err)
	assert.False(t, res.Bot.AdminOverride)
}

// TestEngine_RequestDelete verifies admin deletion is terminal and never regenerates.
func TestEngine_RequestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1"})

	res, err := f.engine.RequestDelete(ctx, "bot-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeleted, res.Bot.Status)

	again, err := f.engine.RequestDelete(ctx, "bot-1", "admin-1")
	require.NoError(t, err)
	assert.True(t, again.AlreadyInState)
	assert.Empty(t, f.regen.calls)

	_, err = f.engine.RequestPause(ctx, "bot-1", "manual", "user-1")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}

// TestEngine_UnknownBot verifies not-found errors surface unchanged.
func TestEngine_UnknownBot(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RequestPause(context.Background(), "ghost", "", "user-1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// TestEngine_CreateBot verifies creation publishes a bot_created event.
func TestEngine_CreateBot(t *testing.T) {
	f := newFixture(t)
	bot, err := f.engine.CreateBot(context.Background(), CreateRequest{
		ID: "bot-9", OwnerID: "owner-1", Name: "gamma", Exchange: "kraken", Capital: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, bot.Status)
	assert.Equal(t, int64(1), bot.Version)
	assert.Equal(t, 1, f.pub.count(types.EventBotCreated))

	_, err = f.engine.CreateBot(context.Background(), CreateRequest{ID: "bot-9", OwnerID: "owner-1"})
	assert.Error(t, err)
}

// TestEngine_ConcurrentFailuresCountExactly verifies concurrent failures never lose an increment.
func TestEngine_ConcurrentFailuresCountExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1"})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.RecordFailure(ctx, "bot-1", "burst")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	bot := f.get(t, "bot-1")
	assert.Equal(t, 4, bot.QuarantineCount)
	assert.Equal(t, types.StatusDeleted, bot.Status)
	assert.Len(t, f.regen.calls, 1)
	assert.Len(t, f.pub.transitions("bot-1"), 4)
	assert.Equal(t, 0, f.engine.locks.size())
}

// TestEngine_FourthFailureRacingTick verifies the terminal outcome regardless of a concurrent sweep.
func TestEngine_FourthFailureRacingTick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{
		ID: "bot-1", Status: types.StatusQuarantined, QuarantineCount: 3,
		QuarantinedAt: types.TimePtr(t0.Add(-25 * time.Hour)), RetrainingUntil: types.TimePtr(t0.Add(-time.Hour)),
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = f.engine.Tick(ctx, t0)
	}()
	go func() {
		defer wg.Done()
		_, err := f.engine.RecordFailure(ctx, "bot-1", "drawdown")
		assert.NoError(t, err)
	}()
	wg.Wait()

	bot := f.get(t, "bot-1")
	assert.Equal(t, types.StatusDeleted, bot.Status)
	assert.Equal(t, 4, bot.QuarantineCount)
	assert.Len(t, f.regen.calls, 1)
}

// TestEngine_InvariantHoldsAfterEveryTransition drives a mixed sequence and checks each stored record.
func TestEngine_InvariantHoldsAfterEveryTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, types.Bot{ID: "bot-1"})

	steps := []func() error{
		func() error { _, err := f.engine.RecordFailure(ctx, "bot-1", "a"); return err },
		func() error { _, err := f.engine.RequestPause(ctx, "bot-1", "p", "u"); return err },
		func() error { _, err := f.engine.ChangeExchange(ctx, "bot-1", "okx", "admin"); return err },
		func() error { _, err := f.engine.RecordFailure(ctx, "bot-1", "b"); return err },
		func() error { f.clock.Advance(2 * time.Hour); return nil },
		func() error { _, err := f.engine.RequestResume(ctx, "bot-1", "u"); return err },
		func() error { _, err := f.engine.RecordFailure(ctx, "bot-1", "c"); return err },
		func() error { f.clock.Advance(3 * time.Hour); return nil },
		func() error { _, err := f.engine.AdminOverrideLive(ctx, "bot-1", "admin"); return err },
	}

	for i, step := range steps {
		err := step()
		if err != nil {
			assert.ErrorIs(t, err, types.ErrInvalidTransition, "step %d", i)
		}
		assert.NoError(t, f.get(t, "bot-1").CheckInvariants(), "step %d", i)
	}
	assert.Equal(t, types.StatusLive, f.get(t, "bot-1").Status)
}

func (a *recordingAudit) last() types.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries[len(a.entries)-1]
}

// TestEngine_RecordFailureOnPausedRejected verifies a failure report for a paused bot changes nothing.
func TestEngine_RecordFailureOnPausedRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.seed(t, types.Bot{ID: "bot-1", Status: types.StatusPaused, PausedFrom: types.StatusActive, QuarantineCount: 1})

	_, err := f.engine.RecordFailure(ctx, "bot-1", "drawdown")
	require.ErrorIs(t, err, types.ErrInvalidTransition)
	var inv *types.InvalidTransitionError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, types.StatusPaused, inv.From)

	after := f.get(t, "bot-1")
	assert.Equal(t, types.StatusPaused, after.Status)
	assert.Equal(t, 1, after.QuarantineCount)
	assert.Equal(t, before.Version, after.Version)
	assert.Nil(t, after.RetrainingUntil)
	assert.Empty(t, f.pub.transitions("bot-1"))
	assert.Equal(t, types.AuditRejected, f.audit.last().Outcome)
}

// TestEngine_ChangeExchangeOnDeletedRejected verifies a deleted bot keeps its exchange.
func TestEngine_ChangeExchangeOnDeletedRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.seed(t, types.Bot{ID: "bot-1", Status: types.StatusDeleted, Exchange: "binance"})

	_, err := f.engine.ChangeExchange(ctx, "bot-1", "bybit", "admin-1")
	require.ErrorIs(t, err, types.ErrInvalidTransition)

	after := f.get(t, "bot-1")
	assert.Equal(t, types.StatusDeleted, after.Status)
	assert.Equal(t, "binance", after.Exchange)
	assert.Equal(t, before.Version, after.Version)
	assert.Empty(t, f.pub.transitions("bot-1"))
	assert.Equal(t, types.AuditRejected, f.audit.last().Outcome)
}

// TestEngine_AdminOverrideLiveRejectedOutsideActive verifies paused and quarantined bots cannot be forced live.
func TestEngine_AdminOverrideLiveRejectedOutsideActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	until := t0.Add(time.Hour)
	f.seed(t, types.Bot{ID: "paused", Status: types.StatusPaused, PausedFrom: types.StatusActive})
	f.seed(t, types.Bot{ID: "quarantined", Status: types.StatusQuarantined, QuarantineCount: 1,
		QuarantinedAt: types.TimePtr(t0), RetrainingUntil: &until, NextAction: types.NextActionRedeploy})

	for _, id := range []string{"paused", "quarantined"} {
		before := f.get(t, id)
		_, err := f.engine.AdminOverrideLive(ctx, id, "admin-1")
		require.ErrorIs(t, err, types.ErrInvalidTransition, id)

		after := f.get(t, id)
		assert.Equal(t, before.Status, after.Status, id)
		assert.False(t, after.AdminOverride, id)
		assert.Equal(t, before.Version, after.Version, id)
		assert.Empty(t, f.pub.transitions(id), id)
	}
}
