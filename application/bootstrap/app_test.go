package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trading-bot-fleet/application/scheduler"
	"trading-bot-fleet/internal/core/domain/lifecycle"
	"trading-bot-fleet/internal/infrastructure/config"
	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/clock"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Version:      "test",
		StoreBackend: "memory",
		EventBus: config.EventBusConfig{
			BufferSize: 100,
			BatchSize:  10,
			MaxRetries: 1,
		},
		Lifecycle: config.LifecycleConfig{
			TickInterval:      time.Minute,
			QuarantineWindows: []time.Duration{time.Hour},
		},
		Regeneration: config.RegenerationConfig{CarryCapital: true, PreserveExchange: true},
		HTTP: config.HTTPConfig{
			Tokens: map[string]string{"t-alice": "alice"},
		},
	}
}

func newTestApp(t *testing.T) (*Application, *clock.Fake) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	app, err := NewAppBuilder().
		WithConfig(memoryConfig()).
		WithOption(WithClock(c)).
		Build()
	require.NoError(t, err)
	require.NoError(t, app.Initialize(context.Background()))
	t.Cleanup(app.Close)
	return app, c
}

// TestApplication_MemoryBackend verifies the in-memory wiring runs a full quarantine cycle
func TestApplication_MemoryBackend(t *testing.T) {
	app, c := newTestApp(t)
	ctx := context.Background()
	app.bus.Start()

	engine := app.Engine()
	require.NotNil(t, engine)

	bot, err := engine.CreateBot(ctx, lifecycle.CreateRequest{ID: "b1", OwnerID: "alice", Name: "alpha", Exchange: "binance", Capital: 100})
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, bot.Status)

	res, err := engine.RecordFailure(ctx, "b1", "drawdown")
	require.NoError(t, err)
	assert.Equal(t, types.StatusQuarantined, res.Bot.Status)

	c.Advance(time.Hour)

	got, err := engine.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, got.Status)

	report, err := app.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)
}

// TestApplication_Handler verifies health and auth are served by the assembled router
func TestApplication_Handler(t *testing.T) {
	app, _ := newTestApp(t)
	app.bus.Start()

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bots", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bots", nil)
	req.Header.Set("Authorization", "Bearer t-alice")
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	status := app.Status()
	assert.Equal(t, "memory", status["store_backend"])
	assert.NotEmpty(t, status["instance_id"])
	assert.Len(t, app.scheduler.Jobs(), 2)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer t-alice")
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event_bus")
}

// TestApplication_RunSweepsOnStart verifies startup restores timers and runs the quarantine sweep once through the scheduler
func TestApplication_RunSweepsOnStart(t *testing.T) {
	cfg := memoryConfig()
	cfg.Lifecycle.ReportAt = "09:00"
	cfg.Lifecycle.SchedulerResolution = time.Hour
	cfg.Lifecycle.JobTimeout = time.Second

	c := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	app, err := NewAppBuilder().WithConfig(cfg).WithOption(WithClock(c)).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		app.mu.RLock()
		defer app.mu.RUnlock()
		if app.scheduler == nil || !app.running {
			return false
		}
		return app.scheduler.Jobs()[0].Runs == 1
	}, 2*time.Second, 10*time.Millisecond)

	jobs := app.scheduler.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, scheduler.JobQuarantineSweep, jobs[0].Name)
	assert.Equal(t, scheduler.JobFleetReport, jobs[2].Name)
	assert.Zero(t, jobs[2].Runs)

	cancel()
	assert.NoError(t, <-done)
}

// TestBuilder_Options verifies option validation
func TestBuilder_Options(t *testing.T) {
	_, err := NewAppBuilder().
		WithConfig(memoryConfig()).
		WithOption(WithStoreBackend("sqlite")).
		Build()
	assert.Error(t, err)

	app, err := NewAppBuilder().
		WithConfig(memoryConfig()).
		WithOption(WithStoreBackend("redis")).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "redis", app.config.StoreBackend)

	_, err = NewApplication(nil)
	assert.Error(t, err)
}
