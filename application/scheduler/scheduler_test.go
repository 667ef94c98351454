package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"trading-bot-fleet/internal/core/domain/lifecycle"
	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSweeper struct {
	calls atomic.Int32
	last  atomic.Value
}

func (f *fakeSweeper) Tick(_ context.Context, now time.Time) (lifecycle.TickReport, error) {
	f.calls.Add(1)
	f.last.Store(now)
	return lifecycle.TickReport{Checked: 1}, nil
}

type fakeChecker struct{ calls atomic.Int32 }

func (f *fakeChecker) CheckLiveness(context.Context) []string {
	f.calls.Add(1)
	return []string{"s1"}
}

type fakeCensus struct{ calls atomic.Int32 }

func (f *fakeCensus) Census(context.Context) (map[types.BotStatus]int, error) {
	f.calls.Add(1)
	return map[types.BotStatus]int{types.StatusActive: 2}, nil
}

// TestSchedule_NextRun verifies interval and daily schedules
func TestSchedule_NextRun(t *testing.T) {
	assert.Equal(t, t0.Add(time.Minute), Every(time.Minute).nextRun(t0))
	assert.Equal(t, time.Date(2026, 3, 1, 13, 30, 0, 0, time.UTC), DailyAt(13, 30).nextRun(t0))
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), DailyAt(9, 0).nextRun(t0))
}

// TestScheduler_RunsDueJobs verifies jobs fire once their time arrives on the virtual clock
func TestScheduler_RunsDueJobs(t *testing.T) {
	fc := clock.NewFake(t0)
	s := New(WithClock(fc))
	sweeper := &fakeSweeper{}
	checker := &fakeChecker{}
	s.Register(QuarantineSweepJob(sweeper, fc, time.Minute))
	s.Register(SessionLivenessJob(checker, 5*time.Second))

	s.tick()
	s.Wait()
	assert.Equal(t, int32(0), sweeper.calls.Load())
	assert.Equal(t, int32(0), checker.calls.Load())

	fc.Advance(5 * time.Second)
	s.tick()
	s.Wait()
	assert.Equal(t, int32(0), sweeper.calls.Load())
	assert.Equal(t, int32(1), checker.calls.Load())

	fc.Advance(time.Minute)
	s.tick()
	s.Wait()
	assert.Equal(t, int32(1), sweeper.calls.Load())
	assert.Equal(t, fc.Now(), sweeper.last.Load().(time.Time))

	statuses := s.Jobs()
	require.Len(t, statuses, 2)
	assert.Equal(t, 1, statuses[0].Runs)
	assert.NoError(t, statuses[0].LastErr)
}

// TestScheduler_SkipsOverlappingRuns verifies a running job is not started twice
func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	fc := clock.NewFake(t0)
	s := New(WithClock(fc))

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var runs atomic.Int32
	s.Register(&Job{
		Name:     "slow",
		Schedule: Every(time.Second),
		Handler: func(ctx context.Context) error {
			runs.Add(1)
			started <- struct{}{}
			<-release
			return nil
		},
	})

	fc.Advance(time.Second)
	s.tick()
	<-started

	fc.Advance(time.Second)
	s.tick()
	assert.Error(t, s.RunNow(context.Background(), "slow"))

	close(release)
	s.Wait()
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, 1, s.Jobs()[0].Skipped)

	require.NoError(t, s.RunNow(context.Background(), "slow"))
	assert.Equal(t, int32(2), runs.Load())
	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

// TestScheduler_DailyReportAndTimeout verifies the daily report fires at its wall-clock time and job runs are bounded by the timeout
func TestScheduler_DailyReportAndTimeout(t *testing.T) {
	fc := clock.NewFake(t0)
	s := New(WithClock(fc), WithResolution(10*time.Millisecond), WithJobTimeout(20*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, s.resolution)

	census := &fakeCensus{}
	s.Register(FleetReportJob(census, 13, 0))
	s.Register(&Job{
		Name:     "stuck",
		Schedule: Every(time.Hour),
		Handler: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	fc.Advance(59 * time.Minute)
	s.tick()
	s.Wait()
	assert.Equal(t, int32(0), census.calls.Load())

	fc.Advance(time.Minute)
	s.tick()
	s.Wait()
	assert.Equal(t, int32(1), census.calls.Load())

	err := s.RunNow(context.Background(), "stuck")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	statuses := s.Jobs()
	require.Len(t, statuses, 2)
	assert.Equal(t, JobFleetReport, statuses[0].Name)
	assert.Equal(t, time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC), statuses[0].NextRun)
}
