// application/scheduler/jobs.go
package scheduler

import (
	"context"
	"time"

	"trading-bot-fleet/internal/core/domain/lifecycle"
	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/clock"
	"trading-bot-fleet/pkg/logger"
)

const (
	JobQuarantineSweep = "quarantine_sweep"
	JobSessionLiveness = "session_liveness"
	JobFleetReport     = "fleet_report"
)

// Sweeper - проход по истёкшим окнам переобучения
type Sweeper interface {
	Tick(ctx context.Context, now time.Time) (lifecycle.TickReport, error)
}

// LivenessChecker - проверка пульса push-сессий
type LivenessChecker interface {
	CheckLiveness(ctx context.Context) []string
}

// Censuser - подсчёт ботов всего парка по статусам
type Censuser interface {
	Census(ctx context.Context) (map[types.BotStatus]int, error)
}

// QuarantineSweepJob - страховочный проход по карантину поверх таймеров движка
func QuarantineSweepJob(sweeper Sweeper, c clock.Clock, every time.Duration) *Job {
	return &Job{
		Name:        JobQuarantineSweep,
		Description: "перевод ботов с истёкшим окном переобучения в active",
		Schedule:    Every(every),
		Handler: func(ctx context.Context) error {
			report, err := sweeper.Tick(ctx, c.Now())
			if err != nil {
				return err
			}
			if report.Errors > 0 {
				logger.Warn("⚠️ [Scheduler] Проход по карантину: %d ошибок из %d", report.Errors, report.Checked)
			}
			return nil
		},
	}
}

// SessionLivenessJob - отметка молчащих push-сессий как отключённых
func SessionLivenessJob(checker LivenessChecker, every time.Duration) *Job {
	return &Job{
		Name:        JobSessionLiveness,
		Description: "проверка пульса push-сессий",
		Schedule:    Every(every),
		Handler: func(ctx context.Context) error {
			if lost := checker.CheckLiveness(ctx); len(lost) > 0 {
				logger.Info("💔 [Scheduler] Потерян пульс у %d сессий", len(lost))
			}
			return nil
		},
	}
}

// FleetReportJob - ежедневная сводка по статусам ботов в лог
func FleetReportJob(census Censuser, hour, minute int) *Job {
	return &Job{
		Name:        JobFleetReport,
		Description: "ежедневная сводка по парку ботов",
		Schedule:    DailyAt(hour, minute),
		Handler: func(ctx context.Context) error {
			counts, err := census.Census(ctx)
			if err != nil {
				return err
			}
			logger.Info("📊 [Scheduler] Парк: active %d, live %d, paused %d, quarantined %d, deleted %d",
				counts[types.StatusActive], counts[types.StatusLive], counts[types.StatusPaused],
				counts[types.StatusQuarantined], counts[types.StatusDeleted])
			return nil
		},
	}
}
