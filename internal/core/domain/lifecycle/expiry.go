// internal/core/domain/lifecycle/expiry.go
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-bot-fleet/internal/types"
	"trading-bot-fleet/pkg/logger"
)

// TickReport - итог одного прохода по карантинным ботам
type TickReport struct {
	Skipped bool `json:"skipped"`
	Checked int  `json:"checked"`
	Expired int  `json:"expired"`
	Errors  int  `json:"errors"`
}

// Tick переводит в active всех ботов, чьё окно переобучения истекло к моменту now.
// Параллельный вызов во время идущего прохода пропускается, а не ставится в очередь.
func (e *Engine) Tick(ctx context.Context, now time.Time) (TickReport, error) {
	if !e.ticking.CompareAndSwap(false, true) {
		tickSkippedTotal.Inc()
		logger.Debug("⏭️ Проход по карантину уже идёт, пропуск")
		return TickReport{Skipped: true}, nil
	}
	defer e.ticking.Store(false)

	bots, err := e.store.ListByStatus(ctx, types.StatusQuarantined)
	if err != nil {
		return TickReport{}, fmt.Errorf("tick: list quarantined: %w", err)
	}

	report := TickReport{Checked: len(bots)}
	for _, bot := range bots {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if bot.RetrainingUntil == nil || bot.RetrainingUntil.After(now) {
			continue
		}
		expired, err := e.expire(ctx, bot.ID, now, "tick")
		if err != nil {
			report.Errors++
			logger.Warn("⚠️ Не удалось завершить карантин бота %s: %v", bot.ID, err)
			continue
		}
		if expired {
			report.Expired++
		}
	}

	if report.Expired > 0 {
		logger.Info("🔄 Проход по карантину: проверено %d, передеплоено %d", report.Checked, report.Expired)
	}
	return report, nil
}

// expire завершает окно переобучения одного бота.
// Устаревший вызов (бот уже не в карантине или окно продлено) ничего не делает.
func (e *Engine) expire(ctx context.Context, botID string, now time.Time, trigger string) (bool, error) {
	unlock := e.locks.Lock(botID)
	defer unlock()

	res, err := e.apply(ctx, "expire", botID, ActorSystem, reasonRetrainingDone, func(b *types.Bot, _ time.Time) (bool, error) {
		if b.Status != types.StatusQuarantined || b.RetrainingUntil == nil || b.RetrainingUntil.After(now) {
			return true, nil
		}
		b.Status = types.StatusActive
		b.RetrainingUntil = nil
		b.PauseReason = ""
		b.NextAction = types.NextActionNone
		return false, nil
	})
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if res.AlreadyInState {
		logger.Debug("⏱️ Устаревший %s для бота %s проигнорирован", trigger, botID)
		return false, nil
	}
	expiredTotal.Inc()
	return true, nil
}

// scheduleExpiry взводит таймер переобучения бота
func (e *Engine) scheduleExpiry(botID string, at time.Time) {
	e.timers.Schedule(botID, at, func() {
		if _, err := e.expire(context.Background(), botID, e.clock.Now(), "timer"); err != nil {
			logger.Warn("⚠️ Таймер карантина бота %s: %v", botID, err)
		}
	})
}

// Restore взводит таймеры для карантинных ботов после перезапуска.
// Уже истёкшие окна сработают при ближайшем продвижении часов.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	bots, err := e.store.ListByStatus(ctx, types.StatusQuarantined)
	if err != nil {
		return 0, fmt.Errorf("restore timers: %w", err)
	}

	armed := 0
	for _, bot := range bots {
		if bot.RetrainingUntil == nil {
			continue
		}
		e.scheduleExpiry(bot.ID, *bot.RetrainingUntil)
		armed++
	}
	logger.Info("⏰ Восстановлено таймеров карантина: %d", armed)
	return armed, nil
}
