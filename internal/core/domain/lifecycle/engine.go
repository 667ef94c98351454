// internal/core/domain/lifecycle/engine.go
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"trading-bot-fleet/internal/core/domain/quarantine"
	"trading-bot-fleet/internal/infrastructure/timer"
	"trading-bot-fleet/internal/types"
	storagetypes "trading-bot-fleet/internal/types/storage"
	"trading-bot-fleet/pkg/clock"
	"trading-bot-fleet/pkg/logger"
)

const (
	// ActorSystem - инициатор системных переходов (таймер, политика карантина)
	ActorSystem = "system"
	// eventSource - источник событий движка на шине
	eventSource = "lifecycle"

	reasonExchangeSwitch = "exchange_switch"
	reasonRetrainingDone = "retraining_complete"
	reasonRegenerated    = "regenerated"
)

// Publisher - приёмник событий переходов (шина событий)
type Publisher interface {
	Publish(event types.Event) error
}

// RegenerationRequest - запрос на создание замены удалённого бота
type RegenerationRequest struct {
	Previous types.Bot
	Reason   string
}

// Regenerator - процесс пересоздания бота после терминальной попытки
type Regenerator interface {
	Regenerate(ctx context.Context, req RegenerationRequest) (types.Bot, error)
}

// Config - зависимости движка
type Config struct {
	Store       storagetypes.BotStore
	Policy      *quarantine.Policy
	Clock       clock.Clock
	Publisher   Publisher
	Regenerator Regenerator
	Audit       types.AuditLog
}

// Result - итог операции жизненного цикла
type Result struct {
	Bot            types.Bot               `json:"bot"`
	Transitions    []types.TransitionEvent `json:"transitions,omitempty"`
	AlreadyInState bool                    `json:"already_in_state"`
	Replacement    *types.Bot              `json:"replacement,omitempty"`
}

// Engine - единственный писатель полей статуса и карантина ботов.
// Запросы по одному боту сериализуются; каждый принятый переход пишется
// через CompareAndSet и публикуется ровно одним событием.
type Engine struct {
	store     storagetypes.BotStore
	policy    *quarantine.Policy
	clock     clock.Clock
	publisher Publisher
	regen     Regenerator
	audit     types.AuditLog

	locks   *keyedMutex
	timers  *timer.Arena
	ticking atomic.Bool
}

// NewEngine создает движок жизненного цикла
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("lifecycle engine: store is required")
	}
	if cfg.Policy == nil {
		cfg.Policy = quarantine.DefaultPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &Engine{
		store:     cfg.Store,
		policy:    cfg.Policy,
		clock:     cfg.Clock,
		publisher: cfg.Publisher,
		regen:     cfg.Regenerator,
		audit:     cfg.Audit,
		locks:     newKeyedMutex(),
		timers:    timer.NewArena(cfg.Clock),
	}, nil
}

// Policy возвращает активную политику карантина
func (e *Engine) Policy() *quarantine.Policy {
	return e.policy
}

// Get возвращает текущую запись бота
func (e *Engine) Get(ctx context.Context, botID string) (types.Bot, error) {
	return e.store.Get(ctx, botID)
}

// CanTrade - проверка торгового движка перед выставлением ордера
func (e *Engine) CanTrade(ctx context.Context, botID string) (bool, error) {
	bot, err := e.store.Get(ctx, botID)
	if err != nil {
		return false, err
	}
	return bot.CanTrade(), nil
}

// ScheduledExpiry возвращает момент запланированного таймера переобучения бота
func (e *Engine) ScheduledExpiry(botID string) (time.Time, bool) {
	return e.timers.Deadline(botID)
}

// Stop отменяет все таймеры переобучения
func (e *Engine) Stop() {
	e.timers.Stop()
}

// CreateRequest - параметры нового бота
type CreateRequest struct {
	ID       string
	OwnerID  string
	Name     string
	Exchange string
	Capital  float64
	Live     bool
	Actor    string
}

// CreateBot сохраняет нового бота в статусе active (или live для внешнего продвижения)
// и публикует bot_created
func (e *Engine) CreateBot(ctx context.Context, req CreateRequest) (types.Bot, error) {
	if req.ID == "" || req.OwnerID == "" {
		return types.Bot{}, fmt.Errorf("create bot: id and owner are required")
	}
	status := types.StatusActive
	if req.Live {
		status = types.StatusLive
	}
	now := e.clock.Now()
	bot, err := e.store.Create(ctx, types.Bot{
		ID:        req.ID,
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		Exchange:  req.Exchange,
		Status:    status,
		Capital:   req.Capital,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return types.Bot{}, fmt.Errorf("create bot %s: %w", req.ID, err)
	}

	actor := actorOrSystem(req.Actor)
	ev := types.NewTransitionEvent(types.Bot{}, bot, "created", actor, now)
	e.publish(ev.ToEvent(types.EventBotCreated, eventSource))
	e.record(ctx, "create", actor, types.Bot{}, bot, "created", types.AuditAccepted, nil)
	logger.Info("🆕 Создан бот %s (%s) владельца %s на бирже %s", bot.ID, bot.Name, bot.OwnerID, bot.Exchange)
	return bot, nil
}

// RequestPause - пауза по запросу пользователя из active, live или quarantined.
// Пауза уже остановленного бота - успешный no-op без события.
func (e *Engine) RequestPause(ctx context.Context, botID, reason, actor string) (Result, error) {
	unlock := e.locks.Lock(botID)
	defer unlock()

	return e.apply(ctx, "pause", botID, actorOrSystem(actor), reason, func(b *types.Bot, now time.Time) (bool, error) {
		switch b.Status {
		case types.StatusPaused:
			return true, nil
		case types.StatusActive, types.StatusLive, types.StatusQuarantined:
			b.PausedFrom = b.Status
			b.Status = types.StatusPaused
			b.PauseReason = reason
			b.RetrainingUntil = nil
			b.NextAction = types.NextActionNone
			return false, nil
		default:
			return false, types.NewInvalidTransition(b.Status, types.StatusPaused, "bot is deleted")
		}
	})
}

// RequestResume - возобновление после пользовательской паузы.
// Карантин нельзя снять возобновлением: только истечением окна переобучения.
// Пауза, прервавшая карантин, возвращает бота в карантин до конца исходного окна.
func (e *Engine) RequestResume(ctx context.Context, botID, actor string) (Result, error) {
	unlock := e.locks.Lock(botID)
	defer unlock()

	return e.apply(ctx, "resume", botID, actorOrSystem(actor), "user_resume", func(b *types.Bot, now time.Time) (bool, error) {
		switch b.Status {
		case types.StatusActive, types.StatusLive:
			return true, nil
		case types.StatusPaused:
			if b.PausedFrom == types.StatusQuarantined {
				e.resumeQuarantine(b, now)
				return false, nil
			}
			target := b.PausedFrom
			if target != types.StatusLive {
				target = types.StatusActive
			}
			b.Status = target
			b.PausedFrom = ""
			b.PauseReason = ""
			return false, nil
		case types.StatusQuarantined:
			return false, types.NewInvalidTransition(b.Status, types.StatusActive,
				"quarantined bots resume only when retraining expires")
		default:
			return false, types.NewInvalidTransition(b.Status, types.StatusActive, "bot is deleted")
		}
	})
}

// resumeQuarantine возвращает бота, поставленного на паузу во время карантина.
// Окно отсчитывается от quarantined_at: если оно ещё не истекло, бот снова в карантине
// с тем же сроком, иначе сразу active.
func (e *Engine) resumeQuarantine(b *types.Bot, now time.Time) {
	b.PausedFrom = ""
	b.PauseReason = ""

	if b.QuarantinedAt != nil {
		until := b.QuarantinedAt.Add(e.policy.Duration(b.QuarantineCount))
		if until.After(now) {
			b.Status = types.StatusQuarantined
			b.RetrainingUntil = types.TimePtr(until)
			b.NextAction = types.NextActionRedeploy
			return
		}
	}
	b.Status = types.StatusActive
	b.NextAction = types.NextActionNone
}

// RecordFailure - сигнал провала производительности от торгового движка.
// Увеличивает quarantine_count ровно на единицу и применяет политику карантина.
func (e *Engine) RecordFailure(ctx context.Context, botID, reason string) (Result, error) {
	unlock := e.locks.Lock(botID)
	defer unlock()

	res, err := e.apply(ctx, "record_failure", botID, ActorSystem, reason, func(b *types.Bot, now time.Time) (bool, error) {
		switch b.Status {
		case types.StatusActive, types.StatusLive, types.StatusQuarantined:
		default:
			return false, types.NewInvalidTransition(b.Status, types.StatusQuarantined,
				"failures are only recorded for trading or quarantined bots")
		}

		b.QuarantineCount++
		decision := e.policy.Decide(b.QuarantineCount)
		b.AdminOverride = false
		b.OverrideBy = ""
		b.PausedFrom = ""
		b.PauseReason = reason
		b.NextAction = decision.Action

		if decision.Terminal() {
			b.Status = types.StatusDeleted
			b.RetrainingUntil = nil
			return false, nil
		}

		b.Status = types.StatusQuarantined
		b.QuarantinedAt = types.TimePtr(now)
		b.RetrainingUntil = types.TimePtr(now.Add(decision.Duration))
		return false, nil
	})
	if err != nil {
		return res, err
	}

	switch res.Bot.Status {
	case types.StatusQuarantined:
		quarantinesTotal.Inc()
	case types.StatusDeleted:
		res.Replacement = e.regenerate(ctx, res.Bot, reason)
	}
	return res, nil
}

// AdminOverrideLive - перевод бота из бумажной торговли в реальную вне обычных правил
func (e *Engine) AdminOverrideLive(ctx context.Context, botID, adminID string) (Result, error) {
	unlock := e.locks.Lock(botID)
	defer unlock()

	return e.apply(ctx, "admin_live", botID, actorOrSystem(adminID), "admin_override", func(b *types.Bot, now time.Time) (bool, error) {
		switch b.Status {
		case types.StatusLive:
			return true, nil
		case types.StatusActive:
			b.Status = types.StatusLive
			b.AdminOverride = true
			b.OverrideBy = adminID
			return false, nil
		default:
			return false, types.NewInvalidTransition(b.Status, types.StatusLive,
				"live override requires an active bot")
		}
	})
}

// ChangeExchange - смена биржи администратором.
// Торгующий бот проходит паузу и возвращается в прежний статус (два события);
// остановленный или карантинный бот меняет биржу на месте.
func (e *Engine) ChangeExchange(ctx context.Context, botID, exchange, adminID string) (Result, error) {
	if exchange == "" {
		return Result{}, fmt.Errorf("change exchange: exchange is required")
	}
	actor := actorOrSystem(adminID)

	unlock := e.locks.Lock(botID)
	defer unlock()

	current, err := e.store.Get(ctx, botID)
	if err != nil {
		return Result{}, fmt.Errorf("change exchange %s: %w", botID, err)
	}

	switch current.Status {
	case types.StatusDeleted:
		err := types.NewInvalidTransition(current.Status, types.StatusPaused, "bot is deleted")
		e.reject(ctx, "change_exchange", actor, current, err)
		return Result{Bot: current}, err
	case types.StatusActive, types.StatusLive:
	default:
		return e.apply(ctx, "change_exchange", botID, actor, reasonExchangeSwitch, func(b *types.Bot, now time.Time) (bool, error) {
			if b.Exchange == exchange {
				return true, nil
			}
			b.Exchange = exchange
			return false, nil
		})
	}

	if current.Exchange == exchange {
		return Result{Bot: current, AlreadyInState: true}, nil
	}

	prior := current.Status
	paused, err := e.apply(ctx, "change_exchange", botID, actor, reasonExchangeSwitch, func(b *types.Bot, now time.Time) (bool, error) {
		if b.Status != prior {
			return false, types.NewInvalidTransition(b.Status, types.StatusPaused, "status changed concurrently")
		}
		b.PausedFrom = b.Status
		b.Status = types.StatusPaused
		b.PauseReason = reasonExchangeSwitch
		return false, nil
	})
	if err != nil {
		return paused, err
	}

	restored, err := e.apply(ctx, "change_exchange", botID, actor, reasonExchangeSwitch, func(b *types.Bot, now time.Time) (bool, error) {
		if b.Status != types.StatusPaused {
			return false, types.NewInvalidTransition(b.Status, prior, "bot left the exchange switch pause")
		}
		b.Exchange = exchange
		b.Status = prior
		b.PausedFrom = ""
		b.PauseReason = ""
		return false, nil
	})
	if err != nil {
		logger.Error("❌ Бот %s остался на паузе после смены биржи: %v", botID, err)
		restored.Transitions = append(paused.Transitions, restored.Transitions...)
		return restored, err
	}

	restored.Transitions = append(paused.Transitions, restored.Transitions...)
	logger.Info("🔁 Бот %s переведён на биржу %s", botID, exchange)
	return restored, nil
}

// RequestDelete - удаление бота администратором без пересоздания
func (e *Engine) RequestDelete(ctx context.Context, botID, actor string) (Result, error) {
	unlock := e.locks.Lock(botID)
	defer unlock()

	return e.apply(ctx, "delete", botID, actorOrSystem(actor), "admin_delete", func(b *types.Bot, now time.Time) (bool, error) {
		if b.Status == types.StatusDeleted {
			return true, nil
		}
		b.Status = types.StatusDeleted
		b.RetrainingUntil = nil
		b.NextAction = types.NextActionNone
		b.PausedFrom = ""
		return false, nil
	})
}

// mutation изменяет копию бота; noop=true означает, что бот уже в целевом состоянии
type mutation func(b *types.Bot, now time.Time) (noop bool, err error)

// apply выполняет цикл чтение → изменение → проверка инвариантов → CompareAndSet.
// Конфликт версии повторяется один раз; вызывающий держит блокировку бота.
func (e *Engine) apply(ctx context.Context, op, botID, actor, reason string, mut mutation) (Result, error) {
	for attempt := 0; ; attempt++ {
		current, err := e.store.Get(ctx, botID)
		if err != nil {
			rejectedTotal.WithLabelValues(op).Inc()
			return Result{}, fmt.Errorf("%s %s: %w", op, botID, err)
		}

		now := e.clock.Now()
		next := current.Clone()
		noop, err := mut(&next, now)
		if err != nil {
			e.reject(ctx, op, actor, current, err)
			return Result{Bot: current}, err
		}
		if noop {
			e.record(ctx, op, actor, current, current, reason, types.AuditNoop, nil)
			return Result{Bot: current, AlreadyInState: true}, nil
		}

		next.UpdatedAt = now
		if err := next.CheckInvariants(); err != nil {
			rejectedTotal.WithLabelValues(op).Inc()
			return Result{Bot: current}, fmt.Errorf("%s %s: %w", op, botID, err)
		}

		stored, err := e.store.CompareAndSet(ctx, botID, current.Version, next)
		if errors.Is(err, types.ErrVersionConflict) && attempt == 0 {
			versionRetriesTotal.Inc()
			logger.Warn("⚠️ Конфликт версии бота %s при %s, повтор", botID, op)
			continue
		}
		if err != nil {
			rejectedTotal.WithLabelValues(op).Inc()
			return Result{Bot: current}, fmt.Errorf("%s %s: %w", op, botID, err)
		}

		ev := e.afterCommit(ctx, op, actor, reason, current, stored, now)
		return Result{Bot: stored, Transitions: []types.TransitionEvent{ev}}, nil
	}
}

// afterCommit синхронизирует таймер, публикует событие и пишет аудит
func (e *Engine) afterCommit(ctx context.Context, op, actor, reason string, before, after types.Bot, now time.Time) types.TransitionEvent {
	switch {
	case after.Status == types.StatusQuarantined && after.RetrainingUntil != nil:
		e.scheduleExpiry(after.ID, *after.RetrainingUntil)
	case before.Status == types.StatusQuarantined:
		e.timers.Cancel(after.ID)
	}

	transitionsTotal.WithLabelValues(string(before.Status), string(after.Status)).Inc()
	logger.Transition(after.ID, string(before.Status), string(after.Status), reason, actor)

	ev := types.NewTransitionEvent(before, after, reason, actor, now)
	e.publish(ev.ToEvent(types.EventBotTransition, eventSource))
	e.record(ctx, op, actor, before, after, reason, types.AuditAccepted, nil)
	return ev
}

// regenerate запускает пересоздание ровно один раз на удаление по политике
func (e *Engine) regenerate(ctx context.Context, deleted types.Bot, reason string) *types.Bot {
	if e.regen == nil {
		regenerationsTotal.WithLabelValues("disabled").Inc()
		logger.Warn("⚠️ Пересоздание не настроено, бот %s удалён без замены", deleted.ID)
		return nil
	}

	replacement, err := e.regen.Regenerate(ctx, RegenerationRequest{Previous: deleted, Reason: reason})
	if err != nil {
		regenerationsTotal.WithLabelValues("failed").Inc()
		logger.Error("❌ Не удалось пересоздать бота %s: %v", deleted.ID, err)
		return nil
	}

	regenerationsTotal.WithLabelValues("created").Inc()
	ev := types.NewTransitionEvent(types.Bot{}, replacement, reasonRegenerated, ActorSystem, e.clock.Now())
	ev.Reason = fmt.Sprintf("%s from %s", reasonRegenerated, deleted.ID)
	e.publish(ev.ToEvent(types.EventBotCreated, eventSource))
	e.record(ctx, "regenerate", ActorSystem, types.Bot{}, replacement, ev.Reason, types.AuditAccepted, nil)
	logger.Info("♻️ Бот %s пересоздан как %s", deleted.ID, replacement.ID)
	return &replacement
}

func (e *Engine) publish(event types.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(event); err != nil {
		logger.Warn("⚠️ Не удалось опубликовать событие %s бота %s: %v", event.Type, event.BotID, err)
	}
}

func (e *Engine) reject(ctx context.Context, op, actor string, current types.Bot, err error) {
	rejectedTotal.WithLabelValues(op).Inc()
	var target types.BotStatus
	var inv *types.InvalidTransitionError
	if errors.As(err, &inv) {
		target = inv.To
	}
	e.record(ctx, op, actor, current, types.Bot{Status: target}, "", types.AuditRejected, err)
	logger.Debug("🚫 %s бота %s отклонён: %v", op, current.ID, err)
}

func (e *Engine) record(ctx context.Context, op, actor string, before, after types.Bot, reason string, outcome types.AuditOutcome, cause error) {
	if e.audit == nil {
		return
	}
	entry := types.AuditEntry{
		BotID:   before.ID,
		OwnerID: before.OwnerID,
		Action:  op,
		Actor:   actor,
		Outcome: outcome,
		From:    before.Status,
		To:      after.Status,
		Reason:  reason,
		At:      e.clock.Now(),
	}
	if entry.BotID == "" {
		entry.BotID = after.ID
		entry.OwnerID = after.OwnerID
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := e.audit.Record(ctx, entry); err != nil {
		logger.Warn("⚠️ Аудит %s бота %s не записан: %v", op, entry.BotID, err)
	}
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return ActorSystem
	}
	return actor
}
