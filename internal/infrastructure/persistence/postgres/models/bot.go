// /internal/infrastructure/persistence/postgres/models/bot.go
package models

import (
	"database/sql"
	"time"

	"trading-bot-fleet/internal/types"
)

// Bot - строка таблицы bots
type Bot struct {
	ID               string       `db:"id"`
	OwnerID          string       `db:"owner_id"`
	Name             string       `db:"name"`
	Exchange         string       `db:"exchange"`
	Status           string       `db:"status"`
	QuarantineCount  int          `db:"quarantine_count"`
	QuarantinedAt    sql.NullTime `db:"quarantined_at"`
	RetrainingUntil  sql.NullTime `db:"retraining_until"`
	PauseReason      string       `db:"pause_reason"`
	PausedFrom       string       `db:"paused_from"`
	NextAction       string       `db:"next_action"`
	AdminOverride    bool         `db:"admin_override"`
	OverrideBy       string       `db:"override_by"`
	Capital          float64      `db:"capital"`
	CumulativeProfit float64      `db:"cumulative_profit"`
	TradeCount       int          `db:"trade_count"`
	WinCount         int          `db:"win_count"`
	LossCount        int          `db:"loss_count"`
	Version          int64        `db:"version"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

// BotColumns - список колонок для SELECT
const BotColumns = `id, owner_id, name, exchange, status, quarantine_count, quarantined_at,
	retraining_until, pause_reason, paused_from, next_action, admin_override, override_by,
	capital, cumulative_profit, trade_count, win_count, loss_count, version, created_at, updated_at`

// FromBot переводит доменную запись в строку
func FromBot(b types.Bot) *Bot {
	return &Bot{
		ID:               b.ID,
		OwnerID:          b.OwnerID,
		Name:             b.Name,
		Exchange:         b.Exchange,
		Status:           string(b.Status),
		QuarantineCount:  b.QuarantineCount,
		QuarantinedAt:    nullTime(b.QuarantinedAt),
		RetrainingUntil:  nullTime(b.RetrainingUntil),
		PauseReason:      b.PauseReason,
		PausedFrom:       string(b.PausedFrom),
		NextAction:       string(b.NextAction),
		AdminOverride:    b.AdminOverride,
		OverrideBy:       b.OverrideBy,
		Capital:          b.Capital,
		CumulativeProfit: b.CumulativeProfit,
		TradeCount:       b.TradeCount,
		WinCount:         b.WinCount,
		LossCount:        b.LossCount,
		Version:          b.Version,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

// ToBot переводит строку в доменную запись
func (m *Bot) ToBot() types.Bot {
	return types.Bot{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Name:             m.Name,
		Exchange:         m.Exchange,
		Status:           types.BotStatus(m.Status),
		QuarantineCount:  m.QuarantineCount,
		QuarantinedAt:    timePtr(m.QuarantinedAt),
		RetrainingUntil:  timePtr(m.RetrainingUntil),
		PauseReason:      m.PauseReason,
		PausedFrom:       types.BotStatus(m.PausedFrom),
		NextAction:       types.NextAction(m.NextAction),
		AdminOverride:    m.AdminOverride,
		OverrideBy:       m.OverrideBy,
		Capital:          m.Capital,
		CumulativeProfit: m.CumulativeProfit,
		TradeCount:       m.TradeCount,
		WinCount:         m.WinCount,
		LossCount:        m.LossCount,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

// Transition - строка таблицы bot_transitions
type Transition struct {
	EventID         string       `db:"event_id"`
	BotID           string       `db:"bot_id"`
	OwnerID         string       `db:"owner_id"`
	FromStatus      string       `db:"from_status"`
	ToStatus        string       `db:"to_status"`
	Reason          string       `db:"reason"`
	TriggeredBy     string       `db:"triggered_by"`
	QuarantineCount int          `db:"quarantine_count"`
	RetrainingUntil sql.NullTime `db:"retraining_until"`
	NextAction      string       `db:"next_action"`
	OccurredAt      time.Time    `db:"occurred_at"`
}

// FromTransition строит строку истории из события перехода
func FromTransition(eventID string, t types.TransitionEvent) *Transition {
	return &Transition{
		EventID:         eventID,
		BotID:           t.BotID,
		OwnerID:         t.OwnerID,
		FromStatus:      string(t.From),
		ToStatus:        string(t.To),
		Reason:          t.Reason,
		TriggeredBy:     t.TriggeredBy,
		QuarantineCount: t.QuarantineCount,
		RetrainingUntil: nullTime(t.RetrainingUntil),
		NextAction:      string(t.NextAction),
		OccurredAt:      t.OccurredAt,
	}
}

// ToTransition переводит строку истории в событие перехода
func (m *Transition) ToTransition() types.TransitionEvent {
	return types.TransitionEvent{
		BotID:           m.BotID,
		OwnerID:         m.OwnerID,
		From:            types.BotStatus(m.FromStatus),
		To:              types.BotStatus(m.ToStatus),
		Reason:          m.Reason,
		TriggeredBy:     m.TriggeredBy,
		QuarantineCount: m.QuarantineCount,
		RetrainingUntil: timePtr(m.RetrainingUntil),
		NextAction:      types.NextAction(m.NextAction),
		OccurredAt:      m.OccurredAt.UTC(),
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
