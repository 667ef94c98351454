// /internal/types/bot.go
package types

import (
	"fmt"
	"time"
)

// BotStatus - статус жизненного цикла бота
type BotStatus string

const (
	StatusActive      BotStatus = "active"
	StatusPaused      BotStatus = "paused"
	StatusQuarantined BotStatus = "quarantined"
	StatusLive        BotStatus = "live"
	StatusDeleted     BotStatus = "deleted"
)

// Valid проверяет, что статус входит в известный набор
func (s BotStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusQuarantined, StatusLive, StatusDeleted:
		return true
	}
	return false
}

// NextAction - действие, которое политика карантина назначила после окна переобучения
type NextAction string

const (
	NextActionNone                NextAction = ""
	NextActionRedeploy            NextAction = "redeploy"
	NextActionDeleteAndRegenerate NextAction = "delete_and_regenerate"
)

// Bot - автономная торговая единица.
// Поля статуса и карантина меняет только движок жизненного цикла.
type Bot struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`

	Status          BotStatus  `json:"status"`
	QuarantineCount int        `json:"quarantine_count"`
	QuarantinedAt   *time.Time `json:"quarantined_at,omitempty"`
	RetrainingUntil *time.Time `json:"retraining_until,omitempty"`
	PauseReason     string     `json:"pause_reason,omitempty"`
	PausedFrom      BotStatus  `json:"paused_from,omitempty"`
	NextAction      NextAction `json:"next_action,omitempty"`
	AdminOverride   bool       `json:"admin_override"`
	OverrideBy      string     `json:"override_by,omitempty"`

	// Показатели торговли: пишет внешний торговый движок, здесь только чтение
	Capital          float64 `json:"capital"`
	CumulativeProfit float64 `json:"cumulative_profit"`
	TradeCount       int     `json:"trade_count"`
	WinCount         int     `json:"win_count"`
	LossCount        int     `json:"loss_count"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone возвращает копию без общих указателей
func (b Bot) Clone() Bot {
	c := b
	if b.QuarantinedAt != nil {
		t := *b.QuarantinedAt
		c.QuarantinedAt = &t
	}
	if b.RetrainingUntil != nil {
		t := *b.RetrainingUntil
		c.RetrainingUntil = &t
	}
	return c
}

// CanTrade сообщает торговому движку, можно ли выставлять ордера
func (b Bot) CanTrade() bool {
	return b.Status == StatusActive || b.Status == StatusLive
}

// IsQuarantined - бот в карантине (включая под-состояние переобучения)
func (b Bot) IsQuarantined() bool {
	return b.Status == StatusQuarantined
}

// RemainingRetraining возвращает остаток окна переобучения относительно now
func (b Bot) RemainingRetraining(now time.Time) time.Duration {
	if b.RetrainingUntil == nil {
		return 0
	}
	if left := b.RetrainingUntil.Sub(now); left > 0 {
		return left
	}
	return 0
}

// CheckInvariants проверяет инварианты записи после каждого перехода
func (b Bot) CheckInvariants() error {
	if !b.Status.Valid() {
		return fmt.Errorf("bot %s: unknown status %q", b.ID, b.Status)
	}
	if b.QuarantineCount < 0 {
		return fmt.Errorf("bot %s: negative quarantine_count", b.ID)
	}
	if (b.RetrainingUntil != nil) != (b.Status == StatusQuarantined) {
		return fmt.Errorf("bot %s: retraining_until must be set iff status is quarantined (status=%s)",
			b.ID, b.Status)
	}
	return nil
}

// TimePtr - помощник для nullable-времени
func TimePtr(t time.Time) *time.Time {
	return &t
}
