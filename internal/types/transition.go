// /internal/types/transition.go
package types

import "time"

// TransitionEvent - неизменяемая запись о принятом переходе.
// Публикуется ровно один раз на каждый принятый переход.
type TransitionEvent struct {
	BotID           string     `json:"bot_id"`
	OwnerID         string     `json:"owner_id"`
	BotName         string     `json:"bot_name"`
	From            BotStatus  `json:"from_status"`
	To              BotStatus  `json:"to_status"`
	Reason          string     `json:"reason"`
	TriggeredBy     string     `json:"triggered_by"`
	QuarantineCount int        `json:"quarantine_count"`
	RetrainingUntil *time.Time `json:"retraining_until,omitempty"`
	NextAction      NextAction `json:"next_action,omitempty"`
	Exchange        string     `json:"exchange,omitempty"`
	OccurredAt      time.Time  `json:"occurred_at"`
}

// NewTransitionEvent строит событие из состояний до и после перехода
func NewTransitionEvent(before, after Bot, reason, actor string, at time.Time) TransitionEvent {
	ev := TransitionEvent{
		BotID:           after.ID,
		OwnerID:         after.OwnerID,
		BotName:         after.Name,
		From:            before.Status,
		To:              after.Status,
		Reason:          reason,
		TriggeredBy:     actor,
		QuarantineCount: after.QuarantineCount,
		NextAction:      after.NextAction,
		Exchange:        after.Exchange,
		OccurredAt:      at,
	}
	if after.RetrainingUntil != nil {
		ev.RetrainingUntil = TimePtr(*after.RetrainingUntil)
	}
	return ev
}

// ToEvent упаковывает переход в конверт шины
func (t TransitionEvent) ToEvent(eventType EventType, source string) Event {
	return Event{
		Type:      eventType,
		Source:    source,
		OwnerID:   t.OwnerID,
		BotID:     t.BotID,
		Data:      t,
		Timestamp: t.OccurredAt,
		Metadata:  Metadata{Actor: t.TriggeredBy},
	}
}
