// /internal/types/errors.go
package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound - неизвестный id бота
	ErrNotFound = errors.New("bot not found")
	// ErrVersionConflict - хранилище обнаружило конкурентную запись
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidTransition - переход запрещён из текущего состояния
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrBacklogOverflow - диагностический признак потери буферизованных событий
	ErrBacklogOverflow = errors.New("backlog overflow")
	// ErrConnectionLost - push-канал потерян, клиент переподключается
	ErrConnectionLost = errors.New("connection lost")
	// ErrSessionNotFound - сессия распространения не найдена
	ErrSessionNotFound = errors.New("session not found")
	// ErrPushExhausted - бюджет переподключений исчерпан, сессия переведена в polling
	ErrPushExhausted = errors.New("push reconnect budget exhausted")
	// ErrForbidden - сессия или бот принадлежат другому владельцу
	ErrForbidden = errors.New("owner mismatch")
)

// InvalidTransitionError - типизированная ошибка недопустимого перехода
type InvalidTransitionError struct {
	From   BotStatus
	To     BotStatus
	Reason string
}

// NewInvalidTransition создает ошибку недопустимого перехода
func NewInvalidTransition(from, to BotStatus, reason string) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to, Reason: reason}
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
