// internal/delivery/dashboard/mode.go
package dashboard

import "fmt"

// TransportMode - способ доставки событий сессии
type TransportMode string

const (
	ModeDisconnected TransportMode = "disconnected"
	ModePush         TransportMode = "push"
	ModePolling      TransportMode = "polling"
)

// Valid проверяет значение режима
func (m TransportMode) Valid() bool {
	switch m {
	case ModeDisconnected, ModePush, ModePolling:
		return true
	}
	return false
}

// allowedModeTransitions - явная таблица переходов между режимами.
// Push и polling взаимоисключающие: вход в один режим останавливает другой.
var allowedModeTransitions = map[TransportMode][]TransportMode{
	ModeDisconnected: {ModePush, ModePolling},
	ModePush:         {ModeDisconnected, ModePolling},
	ModePolling:      {ModePush},
}

// CanTransition сообщает, разрешён ли переход из m в to.
// Сессия с исчерпанным бюджетом переподключений навсегда остаётся в polling.
func (m TransportMode) CanTransition(to TransportMode, pushExhausted bool) bool {
	if pushExhausted && to == ModePush {
		return false
	}
	for _, allowed := range allowedModeTransitions[m] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ModeTransitionError - запрещённая смена режима
type ModeTransitionError struct {
	From TransportMode
	To   TransportMode
}

func (e *ModeTransitionError) Error() string {
	return fmt.Sprintf("transport mode %s -> %s is not allowed", e.From, e.To)
}
