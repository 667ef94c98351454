// pkg/clock/clock.go
package clock

import "time"

// Clock - источник времени и отложенных вызовов.
// Движок жизненного цикла и менеджер сессий получают время только через него,
// чтобы тесты могли двигать виртуальное время детерминированно.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer - отменяемый отложенный вызов
type Timer interface {
	// Stop отменяет вызов. Возвращает false, если вызов уже состоялся или был отменён.
	Stop() bool
}

// Real - системные часы
type Real struct{}

// New возвращает системные часы
func New() Clock {
	return Real{}
}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
