// internal/infrastructure/timer/arena.go
package timer

import (
	"sync"
	"time"

	"trading-bot-fleet/pkg/clock"
)

// Arena - набор отложенных вызовов, по одному на ключ (id бота).
// Повторное планирование заменяет прежний таймер; сработавший устаревший таймер
// не удаляет более новую запись.
type Arena struct {
	mu      sync.Mutex
	clock   clock.Clock
	pending map[string]*entry
	gen     uint64
}

type entry struct {
	gen      uint64
	deadline time.Time
	timer    clock.Timer
}

// NewArena создает арену поверх часов
func NewArena(c clock.Clock) *Arena {
	return &Arena{
		clock:   c,
		pending: make(map[string]*entry),
	}
}

// Schedule планирует fn на момент at для ключа key, отменяя предыдущий таймер
func (a *Arena) Schedule(key string, at time.Time, fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.pending[key]; ok {
		prev.timer.Stop()
	}

	a.gen++
	gen := a.gen
	delay := at.Sub(a.clock.Now())
	if delay < 0 {
		delay = 0
	}

	e := &entry{gen: gen, deadline: at}
	a.pending[key] = e
	e.timer = a.clock.AfterFunc(delay, func() {
		a.mu.Lock()
		if cur, ok := a.pending[key]; ok && cur.gen == gen {
			delete(a.pending, key)
		}
		a.mu.Unlock()
		fn()
	})
}

// Cancel отменяет таймер ключа. Возвращает true, если таймер был запланирован.
func (a *Arena) Cancel(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.pending[key]
	if !ok {
		return false
	}
	delete(a.pending, key)
	e.timer.Stop()
	return true
}

// Deadline возвращает момент срабатывания таймера ключа
func (a *Arena) Deadline(key string) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.pending[key]
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

// Len - количество запланированных таймеров
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stop отменяет все таймеры
func (a *Arena) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, e := range a.pending {
		e.timer.Stop()
		delete(a.pending, key)
	}
}
