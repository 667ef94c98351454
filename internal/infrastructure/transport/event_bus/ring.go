// internal/infrastructure/transport/event_bus/ring.go
package events

import "trading-bot-fleet/internal/types"

// ring - ограниченный буфер последних событий с монотонными номерами.
// При заполнении вытесняется самое старое событие.
type ring struct {
	buf     []types.Event
	head    int // индекс самого старого события
	size    int
	lastSeq uint64
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{buf: make([]types.Event, capacity)}
}

// push присваивает событию номер и сохраняет его. dropped=true, если вытеснено старое событие.
func (r *ring) push(event types.Event) (stored types.Event, dropped bool) {
	r.lastSeq++
	event.Seq = r.lastSeq

	if r.size == len(r.buf) {
		r.buf[r.head] = event
		r.head = (r.head + 1) % len(r.buf)
		return event, true
	}

	r.buf[(r.head+r.size)%len(r.buf)] = event
	r.size++
	return event, false
}

// oldestSeq - номер самого старого сохранённого события (0, если буфер пуст)
func (r *ring) oldestSeq() uint64 {
	if r.size == 0 {
		return 0
	}
	return r.buf[r.head].Seq
}

// since возвращает до limit событий с номером больше after, прошедших фильтр.
// missed - сколько событий после after уже вытеснено из буфера.
// next - курсор, с которого продолжать (номер последнего просмотренного события).
func (r *ring) since(after uint64, filter func(types.Event) bool, limit int) (events []types.Event, missed uint64, next uint64) {
	// курсор из будущего: шина перезапущена, нумерация началась заново
	if after > r.lastSeq {
		after = 0
	}
	next = after
	if r.size == 0 {
		if after < r.lastSeq {
			missed = r.lastSeq - after
			next = r.lastSeq
		}
		return nil, missed, next
	}

	oldest := r.oldestSeq()
	if after+1 < oldest {
		missed = oldest - after - 1
		next = oldest - 1
	}

	start := 0
	if next >= oldest {
		start = int(next - oldest + 1)
	}
	for i := start; i < r.size; i++ {
		ev := r.buf[(r.head+i)%len(r.buf)]
		next = ev.Seq
		if filter == nil || filter(ev) {
			events = append(events, ev)
			if limit > 0 && len(events) >= limit {
				break
			}
		}
	}
	return events, missed, next
}

func (r *ring) len() int {
	return r.size
}
