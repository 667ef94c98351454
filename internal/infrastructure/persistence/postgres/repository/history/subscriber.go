// /internal/infrastructure/persistence/postgres/repository/history/subscriber.go
package history_repo

import (
	"context"
	"time"

	"trading-bot-fleet/internal/types"
)

// Saver - приёмник переходов
type Saver interface {
	Save(ctx context.Context, eventID string, t types.TransitionEvent) error
}

// Recorder - подписчик шины, который пишет каждый переход в историю.
// Ошибка записи возвращается шине, которая повторит доставку.
type Recorder struct {
	saver   Saver
	timeout time.Duration
}

// NewRecorder создаёт подписчика истории
func NewRecorder(saver Saver) *Recorder {
	return &Recorder{saver: saver, timeout: 3 * time.Second}
}

func (r *Recorder) HandleEvent(event types.Event) error {
	if event.Relayed() {
		// уже обработано экземпляром-источником
		return nil
	}
	var transition types.TransitionEvent
	switch data := event.Data.(type) {
	case types.TransitionEvent:
		transition = data
	case *types.TransitionEvent:
		if data == nil {
			return nil
		}
		transition = *data
	default:
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.saver.Save(ctx, event.ID, transition)
}

func (r *Recorder) GetName() string {
	return "transition_history"
}

func (r *Recorder) GetSubscribedEvents() []types.EventType {
	return []types.EventType{types.EventBotTransition, types.EventBotCreated}
}
