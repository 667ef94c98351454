// internal/core/domain/regeneration/workflow.go
package regeneration

import (
	"context"
	"fmt"
	"strings"

	"trading-bot-fleet/internal/core/domain/lifecycle"
	"trading-bot-fleet/internal/types"
	storagetypes "trading-bot-fleet/internal/types/storage"
	"trading-bot-fleet/pkg/clock"
	"trading-bot-fleet/pkg/logger"

	"github.com/google/uuid"
)

// Config - политика пересоздания бота
type Config struct {
	CarryCapital     bool    // перенести капитал удалённого бота
	PreserveExchange bool    // оставить прежнюю биржу
	DefaultCapital   float64 // капитал, если перенос выключен
	DefaultExchange  string  // биржа, если сохранение выключено
}

// DefaultConfig - перенос капитала и биржи
func DefaultConfig() Config {
	return Config{
		CarryCapital:     true,
		PreserveExchange: true,
		DefaultExchange:  "binance",
	}
}

// Workflow создает замену удалённому боту: новый id, quarantine_count = 0, статус active
type Workflow struct {
	config Config
	store  storagetypes.BotStore
	clock  clock.Clock
	newID  func() string
}

// NewWorkflow создает процесс пересоздания
func NewWorkflow(store storagetypes.BotStore, cfg Config, c clock.Clock) *Workflow {
	if c == nil {
		c = clock.New()
	}
	return &Workflow{
		config: cfg,
		store:  store,
		clock:  c,
		newID:  uuid.NewString,
	}
}

// WithIDGenerator подменяет генератор id (для тестов)
func (w *Workflow) WithIDGenerator(fn func() string) *Workflow {
	w.newID = fn
	return w
}

// Regenerate реализует lifecycle.Regenerator
func (w *Workflow) Regenerate(ctx context.Context, req lifecycle.RegenerationRequest) (types.Bot, error) {
	prev := req.Previous
	if prev.Status != types.StatusDeleted {
		return types.Bot{}, fmt.Errorf("regenerate %s: bot is %s, not deleted", prev.ID, prev.Status)
	}

	capital := w.config.DefaultCapital
	if w.config.CarryCapital {
		capital = prev.Capital
	}
	exchange := w.config.DefaultExchange
	if w.config.PreserveExchange && prev.Exchange != "" {
		exchange = prev.Exchange
	}

	now := w.clock.Now()
	replacement := types.Bot{
		ID:        w.newID(),
		OwnerID:   prev.OwnerID,
		Name:      nextGenerationName(prev.Name),
		Exchange:  exchange,
		Status:    types.StatusActive,
		Capital:   capital,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := w.store.Create(ctx, replacement)
	if err != nil {
		return types.Bot{}, fmt.Errorf("regenerate %s: %w", prev.ID, err)
	}

	logger.Info("♻️ [Regeneration] бот %s владельца %s заменён на %s (капитал %.2f, биржа %s)",
		prev.ID, prev.OwnerID, created.ID, created.Capital, created.Exchange)
	return created, nil
}

// nextGenerationName: "alpha" → "alpha #2", "alpha #2" → "alpha #3"
func nextGenerationName(name string) string {
	if name == "" {
		return ""
	}
	base, gen := name, 1
	if i := strings.LastIndex(name, " #"); i >= 0 {
		var n int
		if _, err := fmt.Sscanf(name[i+2:], "%d", &n); err == nil && n > 0 {
			base, gen = name[:i], n
		}
	}
	return fmt.Sprintf("%s #%d", base, gen+1)
}
