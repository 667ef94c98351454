// internal/core/domain/fleet/query.go
package fleet

import (
	"context"
	"fmt"
	"sort"
	"time"

	"trading-bot-fleet/internal/core/domain/quarantine"
	"trading-bot-fleet/internal/types"
	storagetypes "trading-bot-fleet/internal/types/storage"
	"trading-bot-fleet/pkg/clock"
)

// QuarantineView - карантинный бот с остатком окна переобучения
type QuarantineView struct {
	BotID           string           `json:"bot_id"`
	BotName         string           `json:"bot_name"`
	Exchange        string           `json:"exchange"`
	QuarantineCount int              `json:"quarantine_count"`
	QuarantinedAt   *time.Time       `json:"quarantined_at,omitempty"`
	RetrainingUntil time.Time        `json:"retraining_until"`
	Remaining       time.Duration    `json:"-"`
	RemainingSec    int64            `json:"remaining_seconds"`
	NextAction      types.NextAction `json:"next_action"`
	Reason          string           `json:"reason,omitempty"`
	// OnNextFailure - что сделает политика при следующем провале
	OnNextFailure types.NextAction `json:"on_next_failure"`
}

// Summary - сводка флота владельца
type Summary struct {
	OwnerID          string                  `json:"owner_id"`
	Total            int                     `json:"total"`
	ByStatus         map[types.BotStatus]int `json:"by_status"`
	Tradable         int                     `json:"tradable"`
	TotalCapital     float64                 `json:"total_capital"`
	CumulativeProfit float64                 `json:"cumulative_profit"`
	GeneratedAt      time.Time               `json:"generated_at"`
}

// Service - read-only проекции записей ботов для опроса и дашбордов.
// Каждый вызов читает хранилище заново.
type Service struct {
	store  storagetypes.BotStore
	policy *quarantine.Policy
	clock  clock.Clock
}

// NewService создает сервис запросов
func NewService(store storagetypes.BotStore, policy *quarantine.Policy, c clock.Clock) *Service {
	if policy == nil {
		policy = quarantine.DefaultPolicy()
	}
	if c == nil {
		c = clock.New()
	}
	return &Service{store: store, policy: policy, clock: c}
}

// ListQuarantined возвращает карантинных ботов владельца с остатком времени и следующим действием
func (s *Service) ListQuarantined(ctx context.Context, ownerID string) ([]QuarantineView, error) {
	bots, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("Fleet.ListQuarantined: %w", err)
	}

	now := s.clock.Now()
	views := make([]QuarantineView, 0)
	for _, bot := range bots {
		if !bot.IsQuarantined() || bot.RetrainingUntil == nil {
			continue
		}
		remaining := bot.RemainingRetraining(now)
		views = append(views, QuarantineView{
			BotID:           bot.ID,
			BotName:         bot.Name,
			Exchange:        bot.Exchange,
			QuarantineCount: bot.QuarantineCount,
			QuarantinedAt:   bot.QuarantinedAt,
			RetrainingUntil: *bot.RetrainingUntil,
			Remaining:       remaining,
			RemainingSec:    int64(remaining / time.Second),
			NextAction:      bot.NextAction,
			Reason:          bot.PauseReason,
			OnNextFailure:   s.policy.Decide(bot.QuarantineCount + 1).Action,
		})
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].RetrainingUntil.Before(views[j].RetrainingUntil)
	})
	return views, nil
}

// Snapshot возвращает текущих (не удалённых) ботов владельца
func (s *Service) Snapshot(ctx context.Context, ownerID string, includeDeleted bool) ([]types.Bot, error) {
	bots, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("Fleet.Snapshot: %w", err)
	}
	if includeDeleted {
		return bots, nil
	}

	out := bots[:0]
	for _, bot := range bots {
		if bot.Status != types.StatusDeleted {
			out = append(out, bot)
		}
	}
	return out, nil
}

// Summary считает ботов владельца по статусам
func (s *Service) Summary(ctx context.Context, ownerID string) (Summary, error) {
	bots, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return Summary{}, fmt.Errorf("Fleet.Summary: %w", err)
	}

	sum := Summary{
		OwnerID:     ownerID,
		ByStatus:    make(map[types.BotStatus]int),
		GeneratedAt: s.clock.Now(),
	}
	for _, bot := range bots {
		sum.ByStatus[bot.Status]++
		if bot.Status == types.StatusDeleted {
			continue
		}
		sum.Total++
		if bot.CanTrade() {
			sum.Tradable++
		}
		sum.TotalCapital += bot.Capital
		sum.CumulativeProfit += bot.CumulativeProfit
	}
	return sum, nil
}

// Census - число ботов всего парка по статусам, без учёта владельцев
func (s *Service) Census(ctx context.Context) (map[types.BotStatus]int, error) {
	statuses := []types.BotStatus{
		types.StatusActive, types.StatusLive, types.StatusPaused, types.StatusQuarantined, types.StatusDeleted,
	}
	counts := make(map[types.BotStatus]int, len(statuses))
	for _, status := range statuses {
		bots, err := s.store.ListByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("Fleet.Census: %w", err)
		}
		counts[status] = len(bots)
	}
	return counts, nil
}
