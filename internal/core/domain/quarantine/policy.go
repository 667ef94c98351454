// internal/core/domain/quarantine/policy.go
package quarantine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"trading-bot-fleet/internal/types"

	"gopkg.in/yaml.v3"
)

// DefaultWindows - окна переобучения по номеру попытки: 1ч, 3ч, 24ч
var DefaultWindows = []time.Duration{
	1 * time.Hour,
	3 * time.Hour,
	24 * time.Hour,
}

// Decision - решение политики для конкретной попытки
type Decision struct {
	Attempt  int
	Duration time.Duration
	Action   types.NextAction
}

// Terminal сообщает, что бот должен быть удалён и пересоздан
func (d Decision) Terminal() bool {
	return d.Action == types.NextActionDeleteAndRegenerate
}

// Policy - чистая функция (номер попытки) → (длительность окна, следующее действие)
type Policy struct {
	windows []time.Duration
}

// DefaultPolicy возвращает таблицу 1ч / 3ч / 24ч / удаление
func DefaultPolicy() *Policy {
	p, _ := NewPolicy(DefaultWindows)
	return p
}

// NewPolicy создает политику из упорядоченного списка окон.
// Попытка len(windows)+1 и далее означает удаление с пересозданием.
func NewPolicy(windows []time.Duration) (*Policy, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("quarantine policy: at least one retraining window is required")
	}
	for i, w := range windows {
		if w <= 0 {
			return nil, fmt.Errorf("quarantine policy: window #%d must be positive, got %v", i+1, w)
		}
	}
	copied := make([]time.Duration, len(windows))
	copy(copied, windows)
	return &Policy{windows: copied}, nil
}

// Decide возвращает решение для попытки attempt (счёт с 1)
func (p *Policy) Decide(attempt int) Decision {
	switch {
	case attempt <= 0:
		return Decision{Attempt: attempt, Action: types.NextActionNone}
	case attempt <= len(p.windows):
		return Decision{
			Attempt:  attempt,
			Duration: p.windows[attempt-1],
			Action:   types.NextActionRedeploy,
		}
	default:
		return Decision{Attempt: attempt, Action: types.NextActionDeleteAndRegenerate}
	}
}

// Duration - длительность окна для попытки (0 для терминальной)
func (p *Policy) Duration(attempt int) time.Duration {
	return p.Decide(attempt).Duration
}

// DeleteThreshold - номер попытки, на которой бот удаляется
func (p *Policy) DeleteThreshold() int {
	return len(p.windows) + 1
}

// Windows возвращает копию таблицы окон
func (p *Policy) Windows() []time.Duration {
	out := make([]time.Duration, len(p.windows))
	copy(out, p.windows)
	return out
}

func (p *Policy) String() string {
	parts := make([]string, 0, len(p.windows)+1)
	for i, w := range p.windows {
		parts = append(parts, fmt.Sprintf("#%d=%v", i+1, w))
	}
	parts = append(parts, fmt.Sprintf("#%d=%s", p.DeleteThreshold(), types.NextActionDeleteAndRegenerate))
	return strings.Join(parts, ", ")
}

// policyFile - формат YAML-файла политики
type policyFile struct {
	RetrainingWindows []string `yaml:"retraining_windows"`
}

// LoadPolicyFile читает таблицу окон из YAML:
//
//	retraining_windows: ["1h", "3h", "24h"]
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("quarantine policy: read %s: %w", path, err)
	}
	return ParsePolicy(data)
}

// ParsePolicy разбирает YAML-описание политики
func ParsePolicy(data []byte) (*Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("quarantine policy: parse yaml: %w", err)
	}

	windows := make([]time.Duration, 0, len(file.RetrainingWindows))
	for _, raw := range file.RetrainingWindows {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("quarantine policy: window %q: %w", raw, err)
		}
		windows = append(windows, d)
	}
	return NewPolicy(windows)
}
