// internal/delivery/dashboard/backoff.go
package dashboard

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffConfig - параметры экспоненциальной задержки переподключения:
// начальная задержка, удвоение на каждой попытке, потолок, лимит попыток
type BackoffConfig struct {
	Initial     time.Duration `json:"initial"`
	Max         time.Duration `json:"max"`
	MaxAttempts int           `json:"max_attempts"`
}

// DefaultBackoff - 2с, удвоение до 60с, 5 попыток
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Initial:     2 * time.Second,
		Max:         60 * time.Second,
		MaxAttempts: 5,
	}
}

// NewExponential создает детерминированный (без джиттера) backoff
func (c BackoffConfig) NewExponential() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.Initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.Max,
	}
	b.Reset()
	return b
}

// Delay - задержка перед попыткой attempt (счёт с 1)
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	b := c.NewExponential()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Exhausted сообщает, что попытка attempt превысила бюджет
func (c BackoffConfig) Exhausted(attempt int) bool {
	return c.MaxAttempts > 0 && attempt > c.MaxAttempts
}
