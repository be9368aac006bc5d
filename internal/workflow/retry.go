package workflow

import (
	"math/rand/v2"
	"time"

	"reelscribe/internal/config"
)

// RetryPolicy schedules retries of transient stage failures.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
}

// RetryPolicyFromConfig builds the policy from the [retry] section.
func RetryPolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      config.Seconds(cfg.Retry.BaseDelay),
		MaxDelay:       config.Seconds(cfg.Retry.MaxDelay),
		JitterFraction: cfg.Retry.JitterFraction,
	}
}

// Backoff returns base * 2^attempts plus up to JitterFraction of that delay,
// capped at MaxDelay.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	attempts = max(attempts, 0)
	delay := p.BaseDelay
	for range attempts {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.JitterFraction > 0 {
		delay += time.Duration(rand.Float64() * p.JitterFraction * float64(delay))
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
