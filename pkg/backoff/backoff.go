package backoff

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Policy describes one bounded exponential backoff sequence. Every connect
// loop in the system runs under a Policy; only the numbers and the
// exhaustion handling differ between callers.
type Policy struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts uint64
}

// Run executes op under the policy, logging each failed attempt. It returns
// nil as soon as op succeeds, the last error once MaxAttempts attempts have
// failed, or early if ctx is cancelled while waiting.
func (p Policy) Run(ctx context.Context, name string, logger *zap.Logger, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()

	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(eb, p.MaxAttempts-1)
	}
	b = backoff.WithContext(b, ctx)

	attempt := 0
	notify := func(err error, next time.Duration) {
		attempt++
		logger.Warn("retrying",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Duration("next_in", next),
			zap.Error(err),
		)
	}

	return backoff.RetryNotify(op, b, notify)
}
