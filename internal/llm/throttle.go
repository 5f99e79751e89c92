package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultMinInterval = 2 * time.Second
	DefaultMaxRetries  = 3
	defaultBackoffBase = 2 * time.Second
)

// Throttled spaces calls to the wrapped model by at least a minimum
// interval and retries throttled calls with exponential backoff
// (2s, 4s, 8s by default). Other errors are returned immediately.
type Throttled struct {
	next        Model
	limiter     *rate.Limiter
	maxRetries  uint64
	backoffBase time.Duration
	logger      *zap.Logger
}

// NewThrottled wraps next. Non-positive arguments use the defaults.
func NewThrottled(next Model, minInterval time.Duration, maxRetries int, logger *zap.Logger) *Throttled {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttled{
		next:        next,
		limiter:     rate.NewLimiter(rate.Every(minInterval), 1),
		maxRetries:  uint64(maxRetries),
		backoffBase: defaultBackoffBase,
		logger:      logger,
	}
}

// SetBackoffBase changes the first retry delay, for tests.
func (t *Throttled) SetBackoffBase(d time.Duration) {
	if d > 0 {
		t.backoffBase = d
	}
}

// Complete implements Model.
func (t *Throttled) Complete(ctx context.Context, system, prompt string) (string, error) {
	var out string
	op := func() error {
		if err := t.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		resp, err := t.next.Complete(ctx, system, prompt)
		if err != nil {
			var rl *RateLimitError
			if errors.As(err, &rl) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = resp
		return nil
	}

	notify := func(err error, wait time.Duration) {
		t.logger.Warn("model throttled, backing off", zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, t.policy(ctx), notify); err != nil {
		return "", err
	}
	return out, nil
}

func (t *Throttled) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = t.backoffBase
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = 60 * time.Second
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, t.maxRetries), ctx)
}
