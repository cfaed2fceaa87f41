package etl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/logger"
)

// Retry defaults
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Second
	maxBackoffDelay    = 5 * time.Minute
)

// BackoffFunc returns the delay before the attempt following attempt
// (attempt starts at 1).
type BackoffFunc func(attempt int, base time.Duration) time.Duration

// FixedBackoff waits base between every pair of attempts
func FixedBackoff(_ int, base time.Duration) time.Duration {
	return base
}

// ExponentialBackoff doubles the delay after each failed attempt, capped at five minutes
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoffDelay {
			return maxBackoffDelay
		}
	}
	return d
}

// RetryPolicy reruns a failing operation a bounded number of times
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     BackoffFunc

	// Sleep waits between attempts; it returns early with ctx's error
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called after each failed attempt that will be retried
	OnRetry func(op string, attempt int, err error)
}

// DefaultRetryPolicy returns three attempts with a fixed five second delay
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultRetryDelay,
		Backoff:     FixedBackoff,
	}
}

// Do runs fn until it succeeds or MaxAttempts is reached. The last error is
// returned wrapped with the attempt count.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = FixedBackoff
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	log := logger.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, lastErr)
		}

		log.Warn("Attempt failed",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr),
		)
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(op, attempt, lastErr)
		}
		if err := sleep(ctx, backoff(attempt, p.Delay)); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
