// Package scheduler runs functions on recurring schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TriggerFunc is the work run on every fire
type TriggerFunc func(ctx context.Context) error

// RecurringTrigger calls a function each time its schedule fires. Calls are
// sequential: a fire that comes due while the previous call is still running
// waits for it.
type RecurringTrigger struct {
	name     string
	schedule Schedule
	fn       TriggerFunc
	logger   *zap.Logger
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// TriggerOption configures a RecurringTrigger
type TriggerOption func(*RecurringTrigger)

// WithTriggerClock overrides the clock used to compute the next fire time
func WithTriggerClock(now func() time.Time) TriggerOption {
	return func(t *RecurringTrigger) {
		t.now = now
	}
}

// WithTriggerTimer overrides how the trigger waits for the next fire time
func WithTriggerTimer(after func(time.Duration) <-chan time.Time) TriggerOption {
	return func(t *RecurringTrigger) {
		t.after = after
	}
}

// NewRecurringTrigger creates a stopped trigger
func NewRecurringTrigger(
	name string,
	schedule Schedule,
	fn TriggerFunc,
	logger *zap.Logger,
	opts ...TriggerOption,
) *RecurringTrigger {
	t := &RecurringTrigger{
		name:     name,
		schedule: schedule,
		fn:       fn,
		logger:   logger.With(zap.String("trigger", name)),
		now:      time.Now,
		after:    time.After,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the trigger name
func (t *RecurringTrigger) Name() string {
	return t.name
}

// IsRunning reports whether the trigger loop is active
func (t *RecurringTrigger) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning
}

// Start starts the trigger loop
func (t *RecurringTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return ErrTriggerAlreadyRunning
	}
	t.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Recurring trigger started",
		zap.String("schedule", fmt.Sprint(t.schedule)),
		zap.Time("next_run", t.schedule.Next(t.now())),
	)
	return nil
}

// Stop cancels the loop and waits for it to exit, bounded by ctx
func (t *RecurringTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Recurring trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *RecurringTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	for {
		now := t.now()
		next := t.schedule.Next(now)
		wait := next.Sub(now)
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-t.after(wait):
			if ctx.Err() != nil {
				return
			}
			t.fire(ctx, next)
		}
	}
}

// fire runs the function once; errors and panics are logged and contained
func (t *RecurringTrigger) fire(ctx context.Context, scheduled time.Time) {
	start := t.now()
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Scheduled run panicked",
				zap.Time("scheduled_at", scheduled),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	t.logger.Info("Scheduled run starting", zap.Time("scheduled_at", scheduled))
	if err := t.fn(ctx); err != nil {
		t.logger.Error("Scheduled run failed",
			zap.Time("scheduled_at", scheduled),
			zap.Duration("duration", t.now().Sub(start)),
			zap.Error(err),
		)
		return
	}
	t.logger.Info("Scheduled run completed",
		zap.Time("scheduled_at", scheduled),
		zap.Duration("duration", t.now().Sub(start)),
	)
}
