package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appetl "github.com/Juliiscoding/MercuriosAIgoinglive/internal/application/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/config"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/scheduler"
)

func TestScheduleConfig(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 20, 0, 0, time.UTC)

	t.Run("defaults", func(t *testing.T) {
		sc, err := scheduleConfig(config.SchedulerConfig{IncrementalInterval: time.Hour})
		require.NoError(t, err)
		assert.Equal(t, base.Truncate(time.Hour).Add(time.Hour), sc.Incremental.Next(base))
		assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), sc.Full.Next(base))
	})

	t.Run("interval and daily time", func(t *testing.T) {
		sc, err := scheduleConfig(config.SchedulerConfig{
			IncrementalInterval: 15 * time.Minute,
			FullSyncHour:        3,
			FullSyncMinute:      30,
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), sc.Incremental.Next(base))
		assert.Equal(t, time.Date(2026, 3, 3, 3, 30, 0, 0, time.UTC), sc.Full.Next(base))
	})

	t.Run("cron overrides", func(t *testing.T) {
		sc, err := scheduleConfig(config.SchedulerConfig{
			IncrementalInterval: 15 * time.Minute,
			IncrementalCron:     "45 * * * *",
			FullCron:            "0 2 * * *",
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 2, 10, 45, 0, 0, time.UTC), sc.Incremental.Next(base))
		assert.Equal(t, time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC), sc.Full.Next(base))
	})

	t.Run("invalid cron", func(t *testing.T) {
		_, err := scheduleConfig(config.SchedulerConfig{FullCron: "*/5 * * * *"})
		require.Error(t, err)
		assert.ErrorIs(t, err, scheduler.ErrInvalidSchedule)
		assert.Contains(t, err.Error(), "scheduler.full_cron")
	})
}

func TestRetryPolicy(t *testing.T) {
	p := retryPolicy(config.SyncConfig{MaxRetries: 4, RetryDelay: 2 * time.Second, RetryBackoff: "fixed"})
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.Delay)
	assert.Equal(t, 2*time.Second, p.Backoff(3, p.Delay))

	p = retryPolicy(config.SyncConfig{MaxRetries: 3, RetryDelay: time.Second, RetryBackoff: "exponential"})
	assert.Equal(t, appetl.ExponentialBackoff(3, time.Second), p.Backoff(3, p.Delay))
}
