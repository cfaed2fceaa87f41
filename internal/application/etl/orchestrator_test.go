package etl

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/scheduler"
)

func seededFetcher() *fakeFetcher {
	f := newFakeFetcher()
	f.records[EndpointBranches] = []etl.RawRecord{
		{"branchNumber": 1, "name": "Mitte"},
		{"branchNumber": 2},
	}
	f.records[EndpointArticles] = []etl.RawRecord{{"articleNumber": 10, "price": "5.00"}}
	f.records[EndpointCustomers] = []etl.RawRecord{{"customerNumber": 100}}
	f.records[EndpointSales] = []etl.RawRecord{
		{"id": "s1", "branchNumber": 1, "date": "2026-03-01T09:00:00Z", "salePrice": "5.00"},
		{"id": "s2", "branchNumber": 2, "date": "2026-03-01T10:00:00Z", "salePrice": "7.50"},
	}
	return f
}

func newTestOrchestrator(f *fakeFetcher, l Loader, log *zap.Logger, opts ...OrchestratorOption) *Orchestrator {
	ex := NewExtractor(f, log, WithRetryPolicy(noSleepPolicy()))
	tr := NewTransformer(log, WithClock(func() time.Time { return fixedNow }))
	return NewOrchestrator(ex, tr, l, log, opts...)
}

func TestOrchestrator_RunFullSync(t *testing.T) {
	f := seededFetcher()
	loader := newMemoryLoader()
	o := newTestOrchestrator(f, loader, zap.NewNop())

	require.NoError(t, o.RunFullSync(context.Background()))

	assert.Equal(t, []string{etl.JobLoadBranches, etl.JobLoadArticles, etl.JobLoadCustomers, etl.JobLoadSales}, loader.jobOrder())
	branches, articles, customers, sales := loader.snapshot()
	assert.Len(t, branches, 2)
	assert.Equal(t, "Mitte", branches[1].Name)
	assert.Len(t, articles, 1)
	assert.Len(t, customers, 1)
	assert.Len(t, sales, 2)

	calls := f.callsTo(EndpointSales)
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].query.Get("fromDate"))
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestrator_FullSyncIsIdempotent(t *testing.T) {
	f := seededFetcher()
	loader := newMemoryLoader()
	o := newTestOrchestrator(f, loader, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, o.RunFullSync(ctx))
	b1, a1, c1, s1 := loader.snapshot()
	require.NoError(t, o.RunFullSync(ctx))
	b2, a2, c2, s2 := loader.snapshot()

	assert.Equal(t, b1, b2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, c1, c2)
	assert.Equal(t, s1, s2)
}

func TestOrchestrator_IncrementalFallsBackToFull(t *testing.T) {
	ctx := context.Background()

	fullLoader := newMemoryLoader()
	require.NoError(t, newTestOrchestrator(seededFetcher(), fullLoader, zap.NewNop()).RunFullSync(ctx))

	core, logs := observer.New(zap.InfoLevel)
	f := seededFetcher()
	incLoader := newMemoryLoader()
	o := newTestOrchestrator(f, incLoader, zap.New(core))
	require.NoError(t, o.RunIncrementalSync(ctx))

	fb, fa, fc, fs := fullLoader.snapshot()
	ib, ia, ic, is := incLoader.snapshot()
	assert.Equal(t, fb, ib)
	assert.Equal(t, fa, ia)
	assert.Equal(t, fc, ic)
	assert.Equal(t, fs, is)
	assert.Equal(t, fullLoader.jobOrder(), incLoader.jobOrder())
	assert.Empty(t, f.callsTo(EndpointSales)[0].query.Get("fromDate"))
	assert.Equal(t, 1, logs.FilterMessage("No previous sales sync found, running full sync").Len())
}

func TestOrchestrator_IncrementalSync(t *testing.T) {
	last := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("loads sales since the last sync and refreshes the rest", func(t *testing.T) {
		f := seededFetcher()
		loader := newMemoryLoader()
		loader.lastSync = &last
		o := newTestOrchestrator(f, loader, zap.NewNop())

		require.NoError(t, o.RunIncrementalSync(context.Background()))

		calls := f.callsTo(EndpointSales)
		require.Len(t, calls, 1)
		assert.Equal(t, "2026-03-01T08:00:00Z", calls[0].query.Get("fromDate"))

		jobs := loader.jobOrder()
		require.Len(t, jobs, 4)
		assert.Equal(t, []string{etl.JobLoadBranches, etl.JobLoadSales}, jobs[:2])
		assert.ElementsMatch(t, []string{etl.JobLoadArticles, etl.JobLoadCustomers}, jobs[2:])
	})

	t.Run("loads a sale at a branch opened since the last sync", func(t *testing.T) {
		f := seededFetcher()
		f.records[EndpointBranches] = append(f.records[EndpointBranches], etl.RawRecord{"branchNumber": 3, "name": "Neu"})
		f.records[EndpointSales] = []etl.RawRecord{
			{"id": "s3", "branchNumber": 3, "date": "2026-03-01T11:00:00Z", "salePrice": "12.00"},
		}
		loader := newMemoryLoader()
		loader.enforceBranches = true
		loader.lastSync = &last
		loader.branches[1] = etl.Branch{BranchNumber: 1}
		loader.branches[2] = etl.Branch{BranchNumber: 2}
		o := newTestOrchestrator(f, loader, zap.NewNop())

		require.NoError(t, o.RunIncrementalSync(context.Background()))

		branches, _, _, sales := loader.snapshot()
		assert.Equal(t, "Neu", branches[3].Name)
		require.Contains(t, sales, "s3")
		assert.Equal(t, 3, sales["s3"].BranchNumber)
	})

	t.Run("skips the sales load when nothing changed", func(t *testing.T) {
		f := seededFetcher()
		f.records[EndpointSales] = nil
		loader := newMemoryLoader()
		loader.lastSync = &last
		o := newTestOrchestrator(f, loader, zap.NewNop())

		require.NoError(t, o.RunIncrementalSync(context.Background()))
		assert.NotContains(t, loader.jobOrder(), etl.JobLoadSales)
		assert.Len(t, loader.jobOrder(), 3)
	})

	t.Run("refreshes articles and customers concurrently", func(t *testing.T) {
		f := seededFetcher()
		f.records[EndpointSales] = nil
		f.block = make(chan struct{})
		f.blockOn = map[string]bool{EndpointArticles: true, EndpointCustomers: true}
		f.started = make(chan string, 8)
		loader := newMemoryLoader()
		loader.lastSync = &last
		o := newTestOrchestrator(f, loader, zap.NewNop())

		done := make(chan error, 1)
		go func() { done <- o.RunIncrementalSync(context.Background()) }()

		assert.Equal(t, EndpointBranches, waitFor(t, f.started))
		assert.Equal(t, EndpointSales, waitFor(t, f.started))
		// both fetches start before either is allowed to finish
		seen := map[string]bool{}
		for range 2 {
			seen[waitFor(t, f.started)] = true
		}
		assert.Equal(t, map[string]bool{EndpointArticles: true, EndpointCustomers: true}, seen)
		close(f.block)
		require.NoError(t, waitFor(t, done))
	})
}

func TestOrchestrator_ErrorsPropagate(t *testing.T) {
	t.Run("extraction failure stops the run and releases the guard", func(t *testing.T) {
		f := seededFetcher()
		transient := etl.NewTransientNetworkError("fetch /article", "HTTP 500", nil)
		f.failures[EndpointArticles] = []error{transient, transient, transient}
		loader := newMemoryLoader()
		o := newTestOrchestrator(f, loader, zap.NewNop())

		err := o.RunFullSync(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, etl.ErrTransientNetwork)
		assert.Equal(t, []string{etl.JobLoadBranches}, loader.jobOrder())
		assert.Equal(t, StateIdle, o.State())

		// the guard was released so the next run proceeds
		require.NoError(t, o.RunFullSync(context.Background()))
		assert.Contains(t, loader.jobOrder(), etl.JobLoadSales)
	})

	t.Run("transform failure prevents the load", func(t *testing.T) {
		f := seededFetcher()
		f.records[EndpointCustomers] = []etl.RawRecord{{"customerNumber": "n/a"}}
		loader := newMemoryLoader()
		o := newTestOrchestrator(f, loader, zap.NewNop())

		err := o.RunFullSync(context.Background())
		assert.ErrorIs(t, err, etl.ErrTransform)
		assert.Equal(t, []string{etl.JobLoadBranches, etl.JobLoadArticles}, loader.jobOrder())
	})

	t.Run("load failure is returned", func(t *testing.T) {
		f := seededFetcher()
		loader := newMemoryLoader()
		loader.failJob = etl.JobLoadSales
		loader.failErr = errors.New("constraint violation")
		core, logs := observer.New(zap.ErrorLevel)
		o := newTestOrchestrator(f, loader, zap.New(core))

		err := o.RunFullSync(context.Background())
		assert.ErrorIs(t, err, etl.ErrLoad)
		entries := logs.FilterMessage("Sync failed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "full", entries[0].ContextMap()["mode"])
		assert.NotEmpty(t, entries[0].ContextMap()["run_id"])
	})
}

func TestOrchestrator_ConcurrencyGuard(t *testing.T) {
	f := seededFetcher()
	f.block = make(chan struct{})
	f.started = make(chan string, 8)
	loader := newMemoryLoader()
	core, logs := observer.New(zap.WarnLevel)
	o := newTestOrchestrator(f, loader, zap.New(core))

	done := make(chan error, 1)
	go func() { done <- o.RunFullSync(context.Background()) }()
	assert.Equal(t, EndpointBranches, waitFor(t, f.started))
	assert.Equal(t, StateRunning, o.State())

	// a second call while the first is in flight is a no-op
	require.NoError(t, o.RunIncrementalSync(context.Background()))
	require.NoError(t, o.RunFullSync(context.Background()))
	assert.Equal(t, 2, logs.FilterMessage("ETL process already running, skipping").Len())

	close(f.block)
	require.NoError(t, waitFor(t, done))
	assert.Len(t, f.callsTo(EndpointBranches), 1)
	assert.Equal(t, StateIdle, o.State())
}

// failingGuard reports a backend error on every acquire
type failingGuard struct{}

func (failingGuard) TryAcquire(context.Context) (func(), bool, error) {
	return nil, false, errors.New("redis unavailable")
}

func TestOrchestrator_GuardError(t *testing.T) {
	f := seededFetcher()
	o := newTestOrchestrator(f, newMemoryLoader(), zap.NewNop(), WithRunGuard(failingGuard{}))

	err := o.RunFullSync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis unavailable")
	assert.Empty(t, f.endpoints())
}

func TestOrchestrator_ScheduledSync(t *testing.T) {
	var waits atomic.Int32
	fired := make(chan time.Time, 1)
	fired <- fixedNow
	// only the first wait fires; later waits block until the trigger stops
	after := func(time.Duration) <-chan time.Time {
		if waits.Add(1) == 1 {
			return fired
		}
		return make(chan time.Time)
	}

	f := seededFetcher()
	f.started = make(chan string, 16)
	loader := newMemoryLoader()
	o := newTestOrchestrator(f, loader, zap.NewNop(), WithSchedule(ScheduleConfig{
		Incremental:    scheduler.Hourly(),
		Full:           scheduler.DailyAt(0, 0),
		TriggerOptions: []scheduler.TriggerOption{scheduler.WithTriggerTimer(after)},
	}))
	ctx := context.Background()

	require.NoError(t, o.StartScheduledSync(ctx))
	assert.ErrorIs(t, o.StartScheduledSync(ctx), ErrScheduleRunning)

	// either trigger runs a full sync against the empty store
	assert.Equal(t, EndpointBranches, waitFor(t, f.started))
	require.Eventually(t, func() bool {
		_, _, _, sales := loader.snapshot()
		return len(sales) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, o.StopScheduledSync(ctx))
	require.NoError(t, o.StopScheduledSync(ctx))
	require.NoError(t, o.StartScheduledSync(ctx))
	require.NoError(t, o.StopScheduledSync(ctx))
}

func waitFor[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
		var zero T
		return zero
	}
}
