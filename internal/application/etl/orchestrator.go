package etl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/logger"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/scheduler"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/telemetry"
)

// ErrScheduleRunning is returned when scheduled sync is started twice
var ErrScheduleRunning = errors.New("etl: scheduled sync already running")

// Loader persists canonical entities and reads the sync history
type Loader interface {
	LoadBranches(ctx context.Context, branches []etl.Branch) error
	LoadArticles(ctx context.Context, articles []etl.Article) error
	LoadCustomers(ctx context.Context, customers []etl.Customer) error
	LoadSales(ctx context.Context, sales []etl.Sale) error
	GetLastSyncDate(ctx context.Context) (*time.Time, error)
}

// State is the orchestrator's run state
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Mode names a sync strategy
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// ScheduleConfig holds the recurring schedules for scheduled sync
type ScheduleConfig struct {
	Incremental scheduler.Schedule
	Full        scheduler.Schedule
	// TriggerOptions are passed to both recurring triggers
	TriggerOptions []scheduler.TriggerOption
}

// DefaultScheduleConfig runs incremental sync at the top of every hour and
// full sync at local midnight.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		Incremental: scheduler.Hourly(),
		Full:        scheduler.DailyAt(0, 0),
	}
}

// Orchestrator sequences extract, transform and load per entity type and
// ensures only one sync runs at a time.
type Orchestrator struct {
	extractor   *Extractor
	transformer *Transformer
	loader      Loader
	guard       RunGuard
	metrics     *telemetry.ETLMetrics
	schedule    ScheduleConfig
	logger      *zap.Logger
	now         func() time.Time

	running atomic.Bool

	mu       sync.Mutex // Protects triggers
	triggers []*scheduler.RecurringTrigger
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithRunGuard replaces the in-process guard
func WithRunGuard(g RunGuard) OrchestratorOption {
	return func(o *Orchestrator) {
		o.guard = g
	}
}

// WithOrchestratorMetrics records run outcomes and load volume on m
func WithOrchestratorMetrics(m *telemetry.ETLMetrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithSchedule replaces the default recurring schedules
func WithSchedule(cfg ScheduleConfig) OrchestratorOption {
	return func(o *Orchestrator) {
		o.schedule = cfg
	}
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(
	extractor *Extractor,
	transformer *Transformer,
	loader Loader,
	logger *zap.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		extractor:   extractor,
		transformer: transformer,
		loader:      loader,
		guard:       NewMemoryRunGuard(),
		schedule:    DefaultScheduleConfig(),
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State reports whether this process is running a sync
func (o *Orchestrator) State() State {
	if o.running.Load() {
		return StateRunning
	}
	return StateIdle
}

// RunFullSync synchronizes branches, articles, customers and all sales.
// It returns nil without doing anything when another sync holds the guard.
func (o *Orchestrator) RunFullSync(ctx context.Context) error {
	return o.run(ctx, ModeFull, o.fullSync)
}

// RunIncrementalSync loads sales changed since the last completed sales load
// and refreshes the reference entities. Without a previous sales load it
// performs a full sync. It returns nil without doing anything when another
// sync holds the guard.
func (o *Orchestrator) RunIncrementalSync(ctx context.Context) error {
	return o.run(ctx, ModeIncremental, o.incrementalSync)
}

func (o *Orchestrator) run(ctx context.Context, mode Mode, fn func(ctx context.Context) error) error {
	release, acquired, err := o.guard.TryAcquire(ctx)
	if err != nil {
		o.logger.Error("Failed to acquire sync guard", zap.String("mode", string(mode)), zap.Error(err))
		return fmt.Errorf("acquire sync guard: %w", err)
	}
	if !acquired {
		o.logger.Warn("ETL process already running, skipping", zap.String("mode", string(mode)))
		return nil
	}
	defer release()

	o.running.Store(true)
	defer o.running.Store(false)

	runID := uuid.NewString()
	ctx, log := logger.WithRunID(ctx, o.logger, runID)
	ctx, span := telemetry.StartSpan(ctx, "etl."+string(mode)+"_sync",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, runID),
		telemetry.WithAttribute(telemetry.SpanAttrMode, string(mode)),
	)
	defer span.End()

	start := o.now()
	log.Info("Starting sync", zap.String("mode", string(mode)))

	err = fn(ctx)
	elapsed := o.now().Sub(start)
	if err != nil {
		o.metrics.RecordRun(ctx, string(mode), etl.SyncStatusFailed.String(), elapsed)
		telemetry.RecordError(span, err)
		log.Error("Sync failed",
			zap.String("mode", string(mode)),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return err
	}

	o.metrics.RecordRun(ctx, string(mode), etl.SyncStatusCompleted.String(), elapsed)
	telemetry.SetOK(span)
	log.Info("Sync completed", zap.String("mode", string(mode)), zap.Duration("duration", elapsed))
	return nil
}

func (o *Orchestrator) fullSync(ctx context.Context) error {
	steps := []func(context.Context) error{
		o.syncBranches,
		o.syncArticles,
		o.syncCustomers,
		func(ctx context.Context) error { return o.syncSales(ctx, nil) },
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) incrementalSync(ctx context.Context) error {
	log := logger.FromContext(ctx)

	lastSync, err := o.loader.GetLastSyncDate(ctx)
	if err != nil {
		return fmt.Errorf("read last sync date: %w", err)
	}
	if lastSync == nil {
		log.Info("No previous sales sync found, running full sync")
		return o.fullSync(ctx)
	}

	telemetry.AddEvent(trace.SpanFromContext(ctx), "incremental window", telemetry.SpanAttrFromDate, *lastSync)

	// sales reference branches, so branches opened since the last run land first
	if err := o.syncBranches(ctx); err != nil {
		return err
	}

	raw, err := o.extractor.ExtractIncrementalSales(ctx, *lastSync)
	if err != nil {
		return err
	}
	sales, err := o.transformer.TransformSales(raw)
	if err != nil {
		return err
	}
	if len(sales) > 0 {
		if err := o.load(ctx, etl.JobLoadSales, len(sales), func(ctx context.Context) error {
			return o.loader.LoadSales(ctx, sales)
		}); err != nil {
			return err
		}
	} else {
		log.Info("No new sales since last sync", zap.Time("last_sync_date", *lastSync))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.syncArticles(gctx) })
	g.Go(func() error { return o.syncCustomers(gctx) })
	return g.Wait()
}

func (o *Orchestrator) syncBranches(ctx context.Context) error {
	raw, err := o.extractor.ExtractBranches(ctx)
	if err != nil {
		return err
	}
	branches, err := o.transformer.TransformBranches(raw)
	if err != nil {
		return err
	}
	return o.load(ctx, etl.JobLoadBranches, len(branches), func(ctx context.Context) error {
		return o.loader.LoadBranches(ctx, branches)
	})
}

func (o *Orchestrator) syncArticles(ctx context.Context) error {
	raw, err := o.extractor.ExtractArticles(ctx)
	if err != nil {
		return err
	}
	articles, err := o.transformer.TransformArticles(raw)
	if err != nil {
		return err
	}
	return o.load(ctx, etl.JobLoadArticles, len(articles), func(ctx context.Context) error {
		return o.loader.LoadArticles(ctx, articles)
	})
}

func (o *Orchestrator) syncCustomers(ctx context.Context) error {
	raw, err := o.extractor.ExtractCustomers(ctx)
	if err != nil {
		return err
	}
	customers, err := o.transformer.TransformCustomers(raw)
	if err != nil {
		return err
	}
	return o.load(ctx, etl.JobLoadCustomers, len(customers), func(ctx context.Context) error {
		return o.loader.LoadCustomers(ctx, customers)
	})
}

func (o *Orchestrator) syncSales(ctx context.Context, fromDate *time.Time) error {
	raw, err := o.extractor.ExtractSales(ctx, fromDate)
	if err != nil {
		return err
	}
	sales, err := o.transformer.TransformSales(raw)
	if err != nil {
		return err
	}
	return o.load(ctx, etl.JobLoadSales, len(sales), func(ctx context.Context) error {
		return o.loader.LoadSales(ctx, sales)
	})
}

func (o *Orchestrator) load(ctx context.Context, job string, count int, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, "etl."+job,
		telemetry.WithAttribute(telemetry.SpanAttrJob, job),
		telemetry.WithAttribute(telemetry.SpanAttrRecords, count),
	)
	defer span.End()

	if err := fn(ctx); err != nil {
		o.metrics.RecordLoad(ctx, job, 0, true)
		telemetry.RecordError(span, err)
		return err
	}
	o.metrics.RecordLoad(ctx, job, count, false)
	telemetry.SetOK(span)
	return nil
}

// StartScheduledSync starts the recurring incremental and full sync triggers.
// Errors raised by a scheduled run are logged and do not stop the schedule.
func (o *Orchestrator) StartScheduledSync(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.triggers) > 0 {
		return ErrScheduleRunning
	}

	triggers := []*scheduler.RecurringTrigger{
		scheduler.NewRecurringTrigger("incremental-sync", o.schedule.Incremental, o.RunIncrementalSync, o.logger, o.schedule.TriggerOptions...),
		scheduler.NewRecurringTrigger("full-sync", o.schedule.Full, o.RunFullSync, o.logger, o.schedule.TriggerOptions...),
	}
	for i, trigger := range triggers {
		if err := trigger.Start(ctx); err != nil {
			for _, started := range triggers[:i] {
				_ = started.Stop(ctx)
			}
			return fmt.Errorf("start %s trigger: %w", trigger.Name(), err)
		}
	}
	o.triggers = triggers

	o.logger.Info("Scheduled ETL jobs started")
	return nil
}

// StopScheduledSync cancels the recurring triggers and waits for their
// loops to exit. An in-flight run observes the cancellation through its context.
func (o *Orchestrator) StopScheduledSync(ctx context.Context) error {
	o.mu.Lock()
	triggers := o.triggers
	o.triggers = nil
	o.mu.Unlock()

	var errs []error
	for _, trigger := range triggers {
		if err := trigger.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(triggers) > 0 {
		o.logger.Info("Scheduled ETL jobs stopped")
	}
	return errors.Join(errs...)
}
