package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/logger"
)

// DefaultLoadBatchSize is the number of rows written per transaction
const DefaultLoadBatchSize = 100

// DefaultRecentRunsLimit caps ListRecentRuns when no limit is given
const DefaultRecentRunsLimit = 20

var (
	branchConflict = clause.OnConflict{
		Columns:   []clause.Column{{Name: "branch_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"id", "name", "address", "phone", "email", "is_active", "type", "last_updated"}),
	}
	articleConflict = clause.OnConflict{
		Columns:   []clause.Column{{Name: "article_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "category", "price", "last_updated"}),
	}
	customerConflict = clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "email", "phone", "last_purchase_date", "is_active", "last_updated"}),
	}
	saleConflict = clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"branch_number", "article_number", "article_size_number", "customer_number", "staff_number",
			"receipt_number", "date", "purchase_price", "sale_price", "label_price", "discount",
			"quantity", "type", "is_deleted", "last_change",
		}),
	}
)

// ETLLoader upserts transformed records in fixed-size batches and records
// one etl_stats row per load call
type ETLLoader struct {
	db        *gorm.DB
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

// LoaderOption configures an ETLLoader
type LoaderOption func(*ETLLoader)

// WithBatchSize sets the number of rows committed per transaction
func WithBatchSize(n int) LoaderOption {
	return func(l *ETLLoader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithLoaderClock overrides the clock used for run timestamps
func WithLoaderClock(now func() time.Time) LoaderOption {
	return func(l *ETLLoader) {
		if now != nil {
			l.now = now
		}
	}
}

// NewETLLoader creates a new ETLLoader
func NewETLLoader(db *gorm.DB, log *zap.Logger, opts ...LoaderOption) *ETLLoader {
	if log == nil {
		log = zap.NewNop()
	}
	l := &ETLLoader{
		db:        db,
		batchSize: DefaultLoadBatchSize,
		logger:    log.Named("loader"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadBranches upserts branches keyed by branch number
func (l *ETLLoader) LoadBranches(ctx context.Context, branches []etl.Branch) error {
	return upsertAll(ctx, l, etl.JobLoadBranches, branchConflict, mapAll(branches, BranchModelFromEntity))
}

// LoadArticles upserts articles keyed by article number
func (l *ETLLoader) LoadArticles(ctx context.Context, articles []etl.Article) error {
	return upsertAll(ctx, l, etl.JobLoadArticles, articleConflict, mapAll(articles, ArticleModelFromEntity))
}

// LoadCustomers upserts customers keyed by customer number
func (l *ETLLoader) LoadCustomers(ctx context.Context, customers []etl.Customer) error {
	return upsertAll(ctx, l, etl.JobLoadCustomers, customerConflict, mapAll(customers, CustomerModelFromEntity))
}

// LoadSales upserts sales keyed by sale id. The referenced branches must
// already be loaded.
func (l *ETLLoader) LoadSales(ctx context.Context, sales []etl.Sale) error {
	return upsertAll(ctx, l, etl.JobLoadSales, saleConflict, mapAll(sales, SaleModelFromEntity))
}

// GetLastSyncDate returns the end time of the most recent completed sales
// load, or nil when no such run exists
func (l *ETLLoader) GetLastSyncDate(ctx context.Context) (*time.Time, error) {
	var run ETLStatModel
	err := l.db.WithContext(ctx).
		Where("job_name = ? AND status = ?", etl.JobLoadSales, string(etl.SyncStatusCompleted)).
		Order("end_time DESC").
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last sync date: %w", err)
	}
	return run.EndTime, nil
}

// ListRecentRuns returns the latest load runs, newest first
func (l *ETLLoader) ListRecentRuns(ctx context.Context, limit int) ([]etl.SyncRun, error) {
	if limit <= 0 {
		limit = DefaultRecentRunsLimit
	}
	var models []ETLStatModel
	if err := l.db.WithContext(ctx).Order("start_time DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list etl runs: %w", err)
	}
	runs := make([]etl.SyncRun, len(models))
	for i := range models {
		runs[i] = models[i].ToEntity()
	}
	return runs, nil
}

// CountRows returns the row count of every ETL table
func (l *ETLLoader) CountRows(ctx context.Context) (etl.TableCounts, error) {
	var counts etl.TableCounts
	db := l.db.WithContext(ctx)
	targets := []struct {
		model any
		dest  *int64
	}{
		{&BranchModel{}, &counts.Branches},
		{&ArticleModel{}, &counts.Articles},
		{&CustomerModel{}, &counts.Customers},
		{&SaleModel{}, &counts.Sales},
		{&ETLStatModel{}, &counts.Runs},
	}
	for _, target := range targets {
		if err := db.Model(target.model).Count(target.dest).Error; err != nil {
			return etl.TableCounts{}, fmt.Errorf("failed to count rows: %w", err)
		}
	}
	return counts, nil
}

// upsertAll writes rows in batches, each batch in its own transaction.
// Batches committed before a failure stay committed.
func upsertAll[M any](ctx context.Context, l *ETLLoader, job string, conflict clause.OnConflict, rows []M) error {
	log := l.log(ctx).With(zap.String("job", job))

	run, err := l.startRun(ctx, job)
	if err != nil {
		return etl.NewLoadError(job, err)
	}

	committed := 0
	for start := 0; start < len(rows); start += l.batchSize {
		end := min(start+l.batchSize, len(rows))
		batch := rows[start:end]

		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Omit(clause.Associations).Clauses(conflict).Create(&batch).Error
		})
		if err != nil {
			log.Error("Error loading batch",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Int("committed", committed),
				zap.Error(err),
			)
			if ferr := l.finishRun(context.WithoutCancel(ctx), run, etl.SyncStatusFailed, committed, err); ferr != nil {
				log.Error("Failed to record load failure", zap.Error(ferr))
			}
			return etl.NewLoadError(job, err)
		}
		committed += len(batch)
	}

	if err := l.finishRun(ctx, run, etl.SyncStatusCompleted, committed, nil); err != nil {
		return etl.NewLoadError(job, err)
	}
	log.Info("Loaded records", zap.Int("records", committed))
	return nil
}

func (l *ETLLoader) startRun(ctx context.Context, job string) (*ETLStatModel, error) {
	now := l.now()
	run := &ETLStatModel{
		JobName:     job,
		StartTime:   now,
		Status:      string(etl.SyncStatusRunning),
		LastUpdated: now,
	}
	if err := l.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create etl run: %w", err)
	}
	return run, nil
}

func (l *ETLLoader) finishRun(ctx context.Context, run *ETLStatModel, status etl.SyncStatus, records int, cause error) error {
	now := l.now()
	updates := map[string]any{
		"end_time":          now,
		"records_processed": records,
		"status":            string(status),
		"last_updated":      now,
	}
	if cause != nil {
		updates["error"] = cause.Error()
	}
	if err := l.db.WithContext(ctx).Model(&ETLStatModel{}).Where("id = ?", run.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update etl run %d: %w", run.ID, err)
	}
	return nil
}

func (l *ETLLoader) log(ctx context.Context) *zap.Logger {
	if runID := logger.GetRunID(ctx); runID != "" {
		return l.logger.With(zap.String("run_id", runID))
	}
	return l.logger
}

func mapAll[E, M any](items []E, fn func(E) M) []M {
	out := make([]M, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out
}
