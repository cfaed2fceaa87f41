// Package etl coordinates extraction, transformation and loading of the
// ProHandel retail data.
package etl

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/prohandel"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/telemetry"
)

// Remote endpoints
const (
	EndpointBranches  = "/branch"
	EndpointArticles  = "/article"
	EndpointCustomers = "/customer"
	EndpointSales     = "/sale"
)

// PageFetcher reads every page of an endpoint
type PageFetcher interface {
	FetchAllPages(ctx context.Context, endpoint string, query url.Values, opts ...prohandel.PageOption) ([]etl.RawRecord, error)
}

// Extractor pulls raw records per entity type, retrying failed fetches
type Extractor struct {
	fetcher  PageFetcher
	retry    RetryPolicy
	pageSize int
	metrics  *telemetry.ETLMetrics
	logger   *zap.Logger
}

// ExtractorOption configures an Extractor
type ExtractorOption func(*Extractor)

// WithRetryPolicy replaces the default retry policy
func WithRetryPolicy(p RetryPolicy) ExtractorOption {
	return func(e *Extractor) {
		e.retry = p
	}
}

// WithExtractPageSize sets the page size sent to the API
func WithExtractPageSize(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithRetryMetrics counts retried attempts on m, in any order with
// WithRetryPolicy
func WithRetryMetrics(m *telemetry.ETLMetrics) ExtractorOption {
	return func(e *Extractor) {
		e.metrics = m
	}
}

// NewExtractor creates an extractor over fetcher
func NewExtractor(fetcher PageFetcher, logger *zap.Logger, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		fetcher:  fetcher,
		retry:    DefaultRetryPolicy(),
		pageSize: prohandel.DefaultPageSize,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics != nil {
		prev := e.retry.OnRetry
		e.retry.OnRetry = func(op string, attempt int, err error) {
			e.metrics.RecordRetry(context.Background(), op)
			if prev != nil {
				prev(op, attempt, err)
			}
		}
	}
	return e
}

// ExtractBranches returns every branch record
func (e *Extractor) ExtractBranches(ctx context.Context) ([]etl.RawRecord, error) {
	return e.extract(ctx, "branches", EndpointBranches, nil)
}

// ExtractArticles returns every article record
func (e *Extractor) ExtractArticles(ctx context.Context) ([]etl.RawRecord, error) {
	return e.extract(ctx, "articles", EndpointArticles, nil)
}

// ExtractCustomers returns every customer record
func (e *Extractor) ExtractCustomers(ctx context.Context) ([]etl.RawRecord, error) {
	return e.extract(ctx, "customers", EndpointCustomers, nil)
}

// ExtractSales returns sales changed since fromDate, or all sales when nil
func (e *Extractor) ExtractSales(ctx context.Context, fromDate *time.Time) ([]etl.RawRecord, error) {
	query := url.Values{}
	if fromDate != nil {
		query.Set("fromDate", fromDate.UTC().Format(time.RFC3339))
	}
	return e.extract(ctx, "sales", EndpointSales, query)
}

// ExtractIncrementalSales returns sales changed since lastSyncDate
func (e *Extractor) ExtractIncrementalSales(ctx context.Context, lastSyncDate time.Time) ([]etl.RawRecord, error) {
	e.logger.Info("Starting incremental sales extraction", zap.Time("last_sync_date", lastSyncDate))
	return e.ExtractSales(ctx, &lastSyncDate)
}

func (e *Extractor) extract(ctx context.Context, entity, endpoint string, query url.Values) ([]etl.RawRecord, error) {
	fields := []zap.Field{zap.String("entity", entity)}
	if from := query.Get("fromDate"); from != "" {
		fields = append(fields, zap.String("from_date", from))
	}
	e.logger.Info("Starting extraction", fields...)

	var records []etl.RawRecord
	err := e.retry.Do(ctx, "extract "+entity, func(ctx context.Context) error {
		var err error
		records, err = e.fetcher.FetchAllPages(ctx, endpoint, query, prohandel.WithPageSize(e.pageSize))
		return err
	})
	if err != nil {
		e.logger.Error("Extraction failed", append(fields, zap.Error(err))...)
		return nil, err
	}

	e.logger.Info("Extraction completed", append(fields, zap.Int("records", len(records)))...)
	return records, nil
}
