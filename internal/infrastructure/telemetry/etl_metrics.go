package telemetry

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when metrics are built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Metric attribute keys
var (
	AttrJob        = attribute.Key("job")
	AttrMode       = attribute.Key("mode")
	AttrStatus     = attribute.Key("status")
	AttrEndpoint   = attribute.Key("endpoint")
	AttrHTTPStatus = attribute.Key("http.status_code")
	AttrOperation  = attribute.Key("operation")
)

// ETLMetrics records sync volume and outcomes.
// A nil *ETLMetrics is valid and records nothing.
type ETLMetrics struct {
	recordsLoaded *Counter
	loadFailures  *Counter
	runs          *Counter
	runDuration   *Histogram
	pageRequests  *Counter
	retries       *Counter
}

// NewETLMetrics creates the ETL instruments on the given meter.
func NewETLMetrics(meter metric.Meter) (*ETLMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		m   ETLMetrics
		err error
	)
	if m.recordsLoaded, err = NewCounter(meter, "etl.records.loaded", "Records upserted per load job", "{record}"); err != nil {
		return nil, err
	}
	if m.loadFailures, err = NewCounter(meter, "etl.load.failures", "Load jobs that ended in failure", "{job}"); err != nil {
		return nil, err
	}
	if m.runs, err = NewCounter(meter, "etl.sync.runs", "Sync runs by mode and outcome", "{run}"); err != nil {
		return nil, err
	}
	if m.runDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "etl.sync.duration",
		Description: "Wall clock time of a sync run",
		Unit:        "s",
		Boundaries:  SyncDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.pageRequests, err = NewCounter(meter, "etl.api.page_requests", "Page requests sent to the remote API", "{request}"); err != nil {
		return nil, err
	}
	if m.retries, err = NewCounter(meter, "etl.extract.retries", "Extraction attempts retried after a failure", "{retry}"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordLoad records the outcome of one load job.
func (m *ETLMetrics) RecordLoad(ctx context.Context, job string, records int, failed bool) {
	if m == nil {
		return
	}
	m.recordsLoaded.Add(ctx, int64(records), AttrJob.String(job))
	if failed {
		m.loadFailures.Inc(ctx, AttrJob.String(job))
	}
}

// RecordRun records a finished sync run.
func (m *ETLMetrics) RecordRun(ctx context.Context, mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrMode.String(mode), AttrStatus.String(status)}
	m.runs.Inc(ctx, attrs...)
	m.runDuration.RecordDuration(ctx, d, attrs...)
}

// RecordPageRequest records one HTTP page request and its status code.
func (m *ETLMetrics) RecordPageRequest(ctx context.Context, endpoint string, status int) {
	if m == nil {
		return
	}
	m.pageRequests.Inc(ctx, AttrEndpoint.String(endpoint), AttrHTTPStatus.String(strconv.Itoa(status)))
}

// RecordRetry records a retried extraction attempt.
func (m *ETLMetrics) RecordRetry(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.retries.Inc(ctx, AttrOperation.String(operation))
}
