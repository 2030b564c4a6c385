package observability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer for the given name
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// DatabaseMetrics holds database-related metrics
type DatabaseMetrics struct {
	queryDuration metric.Float64Histogram
	queryCount    metric.Int64Counter
	errorCount    metric.Int64Counter
}

// NewDatabaseMetrics creates database metrics instruments
func NewDatabaseMetrics() (*DatabaseMetrics, error) {
	meter := otel.Meter(instrumentationName)

	queryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	queryCount, err := meter.Int64Counter(
		"db.query.count",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{queries}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"db.error.count",
		metric.WithDescription("Total number of database errors"),
		metric.WithUnit("{errors}"),
	)
	if err != nil {
		return nil, err
	}

	return &DatabaseMetrics{
		queryDuration: queryDuration,
		queryCount:    queryCount,
		errorCount:    errorCount,
	}, nil
}

// RecordQuery records a database query metrics
func (m *DatabaseMetrics) RecordQuery(ctx context.Context, system, operation string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", system),
		attribute.String("db.operation", operation),
	}

	m.queryCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.queryDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// TraceDB wraps sql.DB with tracing and query metrics
type TraceDB struct {
	db      *sql.DB
	system  string
	metrics *DatabaseMetrics
}

// NewTraceDB creates a traced database wrapper. system is the db.system
// attribute value ("sqlite", "postgresql").
func NewTraceDB(db *sql.DB, system string) (*TraceDB, error) {
	metrics, err := NewDatabaseMetrics()
	if err != nil {
		return nil, err
	}

	return &TraceDB{
		db:      db,
		system:  system,
		metrics: metrics,
	}, nil
}

// QueryContext executes a query with tracing
func (t *TraceDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	ctx, span := t.startSpan(ctx, "DB Query", query)
	defer span.End()

	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	t.finish(ctx, span, "query", start, err)

	return rows, err
}

// ExecContext executes a statement with tracing
func (t *TraceDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, span := t.startSpan(ctx, "DB Exec", query)
	defer span.End()

	start := time.Now()
	result, err := t.db.ExecContext(ctx, query, args...)
	t.finish(ctx, span, "exec", start, err)

	if err == nil {
		if rowsAffected, raErr := result.RowsAffected(); raErr == nil {
			span.SetAttributes(attribute.Int64("db.rows_affected", rowsAffected))
		}
	}

	return result, err
}

// QueryRowContext executes a query that returns a single row with tracing
func (t *TraceDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	ctx, span := t.startSpan(ctx, "DB QueryRow", query)
	// The row is scanned after this returns, so the span only covers dispatch
	defer span.End()

	start := time.Now()
	row := t.db.QueryRowContext(ctx, query, args...)
	t.finish(ctx, span, "query_row", start, row.Err())
	return row
}

// DB returns the underlying database connection
func (t *TraceDB) DB() *sql.DB {
	return t.db
}

// Close closes the underlying database connection
func (t *TraceDB) Close() error {
	return t.db.Close()
}

func (t *TraceDB) startSpan(ctx context.Context, name, query string) (context.Context, trace.Span) {
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", t.system),
			attribute.String("db.statement", truncateQuery(query)),
		),
	)
}

func (t *TraceDB) finish(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	duration := time.Since(start)
	if err != nil && err != sql.ErrNoRows {
		RecordError(span, err)
	} else {
		SetSuccess(span)
	}
	span.SetAttributes(attribute.Int64("db.query_duration_ms", duration.Milliseconds()))
	t.metrics.RecordQuery(ctx, t.system, operation, duration, err)
}

func truncateQuery(query string) string {
	if len(query) > 500 {
		return query[:500] + "..."
	}
	return query
}

// GalleryMetrics holds server-side gallery metrics
type GalleryMetrics struct {
	uploads     metric.Int64Counter
	expirations metric.Int64Counter
	evictions   metric.Int64Counter
	storageUsed metric.Int64UpDownCounter
}

// NewGalleryMetrics creates gallery metrics instruments
func NewGalleryMetrics() (*GalleryMetrics, error) {
	meter := otel.Meter(instrumentationName)

	uploads, err := meter.Int64Counter(
		"snappic.photo.uploads",
		metric.WithDescription("Total number of photo uploads"),
		metric.WithUnit("{uploads}"),
	)
	if err != nil {
		return nil, err
	}

	expirations, err := meter.Int64Counter(
		"snappic.photo.expirations",
		metric.WithDescription("Photos removed after their lifetime and fade-out elapsed"),
		metric.WithUnit("{photos}"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"snappic.photo.evictions",
		metric.WithDescription("Photos removed to make room for a new upload"),
		metric.WithUnit("{photos}"),
	)
	if err != nil {
		return nil, err
	}

	storageUsed, err := meter.Int64UpDownCounter(
		"snappic.storage.bytes",
		metric.WithDescription("Storage used in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &GalleryMetrics{
		uploads:     uploads,
		expirations: expirations,
		evictions:   evictions,
		storageUsed: storageUsed,
	}, nil
}

// RecordUpload records a photo upload attempt
func (m *GalleryMetrics) RecordUpload(ctx context.Context, fileSize int64, success bool) {
	if m == nil {
		return
	}
	m.uploads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	if success {
		m.storageUsed.Add(ctx, fileSize)
	}
}

// RecordRemoval records a photo leaving the gallery. reason is "expired" or "evicted".
func (m *GalleryMetrics) RecordRemoval(ctx context.Context, reason string, fileSize int64) {
	if m == nil {
		return
	}
	if reason == "evicted" {
		m.evictions.Add(ctx, 1)
	} else {
		m.expirations.Add(ctx, 1)
	}
	m.storageUsed.Add(ctx, -fileSize)
}

// SyncMetrics holds client-side gallery synchronizer metrics
type SyncMetrics struct {
	polls      metric.Int64Counter
	failures   metric.Int64Counter
	inserts    metric.Int64Counter
	removals   metric.Int64Counter
	displayed  metric.Int64Gauge
	pollLength metric.Float64Histogram
}

// NewSyncMetrics creates synchronizer metrics instruments
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	polls, err := meter.Int64Counter(
		"snappic.sync.polls",
		metric.WithDescription("Listing polls attempted"),
		metric.WithUnit("{polls}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"snappic.sync.poll_failures",
		metric.WithDescription("Listing polls skipped due to transport or parse failure"),
		metric.WithUnit("{polls}"),
	)
	if err != nil {
		return nil, err
	}

	inserts, err := meter.Int64Counter(
		"snappic.sync.inserts",
		metric.WithDescription("Elements inserted into the gallery"),
		metric.WithUnit("{elements}"),
	)
	if err != nil {
		return nil, err
	}

	removals, err := meter.Int64Counter(
		"snappic.sync.removals",
		metric.WithDescription("Elements scheduled for removal from the gallery"),
		metric.WithUnit("{elements}"),
	)
	if err != nil {
		return nil, err
	}

	displayed, err := meter.Int64Gauge(
		"snappic.sync.displayed",
		metric.WithDescription("Photos currently displayed"),
		metric.WithUnit("{photos}"),
	)
	if err != nil {
		return nil, err
	}

	pollLength, err := meter.Float64Histogram(
		"snappic.sync.poll.duration",
		metric.WithDescription("Fetch and reconcile duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		polls:      polls,
		failures:   failures,
		inserts:    inserts,
		removals:   removals,
		displayed:  displayed,
		pollLength: pollLength,
	}, nil
}

// RecordPoll records one poll cycle
func (m *SyncMetrics) RecordPoll(ctx context.Context, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.polls.Add(ctx, 1)
	if err != nil {
		m.failures.Add(ctx, 1)
	}
	m.pollLength.Record(ctx, float64(duration.Milliseconds()))
}

// RecordReconcile records the outcome of one reconciliation pass
func (m *SyncMetrics) RecordReconcile(ctx context.Context, inserted, removed, displayed int) {
	if m == nil {
		return
	}
	m.inserts.Add(ctx, int64(inserted))
	m.removals.Add(ctx, int64(removed))
	m.displayed.Record(ctx, int64(displayed))
}
