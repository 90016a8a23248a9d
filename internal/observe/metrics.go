// Package observe provides application-wide observability primitives for
// areufunny: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all areufunny metrics.
const meterName = "github.com/areufunny/areufunny"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// CaptureDuration tracks the recorded length of finished captures, in
	// seconds. Use with attribute:
	//   attribute.String("reason", "timeout"|"manual")
	CaptureDuration metric.Float64Histogram

	// UploadDuration tracks how long publishing a set (blob upload plus
	// row insert) takes.
	UploadDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// Captures counts finished capture attempts. Use with attribute:
	//   attribute.String("outcome", "completed"|"cancelled"|"errored")
	Captures metric.Int64Counter

	// Uploads counts set publish attempts. Use with attribute:
	//   attribute.String("status", "ok"|"rejected"|"error")
	Uploads metric.Int64Counter

	// Votes counts cast votes. Use with attribute:
	//   attribute.String("direction", "up"|"down")
	Votes metric.Int64Counter

	// --- Gauges ---

	// ActiveCaptures tracks the number of capture sessions currently live
	// (counting down, preparing, or recording).
	ActiveCaptures metric.Int64UpDownCounter
}

// captureBuckets defines histogram bucket boundaries (in seconds) spanning
// the shortest publishable set up to the one-minute cap.
var captureBuckets = []float64{
	1, 2, 5, 10, 15, 20, 30, 45, 60,
}

// uploadBuckets defines histogram bucket boundaries (in seconds) for the
// publish path.
var uploadBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CaptureDuration, err = m.Float64Histogram("areufunny.capture.duration",
		metric.WithDescription("Recorded length of finished captures."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(captureBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UploadDuration, err = m.Float64Histogram("areufunny.upload.duration",
		metric.WithDescription("Latency of publishing a set to storage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(uploadBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("areufunny.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Captures, err = m.Int64Counter("areufunny.captures",
		metric.WithDescription("Total finished capture attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Uploads, err = m.Int64Counter("areufunny.uploads",
		metric.WithDescription("Total set publish attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.Votes, err = m.Int64Counter("areufunny.votes",
		metric.WithDescription("Total votes cast by direction."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCaptures, err = m.Int64UpDownCounter("areufunny.active_captures",
		metric.WithDescription("Number of capture sessions currently live."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCapture records one finished capture attempt: the outcome counter
// and, for completed captures, the duration histogram.
func (m *Metrics) RecordCapture(ctx context.Context, outcome, reason string, duration time.Duration) {
	m.Captures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	if outcome == "completed" {
		m.CaptureDuration.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("reason", reason)),
		)
	}
}

// RecordUpload records one publish attempt with its latency.
func (m *Metrics) RecordUpload(ctx context.Context, status string, elapsed time.Duration) {
	m.Uploads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	if status == "ok" {
		m.UploadDuration.Record(ctx, elapsed.Seconds())
	}
}

// RecordVote records one cast vote.
func (m *Metrics) RecordVote(ctx context.Context, value int) {
	direction := "up"
	if value < 0 {
		direction = "down"
	}
	m.Votes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("direction", direction)),
	)
}
