// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, distributed tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// registers a Prometheus exporter as the meter reader; this module does not
// serve the collected metrics over HTTP. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vocatutor metrics.
const meterName = "github.com/vocatutor/vocatutor"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ValidatorDuration tracks the three-level answer-validation pipeline's
	// end-to-end latency, including any model escalation.
	ValidatorDuration metric.Float64Histogram

	// GatewayDuration tracks LLM Gateway call latency (translate/validate),
	// measured from admission past the rate limiter to response.
	GatewayDuration metric.Float64Histogram

	// SelectorDuration tracks lesson-candidate scoring/ranking latency.
	SelectorDuration metric.Float64Histogram

	// StoreDuration tracks Store.WithTx latency for mutation paths.
	StoreDuration metric.Float64Histogram

	// --- Counters ---

	// ValidationResults counts graded answers. Use with attributes:
	//   attribute.String("method", "exact"|"fuzzy"|"model"), attribute.Bool("correct", ...)
	ValidationResults metric.Int64Counter

	// GatewayRequests counts LLM Gateway calls. Use with attributes:
	//   attribute.String("operation", "translate"|"validate"), attribute.String("status", ...)
	GatewayRequests metric.Int64Counter

	// LessonsCompleted counts completed lessons.
	LessonsCompleted metric.Int64Counter

	// NotificationsSent counts reminder sends. Use with attribute:
	//   attribute.String("status", "sent"|"blocked"|"error")
	NotificationsSent metric.Int64Counter

	// --- Error counters ---

	// GatewayErrors counts LLM Gateway errors by kind.
	GatewayErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveLessons tracks the number of currently active (uncompleted)
	// lessons across all profiles.
	ActiveLessons metric.Int64UpDownCounter

	// CircuitState tracks the LLM Gateway circuit breaker state: 0=closed,
	// 1=half-open, 2=open.
	CircuitState metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for interactive chat-turn latencies — well under the 30s LLM call
// timeout but wide enough to capture rare model escalations.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ValidatorDuration, err = m.Float64Histogram("vocatutor.validator.duration",
		metric.WithDescription("Latency of the three-level answer validation pipeline."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GatewayDuration, err = m.Float64Histogram("vocatutor.gateway.duration",
		metric.WithDescription("Latency of LLM Gateway calls (translate/validate)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SelectorDuration, err = m.Float64Histogram("vocatutor.selector.duration",
		metric.WithDescription("Latency of lesson-candidate scoring and ranking."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StoreDuration, err = m.Float64Histogram("vocatutor.store.tx.duration",
		metric.WithDescription("Latency of Store.WithTx transactions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ValidationResults, err = m.Int64Counter("vocatutor.validation.results",
		metric.WithDescription("Total graded answers by method and correctness."),
	); err != nil {
		return nil, err
	}
	if met.GatewayRequests, err = m.Int64Counter("vocatutor.gateway.requests",
		metric.WithDescription("Total LLM Gateway calls by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.LessonsCompleted, err = m.Int64Counter("vocatutor.lessons.completed",
		metric.WithDescription("Total completed lessons."),
	); err != nil {
		return nil, err
	}
	if met.NotificationsSent, err = m.Int64Counter("vocatutor.notifications.sent",
		metric.WithDescription("Total inactivity reminders attempted, by outcome."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.GatewayErrors, err = m.Int64Counter("vocatutor.gateway.errors",
		metric.WithDescription("Total LLM Gateway errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveLessons, err = m.Int64UpDownCounter("vocatutor.active_lessons",
		metric.WithDescription("Number of currently active (uncompleted) lessons."),
	); err != nil {
		return nil, err
	}
	if met.CircuitState, err = m.Int64UpDownCounter("vocatutor.gateway.circuit_state",
		metric.WithDescription("LLM Gateway circuit breaker state: 0=closed, 1=half-open, 2=open."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vocatutor.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordValidation is a convenience method that records a graded-answer
// counter increment with the standard attribute set.
func (m *Metrics) RecordValidation(ctx context.Context, method string, correct bool) {
	m.ValidationResults.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.Bool("correct", correct),
		),
	)
}

// RecordGatewayRequest is a convenience method that records a Gateway call
// counter increment with the standard attribute set.
func (m *Metrics) RecordGatewayRequest(ctx context.Context, operation, status string) {
	m.GatewayRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// RecordNotification is a convenience method that records a reminder-send
// counter increment.
func (m *Metrics) RecordNotification(ctx context.Context, status string) {
	m.NotificationsSent.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordGatewayError is a convenience method that records a Gateway error
// counter increment.
func (m *Metrics) RecordGatewayError(ctx context.Context, kind string) {
	m.GatewayErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
