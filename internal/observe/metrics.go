// Package observe provides the observability primitives of vocabloop:
// OpenTelemetry metrics and tracing, trace-aware structured logging, and HTTP
// middleware for the ops endpoints.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported in
// Prometheus format by [InitProvider]. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vocabloop metrics.
const meterName = "github.com/MrWong99/vocabloop"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// StageDuration tracks how long each session stage task ran. Attributes:
	//   attribute.String("stage", ...), attribute.String("status", ...)
	StageDuration metric.Float64Histogram

	// Turns counts finished listening turns by outcome.
	Turns metric.Int64Counter

	// Recoveries counts stage failures that restarted the session, by the
	// phase that failed.
	Recoveries metric.Int64Counter

	// FramesDropped counts capture frames discarded because the frame queue
	// was full.
	FramesDropped metric.Int64Counter

	// CaptureErrors counts device status errors reported during capture.
	CaptureErrors metric.Int64Counter

	// ProviderRequests counts provider API calls. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// BreakerTrips counts provider circuit breakers opening, by provider and
	// kind.
	BreakerTrips metric.Int64Counter

	// StagesActive is the number of stage tasks currently running.
	StagesActive metric.Int64UpDownCounter

	// HTTPRequestDuration tracks ops endpoint latency. Attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.String("code", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets are histogram bucket boundaries (in seconds) sized for stages
// that range from a quick reply to a minute of listening.
var stageBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("vocabloop.stage.duration",
		metric.WithDescription("Duration of session stage tasks."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("vocabloop.turns",
		metric.WithDescription("Finished listening turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Recoveries, err = m.Int64Counter("vocabloop.recoveries",
		metric.WithDescription("Stage failures that restarted the session."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("vocabloop.audio.frames_dropped",
		metric.WithDescription("Capture frames dropped because the frame queue was full."),
	); err != nil {
		return nil, err
	}
	if met.CaptureErrors, err = m.Int64Counter("vocabloop.audio.capture_errors",
		metric.WithDescription("Device status errors reported during capture."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("vocabloop.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTrips, err = m.Int64Counter("vocabloop.provider.breaker_trips",
		metric.WithDescription("Provider circuit breakers opened after repeated failures."),
	); err != nil {
		return nil, err
	}
	if met.StagesActive, err = m.Int64UpDownCounter("vocabloop.stages.active",
		metric.WithDescription("Number of stage tasks currently running."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("vocabloop.http.request.duration",
		metric.WithDescription("Ops endpoint latency by method, route and status code."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Status maps an error to the "status" attribute value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordStage records the duration of one stage task.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", Status(err)),
		),
	)
}

// RecordTurn counts a finished listening turn.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRecovery counts a session restart after a failure in phase.
func (m *Metrics) RecordRecovery(ctx context.Context, phase string) {
	m.Recoveries.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordFrameDropped counts one dropped capture frame.
func (m *Metrics) RecordFrameDropped(ctx context.Context) {
	m.FramesDropped.Add(ctx, 1)
}

// RecordCaptureError counts one device status error.
func (m *Metrics) RecordCaptureError(ctx context.Context) {
	m.CaptureErrors.Add(ctx, 1)
}

// RecordProviderRequest records a provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordBreakerTrip counts a provider circuit breaker opening.
func (m *Metrics) RecordBreakerTrip(ctx context.Context, provider, kind string) {
	m.BreakerTrips.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
