// Package observe provides the observability primitives for tempo:
// OpenTelemetry metrics and tracing, span-aware logging and HTTP middleware.
//
// Instruments are created through the OpenTelemetry Metrics API and exported
// to Prometheus by [InitProvider]; [Handler] serves them on /metrics. Tests
// should build their own [Metrics] with [NewMetrics] and a ManualReader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/tempo"

// Status attribute values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds every instrument tempo records. The OTel types handle their
// own synchronisation.
type Metrics struct {
	// ActiveSessions is the number of guilds with a live playback session.
	ActiveSessions metric.Int64UpDownCounter

	// TracksStarted counts TrackStart events across all guilds.
	TracksStarted metric.Int64Counter

	// TrackErrors counts tracks that could not play. Attribute "kind" is one
	// of submit, exception, stuck.
	TrackErrors metric.Int64Counter

	// VoiceJoinAttempts counts voice join attempts by "cluster" and "status".
	VoiceJoinAttempts metric.Int64Counter

	// SearchDuration tracks per-candidate resolve latency by "engine".
	SearchDuration metric.Float64Histogram

	// NodeRequests counts resolve requests by "node" and "status".
	NodeRequests metric.Int64Counter

	// HTTPRequestDuration tracks admin HTTP latency by "method" and "path".
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("tempo.active_sessions",
		metric.WithDescription("Number of live playback sessions."),
	); err != nil {
		return nil, err
	}
	if met.TracksStarted, err = m.Int64Counter("tempo.tracks.started",
		metric.WithDescription("Tracks that started playing."),
	); err != nil {
		return nil, err
	}
	if met.TrackErrors, err = m.Int64Counter("tempo.track.errors",
		metric.WithDescription("Tracks that failed to play, by kind."),
	); err != nil {
		return nil, err
	}
	if met.VoiceJoinAttempts, err = m.Int64Counter("tempo.voice.join_attempts",
		metric.WithDescription("Voice join attempts by cluster and status."),
	); err != nil {
		return nil, err
	}
	if met.SearchDuration, err = m.Float64Histogram("tempo.search.duration",
		metric.WithDescription("Latency of a single search candidate by engine."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NodeRequests, err = m.Int64Counter("tempo.node.requests",
		metric.WithDescription("Resolve requests sent to audio nodes by node and status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("tempo.http.request.duration",
		metric.WithDescription("Admin HTTP request latency by method and path."),
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

// DefaultMetrics returns the package-level [Metrics] built on the global
// meter provider. Panics if instrument creation fails.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordJoinAttempt counts one voice join attempt.
func (m *Metrics) RecordJoinAttempt(ctx context.Context, cluster, status string) {
	m.VoiceJoinAttempts.Add(ctx, 1, metric.WithAttributes(
		Attr("cluster", cluster),
		Attr("status", status),
	))
}

// RecordNodeRequest counts one resolve request against node.
func (m *Metrics) RecordNodeRequest(ctx context.Context, node, status string) {
	m.NodeRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("node", node),
		Attr("status", status),
	))
}

// RecordTrackError counts a track that failed with kind.
func (m *Metrics) RecordTrackError(ctx context.Context, kind string) {
	m.TrackErrors.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}

// RecordSearch records how long one search candidate took.
func (m *Metrics) RecordSearch(ctx context.Context, engine string, d time.Duration) {
	m.SearchDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("engine", engine)))
}
