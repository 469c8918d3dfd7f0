package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func hasAttr(set attribute.Set, key, value string) bool {
	v, ok := set.Value(attribute.Key(key))
	return ok && v.AsString() == value
}

func TestMetrics_Counters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordJoinAttempt(ctx, "premium", StatusError)
	m.RecordJoinAttempt(ctx, "premium", StatusError)
	m.RecordJoinAttempt(ctx, "default", StatusOK)
	m.RecordNodeRequest(ctx, "node-1", StatusOK)
	m.RecordTrackError(ctx, "stuck")
	m.TracksStarted.Add(ctx, 1)

	rm := collect(t, reader)

	joins := findMetric(rm, "tempo.voice.join_attempts")
	if joins == nil {
		t.Fatal("tempo.voice.join_attempts not recorded")
	}
	sum, ok := joins.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("join attempts data = %T, want Sum[int64]", joins.Data)
	}
	var premiumErrors int64
	for _, dp := range sum.DataPoints {
		if hasAttr(dp.Attributes, "cluster", "premium") && hasAttr(dp.Attributes, "status", StatusError) {
			premiumErrors = dp.Value
		}
	}
	if premiumErrors != 2 {
		t.Errorf("premium error attempts = %d, want 2", premiumErrors)
	}

	for _, name := range []string{"tempo.node.requests", "tempo.track.errors", "tempo.tracks.started"} {
		if findMetric(rm, name) == nil {
			t.Errorf("%s not recorded", name)
		}
	}
}

func TestMetrics_ActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	met := findMetric(collect(t, reader), "tempo.active_sessions")
	if met == nil {
		t.Fatal("tempo.active_sessions not recorded")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("active sessions = %+v, want 1", sum.DataPoints)
	}
}

func TestMetrics_SearchHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordSearch(context.Background(), "ytsearch", 300*time.Millisecond)

	met := findMetric(collect(t, reader), "tempo.search.duration")
	if met == nil {
		t.Fatal("tempo.search.duration not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("data points = %+v", hist.DataPoints)
	}
	if !hasAttr(hist.DataPoints[0].Attributes, "engine", "ytsearch") {
		t.Error("missing engine attribute")
	}
}

func setGlobalTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

func TestMiddleware(t *testing.T) {
	m, reader := newTestMetrics(t)
	exp := setGlobalTracer(t)

	var seen string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if seen != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id in handler = %q", seen)
	}
	if got := rec.Header().Get("X-Trace-ID"); got != seen {
		t.Errorf("X-Trace-ID = %q, want %q", got, seen)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "HTTP GET /readyz" {
		t.Fatalf("spans = %v", spans)
	}

	met := findMetric(collect(t, reader), "tempo.http.request.duration")
	if met == nil {
		t.Fatal("http duration not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if !hasAttr(hist.DataPoints[0].Attributes, "path", "/readyz") {
		t.Error("missing path attribute")
	}
}

func TestLogger_AttachesTraceIDs(t *testing.T) {
	setGlobalTracer(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	ctx, span := StartSpan(context.Background(), "voice.join")
	Logger(ctx).Info("joined")
	span.End()

	out := buf.String()
	if !strings.Contains(out, "trace_id="+TraceID(ctx)) || !strings.Contains(out, "span_id=") {
		t.Errorf("log line missing trace attributes: %s", out)
	}

	buf.Reset()
	Logger(context.Background()).Info("plain")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log without span carries trace_id: %s", buf.String())
	}
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "tempo_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tempo_test_total 1") {
		t.Errorf("body missing counter:\n%s", rec.Body.String())
	}
}
