package otel_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	cfotel "github.com/Strob0t/CourseForge/internal/adapter/otel"
	"github.com/Strob0t/CourseForge/internal/config"
)

func TestNewMetricsRecords(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := cfotel.NewMetricsFrom(mp)
	if err != nil {
		t.Fatalf("NewMetricsFrom: %v", err)
	}
	ctx := context.Background()
	m.RunsStarted.Add(ctx, 2)
	m.RunTurns.Record(ctx, 4)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			found[md.Name] = true
			if md.Name == "courseforge.runs.started" {
				sum, ok := md.Data.(metricdata.Sum[int64])
				if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
					t.Fatalf("unexpected runs.started data %+v", md.Data)
				}
			}
		}
	}
	if !found["courseforge.runs.started"] || !found["courseforge.run.turns"] {
		t.Fatalf("expected instruments missing: %v", found)
	}
}

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := cfotel.Setup(context.Background(), config.OTEL{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSpansWithoutProvider(t *testing.T) {
	ctx, run := cfotel.StartRunSpan(context.Background(), "run-1", "handoff")
	_, turn := cfotel.StartTurnSpan(ctx, "router", 0)
	_, call := cfotel.StartToolCallSpan(ctx, "call-1", "fetch_cs_courses", "Computer Science Department")
	call.End()
	turn.End()
	run.End()
}

func TestHTTPMiddlewarePassesThrough(t *testing.T) {
	h := cfotel.HTTPMiddleware("courseforge")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	for _, path := range []string{"/health", "/api/v1/departments"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("%s: expected 418, got %d", path, rec.Code)
		}
	}
}
