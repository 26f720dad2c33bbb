package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "courseforge"

// Metrics holds all CourseForge metric instruments.
type Metrics struct {
	RunsStarted    metric.Int64Counter
	RunsCompleted  metric.Int64Counter
	RunsFailed     metric.Int64Counter
	Handoffs       metric.Int64Counter
	ToolCalls      metric.Int64Counter
	GeneratorCalls metric.Int64Counter
	Tokens         metric.Int64Counter
	RunDuration    metric.Float64Histogram
	RunTurns       metric.Int64Histogram
	CatalogLookups metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.GetMeterProvider())
}

// NewMetricsFrom creates all metric instruments on the given provider.
func NewMetricsFrom(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.RunsStarted, err = meter.Int64Counter("courseforge.runs.started",
		metric.WithDescription("Number of schedule runs started")); err != nil {
		return nil, err
	}
	if m.RunsCompleted, err = meter.Int64Counter("courseforge.runs.completed",
		metric.WithDescription("Number of schedule runs that produced a schedule")); err != nil {
		return nil, err
	}
	if m.RunsFailed, err = meter.Int64Counter("courseforge.runs.failed",
		metric.WithDescription("Number of schedule runs that failed, by error kind")); err != nil {
		return nil, err
	}
	if m.Handoffs, err = meter.Int64Counter("courseforge.handoffs",
		metric.WithDescription("Number of agent handoffs")); err != nil {
		return nil, err
	}
	if m.ToolCalls, err = meter.Int64Counter("courseforge.toolcalls",
		metric.WithDescription("Number of catalog tool calls")); err != nil {
		return nil, err
	}
	if m.GeneratorCalls, err = meter.Int64Counter("courseforge.generator.calls",
		metric.WithDescription("Number of generator calls")); err != nil {
		return nil, err
	}
	if m.Tokens, err = meter.Int64Counter("courseforge.generator.tokens",
		metric.WithDescription("Tokens consumed by the generator"),
		metric.WithUnit("{token}")); err != nil {
		return nil, err
	}
	if m.RunDuration, err = meter.Float64Histogram("courseforge.run.duration_seconds",
		metric.WithDescription("Run duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.RunTurns, err = meter.Int64Histogram("courseforge.run.turns",
		metric.WithDescription("Generator turns taken per run")); err != nil {
		return nil, err
	}
	if m.CatalogLookups, err = meter.Int64Counter("courseforge.catalog.lookups",
		metric.WithDescription("Catalog lookups by cache outcome")); err != nil {
		return nil, err
	}

	return m, nil
}
