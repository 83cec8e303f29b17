// Package telemetry records local OpenTelemetry counters for capture,
// mining and workflow runs. Metrics are kept in-process by a manual reader
// and summarized into the log when the process shuts down.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const meterName = "termbrain"

// Metrics holds the instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader

	eventsCaptured   metric.Int64Counter
	eventsFinalized  metric.Int64Counter
	errorsRecorded   metric.Int64Counter
	errorsResolved   metric.Int64Counter
	miningPasses     metric.Int64Counter
	patternsDetected metric.Int64Counter
	workflowRuns     metric.Int64Counter
	workflowDuration metric.Float64Histogram
}

// New creates Metrics backed by an in-process SDK meter provider and
// registers it as the global provider.
func New() (*Metrics, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	m, err := newWithMeter(provider.Meter(meterName))
	if err != nil {
		return nil, err
	}
	m.provider = provider
	m.reader = reader
	return m, nil
}

func newWithMeter(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.eventsCaptured, "termbrain_events_captured_total", "Commands recorded by the capture hook", "{command}"},
		{&m.eventsFinalized, "termbrain_events_finalized_total", "Commands finalized with an exit code", "{command}"},
		{&m.errorsRecorded, "termbrain_errors_recorded_total", "Failed commands recorded as errors", "{error}"},
		{&m.errorsResolved, "termbrain_errors_resolved_total", "Errors marked solved", "{error}"},
		{&m.miningPasses, "termbrain_mining_passes_total", "Mining passes run", "{pass}"},
		{&m.patternsDetected, "termbrain_patterns_detected_total", "Patterns upserted by mining passes", "{pattern}"},
		{&m.workflowRuns, "termbrain_workflow_runs_total", "Workflow runs", "{run}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	hist, err := meter.Float64Histogram(
		"termbrain_workflow_run_duration_seconds",
		metric.WithDescription("Workflow run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating workflow duration histogram: %w", err)
	}
	m.workflowDuration = hist
	return &m, nil
}

// EventCaptured counts an appended event.
func (m *Metrics) EventCaptured(ctx context.Context, semanticType string) {
	if m == nil {
		return
	}
	m.eventsCaptured.Add(ctx, 1, metric.WithAttributes(attribute.String("semantic_type", semanticType)))
}

// EventFinalized counts a finalized event.
func (m *Metrics) EventFinalized(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.eventsFinalized.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// ErrorRecorded counts a recorded failure.
func (m *Metrics) ErrorRecorded(ctx context.Context, semanticType string) {
	if m == nil {
		return
	}
	m.errorsRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("semantic_type", semanticType)))
}

// ErrorResolved counts a solved error. auto distinguishes automatic
// resolution from an explicit solve.
func (m *Metrics) ErrorResolved(ctx context.Context, auto bool) {
	if m == nil {
		return
	}
	m.errorsResolved.Add(ctx, 1, metric.WithAttributes(attribute.Bool("auto", auto)))
}

// MiningPass counts a finished mining pass and the patterns it upserted.
func (m *Metrics) MiningPass(ctx context.Context, pass string, patterns int, failed bool) {
	if m == nil {
		return
	}
	opt := metric.WithAttributes(attribute.String("pass", pass), attribute.Bool("failed", failed))
	m.miningPasses.Add(ctx, 1, opt)
	m.patternsDetected.Add(ctx, int64(patterns), metric.WithAttributes(attribute.String("pass", pass)))
}

// WorkflowRun records a finished workflow run.
func (m *Metrics) WorkflowRun(ctx context.Context, state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	opt := metric.WithAttributes(attribute.String("state", state))
	m.workflowRuns.Add(ctx, 1, opt)
	m.workflowDuration.Record(ctx, elapsed.Seconds(), opt)
}

// Snapshot collects the current totals keyed by instrument name. Counter
// values are summed across attributes; histograms report their sample
// count. Noop metrics return an empty snapshot.
func (m *Metrics) Snapshot(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	if m == nil || m.reader == nil {
		return out, nil
	}

	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collecting metrics: %w", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[md.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[md.Name] += int64(dp.Count)
				}
			}
		}
	}
	return out, nil
}

// Shutdown logs a summary of non-zero totals and stops the provider.
func (m *Metrics) Shutdown(ctx context.Context, logger *slog.Logger) error {
	if m == nil || m.provider == nil {
		return nil
	}
	snap, err := m.Snapshot(ctx)
	if err == nil && logger != nil && len(snap) > 0 {
		names := make([]string, 0, len(snap))
		for name := range snap {
			names = append(names, name)
		}
		sort.Strings(names)
		attrs := make([]any, 0, 2*len(names))
		for _, name := range names {
			if snap[name] != 0 {
				attrs = append(attrs, name, snap[name])
			}
		}
		if len(attrs) > 0 {
			logger.Debug("metrics summary", attrs...)
		}
	}
	return m.provider.Shutdown(ctx)
}
