// Package observe exposes the switcher's OpenTelemetry instruments.
//
// Instruments are created from a [metric.MeterProvider]; production wires the
// Prometheus exporter through [InitProvider], tests pass an SDK provider with a
// ManualReader. A nil *Metrics is valid and records nothing.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/aura-webinar/autoswitch"

// Metrics holds the service instruments. Safe for concurrent use.
type Metrics struct {
	// Decisions counts evaluations by outcome and trigger.
	Decisions metric.Int64Counter
	// Switches counts executed switches by type.
	Switches metric.Int64Counter
	// SwitchDuration is the assigned transition cost in seconds.
	SwitchDuration metric.Float64Histogram
	// DecisionLatency is the time from enqueue to evaluation in seconds.
	DecisionLatency metric.Float64Histogram
	// Samples counts telemetry by kind and status (accepted, invalid, dropped).
	Samples metric.Int64Counter
	// ActiveSessions tracks live sessions.
	ActiveSessions metric.Int64UpDownCounter
	// HTTPRequestDuration tracks API latency by method and route.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Decisions, err = m.Int64Counter("autoswitch.decisions",
		metric.WithDescription("Camera switch evaluations by outcome and trigger."),
	); err != nil {
		return nil, err
	}
	if met.Switches, err = m.Int64Counter("autoswitch.switches",
		metric.WithDescription("Executed camera switches by switch type."),
	); err != nil {
		return nil, err
	}
	if met.SwitchDuration, err = m.Float64Histogram("autoswitch.switch.duration",
		metric.WithDescription("Transition cost of executed switches."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.DecisionLatency, err = m.Float64Histogram("autoswitch.decision.latency",
		metric.WithDescription("Time from input arrival to evaluation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Samples, err = m.Int64Counter("autoswitch.telemetry.samples",
		metric.WithDescription("Telemetry samples by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("autoswitch.active_sessions",
		metric.WithDescription("Number of live switching sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("autoswitch.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RecordDecision counts one evaluation.
func (m *Metrics) RecordDecision(ctx context.Context, outcome, trigger string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.Decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("trigger", trigger),
	))
	m.DecisionLatency.Record(ctx, latencySeconds)
}

// RecordSwitch counts one executed switch.
func (m *Metrics) RecordSwitch(ctx context.Context, switchType string, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("switch_type", switchType))
	m.Switches.Add(ctx, 1, attrs)
	m.SwitchDuration.Record(ctx, durationSeconds, attrs)
}

// RecordSample counts one telemetry sample.
func (m *Metrics) RecordSample(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	m.Samples.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// SessionStarted increments the live session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionStopped decrements the live session gauge.
func (m *Metrics) SessionStopped(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}
