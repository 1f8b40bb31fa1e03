package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/smarttraffic/console/internal/media"
	"github.com/smarttraffic/console/internal/traffic"
)

const meterName = "github.com/smarttraffic/console/internal/telemetry"

// ConsoleMetrics records synchronizer and media feed measurements. It
// implements traffic.Metrics and media.Metrics.
type ConsoleMetrics struct {
	cycleDuration metric.Float64Histogram
	cycles        metric.Int64Counter
	commands      metric.Int64Counter
	loadDuration  metric.Float64Histogram
	loads         metric.Int64Counter
	phases        metric.Int64Counter
}

var (
	_ traffic.Metrics = (*ConsoleMetrics)(nil)
	_ media.Metrics   = (*ConsoleMetrics)(nil)
)

// NewConsoleMetrics creates the instruments on meter. A nil meter uses the
// global meter provider.
func NewConsoleMetrics(meter metric.Meter) (*ConsoleMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	cycleDuration, err := meter.Float64Histogram(
		"traffic.sync.cycle.duration",
		metric.WithDescription("Duration of synchronization cycles in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	cycles, err := meter.Int64Counter(
		"traffic.sync.cycles",
		metric.WithDescription("Synchronization cycles by outcome"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	commands, err := meter.Int64Counter(
		"traffic.commands",
		metric.WithDescription("Commands sent to the traffic backend by outcome"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	loadDuration, err := meter.Float64Histogram(
		"media.feed.load.duration",
		metric.WithDescription("Duration of camera frame loads in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	loads, err := meter.Int64Counter(
		"media.feed.loads",
		metric.WithDescription("Camera frame loads by outcome"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, err
	}

	phases, err := meter.Int64Counter(
		"media.feed.phase.transitions",
		metric.WithDescription("Camera feed phase transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &ConsoleMetrics{
		cycleDuration: cycleDuration,
		cycles:        cycles,
		commands:      commands,
		loadDuration:  loadDuration,
		loads:         loads,
		phases:        phases,
	}, nil
}

// RecordCycle records one synchronization cycle.
func (m *ConsoleMetrics) RecordCycle(ctx context.Context, duration time.Duration, ok bool) {
	attrs := metric.WithAttributes(outcome(ok))
	m.cycleDuration.Record(ctx, duration.Seconds(), attrs)
	m.cycles.Add(ctx, 1, attrs)
}

// RecordCommand records one backend command.
func (m *ConsoleMetrics) RecordCommand(ctx context.Context, command string, ok bool) {
	m.commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		outcome(ok),
	))
}

// RecordFeedLoad records one frame load.
func (m *ConsoleMetrics) RecordFeedLoad(ctx context.Context, duration time.Duration, ok bool) {
	attrs := metric.WithAttributes(outcome(ok))
	m.loadDuration.Record(ctx, duration.Seconds(), attrs)
	m.loads.Add(ctx, 1, attrs)
}

// RecordFeedPhase records a feed entering phase.
func (m *ConsoleMetrics) RecordFeedPhase(ctx context.Context, phase media.Phase) {
	m.phases.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(phase))))
}

func outcome(ok bool) attribute.KeyValue {
	if ok {
		return attribute.String("outcome", "success")
	}
	return attribute.String("outcome", "failure")
}
