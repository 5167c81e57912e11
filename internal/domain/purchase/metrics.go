package purchase

import (
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/xenking/lotto-share/internal/domain/purchase"

// Metrics groups the instruments recorded by pollers.
type Metrics struct {
	polls      metric.Int64Counter
	reconciles metric.Int64Counter
	outcomes   metric.Int64Counter
	tracer     trace.Tracer
}

// NewMetrics registers poller instruments with the given providers.
func NewMetrics(mp metric.MeterProvider, tp trace.TracerProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)

	polls, err := meter.Int64Counter("purchase.poll.requests",
		metric.WithDescription("Order status requests issued by purchase pollers"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "polls counter")
	}
	reconciles, err := meter.Int64Counter("purchase.reconcile.requests",
		metric.WithDescription("Gateway reconciliation requests issued by purchase pollers"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "reconciles counter")
	}
	outcomes, err := meter.Int64Counter("purchase.poll.outcomes",
		metric.WithDescription("Finished purchase pollers by final state"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "outcomes counter")
	}

	return &Metrics{
		polls:      polls,
		reconciles: reconciles,
		outcomes:   outcomes,
		tracer:     tp.Tracer(instrumentationName),
	}, nil
}

// NopMetrics returns Metrics that record nothing.
func NopMetrics() *Metrics {
	m, err := NewMetrics(metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider())
	if err != nil {
		panic(err)
	}
	return m
}
