package fulfillment

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

type instruments struct {
	transitions metric.Int64Counter
	active      metric.Int64UpDownCounter
	failures    metric.Int64Counter
}

// newInstruments falls back to no-op instruments if the global meter
// rejects a definition.
func newInstruments() *instruments {
	meter := otel.Meter("fulfillment")
	ins := &instruments{}
	var err error

	if ins.transitions, err = meter.Int64Counter("fulfillment.transitions",
		metric.WithDescription("Order status changes written by the scheduler")); err != nil {
		otel.Handle(err)
	}
	if ins.active, err = meter.Int64UpDownCounter("fulfillment.tasks.active",
		metric.WithDescription("Orders currently tracked by a scheduler task")); err != nil {
		otel.Handle(err)
	}
	if ins.failures, err = meter.Int64Counter("fulfillment.failures",
		metric.WithDescription("Scheduler tasks stopped by a store error")); err != nil {
		otel.Handle(err)
	}
	return ins
}

func (i *instruments) transitioned(ctx context.Context, status domain.OrderStatus) {
	if i.transitions != nil {
		i.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
}

func (i *instruments) taskStarted(ctx context.Context) {
	if i.active != nil {
		i.active.Add(ctx, 1)
	}
}

func (i *instruments) taskEnded(ctx context.Context) {
	if i.active != nil {
		i.active.Add(ctx, -1)
	}
}

func (i *instruments) failed(ctx context.Context, op string) {
	if i.failures != nil {
		i.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}
