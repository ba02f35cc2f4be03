// Package fulfillment advances placed orders through the delivery
// lifecycle in the background.
package fulfillment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
	"github.com/joao-fontenele/grocery-fulfillment/internal/orders"
)

const DefaultStep = 5 * time.Second

var tracer = otel.Tracer("fulfillment/scheduler")

// Publisher receives a status event after every status the scheduler writes.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Scheduler runs one goroutine per in-flight order. Each tick re-reads the
// order from the store, so a cancellation written by anyone is observed on
// the next tick at the latest. The step is written with a compare-and-set
// against the status just read, so it can never overwrite a cancellation.
type Scheduler struct {
	store     orders.Store
	step      time.Duration
	publisher Publisher
	logger    *slog.Logger
	metrics   *instruments

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]struct{}
	stopped bool
}

type Option func(*Scheduler)

func WithPublisher(p Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

func NewScheduler(store orders.Store, step time.Duration, logger *slog.Logger, opts ...Option) *Scheduler {
	if step <= 0 {
		step = DefaultStep
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:   store,
		step:    step,
		logger:  logger,
		metrics: newInstruments(),
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins tracking orderID and returns immediately. It reports false
// if the order already has a task or the scheduler is stopped.
func (s *Scheduler) Start(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if _, ok := s.running[orderID]; ok {
		return false
	}
	s.running[orderID] = struct{}{}
	s.wg.Add(1)
	s.metrics.taskStarted(s.ctx)

	go s.run(orderID)
	return true
}

// Resume starts a task for every order the store still considers in flight.
func (s *Scheduler) Resume(ctx context.Context) (int, error) {
	ids, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, id := range ids {
		if s.Start(id) {
			started++
		}
	}
	s.logger.Info("resumed fulfillment tasks", "count", started)
	return started, nil
}

// Running reports whether orderID currently has a task.
func (s *Scheduler) Running(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[orderID]
	return ok
}

// Wait blocks until every task has finished on its own.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Stop interrupts all tasks and waits for them to exit. Orders keep their
// last written status.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(orderID string) {
	defer func() {
		s.mu.Lock()
		delete(s.running, orderID)
		s.mu.Unlock()
		s.metrics.taskEnded(context.Background())
		s.wg.Done()
	}()

	s.logger.Info("tracking order", "order_id", orderID, "step", s.step)

	timer := time.NewTimer(s.step)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}

		if done := s.tick(orderID); done {
			return
		}
		timer.Reset(s.step)
	}
}

// tick performs one wake-up and reports whether the task is finished.
func (s *Scheduler) tick(orderID string) bool {
	ctx, span := tracer.Start(s.ctx, "fulfillment.tick",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		if s.ctx.Err() != nil {
			return true
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.failed(ctx, "read")
		s.logger.Error("failed to read order, stopping fulfillment", "error", err, "order_id", orderID)
		return true
	}
	if order == nil {
		s.logger.Warn("order disappeared, stopping fulfillment", "order_id", orderID)
		return true
	}

	if order.Status == domain.OrderStatusCancelled {
		s.logger.Info("order cancelled, stopping fulfillment", "order_id", orderID)
		return true
	}

	next, ok := order.Status.Next()
	if !ok {
		return true
	}

	written, err := s.store.Transition(ctx, orderID, order.Status, next)
	if err != nil {
		if s.ctx.Err() != nil {
			return true
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.failed(ctx, "write")
		s.logger.Error("failed to write order status, stopping fulfillment",
			"error", err, "order_id", orderID, "status", next)
		return true
	}
	if !written {
		// Someone else changed the status since the read; look again next tick.
		return false
	}

	span.SetAttributes(attribute.String("order.status", string(next)))
	s.metrics.transitioned(ctx, next)
	s.logger.Info("order status updated", "order_id", orderID, "status", next)
	s.publish(ctx, order, next)

	return next.Terminal()
}

func (s *Scheduler) publish(ctx context.Context, order *domain.Order, status domain.OrderStatus) {
	if s.publisher == nil {
		return
	}
	event := domain.NewOrderStatusChangedEvent(order.ID, order.CustomerName, status)
	if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
		s.logger.Error("failed to publish status event", "error", err, "order_id", order.ID, "status", status)
	}
}
