// Package shop places and manages orders on behalf of shopping sessions.
package shop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/grocery-fulfillment/internal/cart"
	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
	"github.com/joao-fontenele/grocery-fulfillment/internal/fulfillment"
	"github.com/joao-fontenele/grocery-fulfillment/internal/orders"
)

const (
	DefaultHistoryLimit   = 5
	DefaultPublishTimeout = 2 * time.Second
)

var tracer = otel.Tracer("shop/service")

// Scheduler starts background fulfillment for a newly placed order.
type Scheduler interface {
	Start(orderID string) bool
}

type Service struct {
	store          orders.Store
	scheduler      Scheduler
	publisher      fulfillment.Publisher
	logger         *slog.Logger
	historyLimit   int
	publishTimeout time.Duration
}

type ServiceOption func(*Service)

func WithPublisher(p fulfillment.Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithPublishTimeout bounds each status event publish so a slow broker
// cannot hold up the caller.
func WithPublishTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

func WithHistoryLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = min(n, orders.MaxListLimit)
		}
	}
}

func NewService(store orders.Store, scheduler Scheduler, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:          store,
		scheduler:      scheduler,
		logger:         logger,
		historyLimit:   DefaultHistoryLimit,
		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder freezes the cart into a new order, clears the cart and hands
// the order to the scheduler. The cart is left untouched on failure.
// Fulfillment starts before the received event is published; a publish
// failure is logged and does not fail the placement.
func (s *Service) PlaceOrder(ctx context.Context, c *cart.Cart, customerName, address string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "shop.PlaceOrder")
	defer span.End()

	if c.Empty() {
		return nil, domain.ErrEmptyCart
	}

	order := &domain.Order{
		CustomerName: strings.TrimSpace(customerName),
		Address:      strings.TrimSpace(address),
		Lines:        c.OrderLines(),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("failed to create order", "error", err, "customer_name", order.CustomerName)
		return nil, fmt.Errorf("%w: create order: %w", domain.ErrPersistence, err)
	}
	c.Clear()

	span.SetAttributes(attribute.String("order.id", order.ID))
	s.logger.Info("order placed", "order_id", order.ID, "customer_name", order.CustomerName, "total", order.Total.StringFixed(2))

	s.scheduler.Start(order.ID)
	s.publish(ctx, order, domain.OrderStatusReceived)

	return order, nil
}

// CancelOrder moves a non-terminal order to cancelled. The write is a
// compare-and-set against the status just read; if the scheduler advanced
// the order in between, the read is repeated.
func (s *Service) CancelOrder(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "shop.CancelOrder",
		trace.WithAttributes(attribute.String("order.id", id)),
	)
	defer span.End()

	for {
		order, err := s.store.GetByID(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%w: get order: %w", domain.ErrPersistence, err)
		}
		if order == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
		}
		if order.Status.Terminal() {
			return nil, fmt.Errorf("%w: %s is %s", domain.ErrAlreadyTerminal, id, order.Status)
		}

		ok, err := s.store.Transition(ctx, id, order.Status, domain.OrderStatusCancelled)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%w: cancel order: %w", domain.ErrPersistence, err)
		}
		if !ok {
			continue
		}

		s.logger.Info("order cancelled", "order_id", id, "previous_status", order.Status)
		s.publish(ctx, order, domain.OrderStatusCancelled)

		updated, err := s.store.GetByID(ctx, id)
		if err != nil || updated == nil {
			order.Status = domain.OrderStatusCancelled
			return order, nil
		}
		return updated, nil
	}
}

// GetOrder returns the full order with its total recomputed from lines.
func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get order: %w", domain.ErrPersistence, err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	return order, nil
}

// GetStatus prefers the store's status fast path when it has one.
func (s *Service) GetStatus(ctx context.Context, id string) (*orders.StatusView, error) {
	if reader, ok := s.store.(orders.StatusReader); ok {
		view, err := reader.Status(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: get status: %w", domain.ErrPersistence, err)
		}
		if view == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
		}
		return view, nil
	}

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return &orders.StatusView{Status: order.Status, UpdatedAt: order.UpdatedAt}, nil
}

// History lists orders newest first, for one customer when customerName is
// set. A non-positive limit means the configured default.
func (s *Service) History(ctx context.Context, customerName string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	limit = min(limit, orders.MaxListLimit)

	var (
		list []domain.Order
		err  error
	)
	if name := strings.TrimSpace(customerName); name != "" {
		list, err = s.store.ListByCustomer(ctx, name, limit)
	} else {
		list, err = s.store.ListRecent(ctx, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %w", domain.ErrPersistence, err)
	}
	return list, nil
}

func (s *Service) publish(ctx context.Context, order *domain.Order, status domain.OrderStatus) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	event := domain.NewOrderStatusChangedEvent(order.ID, order.CustomerName, status)
	if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
		s.logger.Error("failed to publish status event", "error", err, "order_id", order.ID, "status", status)
	}
}
