//go:build integration

package test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joao-fontenele/grocery-fulfillment/internal/cart"
	"github.com/joao-fontenele/grocery-fulfillment/internal/catalog"
	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
	"github.com/joao-fontenele/grocery-fulfillment/internal/fulfillment"
	"github.com/joao-fontenele/grocery-fulfillment/internal/messaging"
	"github.com/joao-fontenele/grocery-fulfillment/internal/orders"
	"github.com/joao-fontenele/grocery-fulfillment/internal/shop"
	"github.com/joao-fontenele/grocery-fulfillment/internal/worker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededCatalog(ctx context.Context, t *testing.T, repo *catalog.CatalogRepository) {
	t.Helper()
	seeded, err := repo.Seed(ctx, catalog.DefaultItems())
	if err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}
	if !seeded {
		t.Fatal("expected first seed to insert items")
	}
}

func TestCatalogRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := SetupPostgres(ctx, t)
	repo := catalog.NewCatalogRepository(db)
	seededCatalog(ctx, t, repo)

	seeded, err := repo.Seed(ctx, catalog.DefaultItems())
	if err != nil {
		t.Fatalf("second seed failed: %v", err)
	}
	if seeded {
		t.Fatal("expected second seed to be a no-op")
	}

	item, err := repo.Lookup(ctx, "MILK-1L")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if item == nil || item.ID != "milk-1l" {
		t.Fatalf("expected milk-1l, got %+v", item)
	}
	if item.Price.StringFixed(2) != "2.50" {
		t.Fatalf("expected price 2.50, got %s", item.Price)
	}

	missing, err := repo.Lookup(ctx, "caviar")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for unknown id, got %+v, %v", missing, err)
	}

	fruit, err := repo.Search(ctx, "FRUIT", 50)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(fruit) != 2 || fruit[0].ID != "apple-1kg" || fruit[1].ID != "banana-6" {
		t.Fatalf("expected apples then bananas, got %+v", fruit)
	}

	none, err := repo.Search(ctx, "no-such-tag", 50)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", none)
	}
}

func TestOrderRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := SetupPostgres(ctx, t)
	items := catalog.NewCatalogRepository(db)
	seededCatalog(ctx, t, items)
	repo := orders.NewOrderRepository(db)

	c := cart.New(items)
	if _, err := c.Add(ctx, "milk-1l", 2, "semi-skimmed"); err != nil {
		t.Fatalf("add milk: %v", err)
	}
	if _, err := c.Add(ctx, "bread-loaf", 1, ""); err != nil {
		t.Fatalf("add bread: %v", err)
	}

	order := &domain.Order{CustomerName: "Ada", Address: "1 Main St", Lines: c.OrderLines()}
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, order.ID)
	if err != nil || got == nil {
		t.Fatalf("get failed: %+v, %v", got, err)
	}
	if got.Total.StringFixed(2) != "6.80" {
		t.Fatalf("expected total 6.80, got %s", got.Total)
	}
	if len(got.Lines) != 2 || got.Lines[0].Notes != "semi-skimmed" {
		t.Fatalf("unexpected lines: %+v", got.Lines)
	}
	if got.Status != domain.OrderStatusReceived {
		t.Fatalf("expected received, got %s", got.Status)
	}

	ok, err := repo.Transition(ctx, order.ID, domain.OrderStatusShipped, domain.OrderStatusOutForDelivery)
	if err != nil || ok {
		t.Fatalf("expected stale transition to be refused, got %v, %v", ok, err)
	}
	ok, err = repo.Transition(ctx, order.ID, domain.OrderStatusReceived, domain.OrderStatusConfirmed)
	if err != nil || !ok {
		t.Fatalf("expected transition to apply, got %v, %v", ok, err)
	}

	after, err := repo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !after.UpdatedAt.After(got.UpdatedAt) {
		t.Fatalf("expected updated_at to advance: %s -> %s", got.UpdatedAt, after.UpdatedAt)
	}

	ok, err = repo.UpdateStatus(ctx, "missing", domain.OrderStatusCancelled)
	if err != nil || ok {
		t.Fatalf("expected unknown id to report false, got %v, %v", ok, err)
	}

	active, err := repo.ListActive(ctx)
	if err != nil || len(active) != 1 || active[0] != order.ID {
		t.Fatalf("expected one active order, got %v, %v", active, err)
	}

	history, err := repo.ListByCustomer(ctx, "ADA", 5)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected one order for ada, got %v, %v", history, err)
	}
	if history[0].Total.StringFixed(2) != "6.80" {
		t.Fatalf("expected listed total 6.80, got %s", history[0].Total)
	}
}

func TestFulfillmentLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := SetupPostgres(ctx, t)
	items := catalog.NewCatalogRepository(db)
	seededCatalog(ctx, t, items)
	store := orders.NewOrderRepository(db)

	scheduler := fulfillment.NewScheduler(store, 50*time.Millisecond, discardLogger())
	defer scheduler.Stop()
	service := shop.NewService(store, scheduler, discardLogger())

	place := func() *domain.Order {
		c := cart.New(items)
		if _, err := c.Add(ctx, "tea-100g", 1, ""); err != nil {
			t.Fatalf("add tea: %v", err)
		}
		order, err := service.PlaceOrder(ctx, c, "Grace", "2 Side St")
		if err != nil {
			t.Fatalf("place order: %v", err)
		}
		return order
	}

	delivered := place()
	cancelled := place()
	if _, err := service.CancelOrder(ctx, cancelled.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	scheduler.Wait()

	got, err := store.GetByID(ctx, delivered.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.OrderStatusDelivered {
		t.Fatalf("expected delivered, got %s", got.Status)
	}

	got, err = store.GetByID(ctx, cancelled.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}

	if _, err := service.CancelOrder(ctx, delivered.ID); err == nil {
		t.Fatal("expected cancelling a delivered order to fail")
	}
}

func TestStatusCache(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := SetupPostgres(ctx, t)
	addr := SetupRedis(ctx, t)

	rdb := orders.NewRedisClient(addr)
	defer func() { _ = rdb.Close() }()

	cache := orders.NewStatusCache(rdb, time.Minute)
	repo := orders.NewOrderRepository(db)
	store := orders.NewCachingStore(repo, cache, discardLogger())

	order := &domain.Order{
		CustomerName: "Ada",
		Address:      "1 Main St",
		Lines: []domain.OrderLine{{ItemID: "milk-1l", Name: "Fresh Milk", UnitPrice: catalog.DefaultItems()[0].Price, Quantity: 1}},
	}
	if err := store.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	view, err := store.Status(ctx, order.ID)
	if err != nil || view == nil || view.Status != domain.OrderStatusReceived {
		t.Fatalf("expected received, got %+v, %v", view, err)
	}
	cached, err := cache.Get(ctx, order.ID)
	if err != nil || cached == nil {
		t.Fatalf("expected status to be cached, got %+v, %v", cached, err)
	}

	// A reader missed the cache and loaded the order before the scheduler's
	// write; its fill lands after the write.
	if err := cache.Invalidate(ctx, order.ID); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	stale, err := repo.GetByID(ctx, order.ID)
	if err != nil || stale == nil {
		t.Fatalf("get failed: %+v, %v", stale, err)
	}

	if ok, err := store.Transition(ctx, order.ID, domain.OrderStatusReceived, domain.OrderStatusConfirmed); err != nil || !ok {
		t.Fatalf("transition failed: %v, %v", ok, err)
	}
	cached, err = cache.Get(ctx, order.ID)
	if err != nil || cached == nil || cached.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed to be written through, got %+v, %v", cached, err)
	}

	written, err := cache.Set(ctx, order.ID, orders.StatusView{Status: stale.Status, UpdatedAt: stale.UpdatedAt})
	if err != nil || written {
		t.Fatalf("expected stale fill to be rejected, got %v, %v", written, err)
	}
	view, err = store.Status(ctx, order.ID)
	if err != nil || view.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed after stale fill, got %+v, %v", view, err)
	}

	if ok, err := store.Transition(ctx, order.ID, domain.OrderStatusConfirmed, domain.OrderStatusCancelled); err != nil || !ok {
		t.Fatalf("cancel failed: %v, %v", ok, err)
	}
	view, err = store.Status(ctx, order.ID)
	if err != nil || view.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %+v, %v", view, err)
	}

	// A newer view still replaces an older one.
	later := orders.StatusView{Status: domain.OrderStatusCancelled, UpdatedAt: view.UpdatedAt.Add(time.Second)}
	if written, err := cache.Set(ctx, order.ID, later); err != nil || !written {
		t.Fatalf("expected newer view to be written, got %v, %v", written, err)
	}
}

type notificationCapture struct {
	mu    sync.Mutex
	items []worker.Notification
	seen  chan struct{}
}

func (c *notificationCapture) handler(w http.ResponseWriter, r *http.Request) {
	var n worker.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.items = append(c.items, n)
	c.mu.Unlock()
	c.seen <- struct{}{}
	w.WriteHeader(http.StatusOK)
}

func (c *notificationCapture) statuses() []domain.OrderStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.OrderStatus, 0, len(c.items))
	for _, n := range c.items {
		out = append(out, n.Status)
	}
	return out
}

func TestStatusEventsReachWorker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers := SetupKafka(ctx, t)
	logger := discardLogger()

	producer := messaging.NewProducer(brokers, messaging.DefaultStatusTopic)
	defer func() { _ = producer.Close() }()

	store := orders.NewMemoryRepository()
	items := catalog.NewMemoryStore(catalog.DefaultItems())
	scheduler := fulfillment.NewScheduler(store, 20*time.Millisecond, logger, fulfillment.WithPublisher(producer))
	defer scheduler.Stop()
	service := shop.NewService(store, scheduler, logger, shop.WithPublisher(producer))

	c := cart.New(items)
	if _, err := c.Add(ctx, "coffee-200g", 1, ""); err != nil {
		t.Fatalf("add coffee: %v", err)
	}
	order, err := service.PlaceOrder(ctx, c, "Ada", "1 Main St")
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	scheduler.Wait()

	capture := &notificationCapture{seen: make(chan struct{}, 16)}
	notifyServer := httptest.NewServer(http.HandlerFunc(capture.handler))
	defer notifyServer.Close()

	consumer := messaging.NewConsumer(brokers, messaging.DefaultStatusTopic, "integration-worker",
		messaging.WithStartOffset(kafka.FirstOffset),
		messaging.WithLogger(logger),
	)
	defer func() { _ = consumer.Close() }()

	handler := worker.NewNotificationHandler(notifyServer.URL, notifyServer.Client(), logger)

	consumeCtx, stopConsume := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Consume(consumeCtx, handler.Handle) }()

	want := []domain.OrderStatus{
		domain.OrderStatusReceived,
		domain.OrderStatusConfirmed,
		domain.OrderStatusShipped,
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusDelivered,
	}
	for range want {
		select {
		case <-capture.seen:
		case <-ctx.Done():
			t.Fatalf("timed out waiting for notifications, got %v", capture.statuses())
		}
	}
	stopConsume()
	<-done

	got := capture.statuses()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	capture.mu.Lock()
	first := capture.items[0]
	capture.mu.Unlock()
	if first.OrderID != order.ID || first.To != "Ada" {
		t.Fatalf("unexpected notification: %+v", first)
	}
}
