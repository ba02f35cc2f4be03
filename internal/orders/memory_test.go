package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

func newOrder(customer string) *domain.Order {
	return &domain.Order{
		CustomerName: customer,
		Address:      "1 Main St",
		Lines: []domain.OrderLine{
			{ItemID: "milk-1l", Name: "Fresh Milk", UnitPrice: decimal.RequireFromString("2.50"), Quantity: 2},
			{ItemID: "bread-loaf", Name: "White Bread Loaf", UnitPrice: decimal.RequireFromString("1.80"), Quantity: 1},
		},
	}
}

func TestMemoryRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	order := newOrder("Ada")
	order.Status = domain.OrderStatusDelivered
	require.NoError(t, repo.Create(ctx, order))

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, domain.OrderStatusReceived, order.Status)
	assert.Equal(t, "6.80", order.Total.StringFixed(2))
	assert.False(t, order.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ada", got.CustomerName)
	assert.Len(t, got.Lines, 2)
	assert.Equal(t, domain.OrderStatusReceived, got.Status)

	t.Run("caller mutations do not leak into the store", func(t *testing.T) {
		order.Lines[0].Quantity = 100
		got.Lines[1].UnitPrice = decimal.NewFromInt(999)

		again, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, again.Lines[0].Quantity)
		assert.Equal(t, "6.80", again.Total.StringFixed(2))
	})

	t.Run("unknown id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestMemoryRepository_Lists(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var ids []string
	for i, name := range []string{"ada", "Bob", "ADA", "ada"} {
		o := newOrder(name)
		o.CreatedAt = time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC)
		require.NoError(t, repo.Create(ctx, o))
		ids = append(ids, o.ID)
	}

	t.Run("by customer newest first, case-insensitive", func(t *testing.T) {
		got, err := repo.ListByCustomer(ctx, "Ada", 10)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, ids[3], got[0].ID)
		assert.Equal(t, ids[2], got[1].ID)
		assert.Equal(t, ids[0], got[2].ID)
	})

	t.Run("recent with limit", func(t *testing.T) {
		got, err := repo.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, ids[3], got[0].ID)
		assert.Equal(t, ids[2], got[1].ID)
	})

	t.Run("unknown customer", func(t *testing.T) {
		got, err := repo.ListByCustomer(ctx, "zed", 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMemoryRepository_StatusWrites(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	order := newOrder("ada")
	require.NoError(t, repo.Create(ctx, order))

	t.Run("update advances updated_at even on a frozen clock", func(t *testing.T) {
		ok, err := repo.UpdateStatus(ctx, order.ID, domain.OrderStatusConfirmed)
		require.NoError(t, err)
		assert.True(t, ok)

		got, _ := repo.GetByID(ctx, order.ID)
		assert.Equal(t, domain.OrderStatusConfirmed, got.Status)
		assert.True(t, got.UpdatedAt.After(order.UpdatedAt))
	})

	t.Run("update unknown order", func(t *testing.T) {
		ok, err := repo.UpdateStatus(ctx, "missing", domain.OrderStatusConfirmed)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("transition only from expected status", func(t *testing.T) {
		ok, err := repo.Transition(ctx, order.ID, domain.OrderStatusReceived, domain.OrderStatusShipped)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.Transition(ctx, order.ID, domain.OrderStatusConfirmed, domain.OrderStatusShipped)
		require.NoError(t, err)
		assert.True(t, ok)

		got, _ := repo.GetByID(ctx, order.ID)
		assert.Equal(t, domain.OrderStatusShipped, got.Status)
	})
}

func TestMemoryRepository_ListActive(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		o := newOrder("ada")
		require.NoError(t, repo.Create(ctx, o))
		ids = append(ids, o.ID)
	}
	_, _ = repo.UpdateStatus(ctx, ids[0], domain.OrderStatusDelivered)
	_, _ = repo.UpdateStatus(ctx, ids[2], domain.OrderStatusCancelled)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, active)
}

func TestMemoryRepository_ConcurrentWrites(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := newOrder(fmt.Sprintf("customer-%d", i))
			if err := repo.Create(ctx, o); err != nil {
				t.Errorf("create: %v", err)
				return
			}
			ids[i] = o.ID
			for _, s := range domain.StatusFlow[1:] {
				if _, err := repo.UpdateStatus(ctx, o.ID, s); err != nil {
					t.Errorf("update: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusDelivered, got.Status)
	}

	recent, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, n)
}
