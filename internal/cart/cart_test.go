package cart

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/joao-fontenele/grocery-fulfillment/internal/catalog"
	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

type failingStore struct{}

func (failingStore) Lookup(context.Context, string) (*domain.CatalogItem, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Search(context.Context, string, int) ([]domain.CatalogItem, error) {
	return nil, errors.New("connection refused")
}

func newCart() *Cart {
	return New(catalog.NewMemoryStore(catalog.DefaultItems()))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCart_Add(t *testing.T) {
	ctx := context.Background()

	t.Run("appends new line with catalog price", func(t *testing.T) {
		c := newCart()

		total, err := c.Add(ctx, "milk-1l", 2, "")
		require.NoError(t, err)
		assert.True(t, total.Equal(dec("5.00")), "total %s", total)

		lines := c.Lines()
		require.Len(t, lines, 1)
		assert.Equal(t, "milk-1l", lines[0].ItemID)
		assert.Equal(t, "Fresh Milk", lines[0].Name)
		assert.True(t, lines[0].UnitPrice.Equal(dec("2.50")))
		assert.Equal(t, 2, lines[0].Quantity)
	})

	t.Run("increments existing line instead of duplicating", func(t *testing.T) {
		c := newCart()
		_, err := c.Add(ctx, "bread-loaf", 1, "")
		require.NoError(t, err)

		total, err := c.Add(ctx, "BREAD-LOAF", 3, "")
		require.NoError(t, err)

		require.Equal(t, 1, c.Len())
		assert.Equal(t, 4, c.Lines()[0].Quantity)
		assert.True(t, total.Equal(dec("7.20")), "total %s", total)
	})

	t.Run("non-empty notes replace existing notes", func(t *testing.T) {
		c := newCart()
		_, err := c.Add(ctx, "bread-loaf", 1, "sliced")
		require.NoError(t, err)

		_, err = c.Add(ctx, "bread-loaf", 1, "")
		require.NoError(t, err)
		assert.Equal(t, "sliced", c.Lines()[0].Notes)

		_, err = c.Add(ctx, "bread-loaf", 1, "unsliced")
		require.NoError(t, err)
		assert.Equal(t, "unsliced", c.Lines()[0].Notes)
	})

	t.Run("unknown item", func(t *testing.T) {
		c := newCart()
		_, err := c.Add(ctx, "caviar", 1, "")
		assert.ErrorIs(t, err, domain.ErrItemNotFound)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.True(t, c.Empty())
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		c := newCart()
		_, err := c.Add(ctx, "milk-1l", 0, "")
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
		assert.True(t, c.Empty())
	})

	t.Run("quantity above cap", func(t *testing.T) {
		c := newCart()
		_, err := c.Add(ctx, "milk-1l", MaxQuantity+1, "")
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
		assert.True(t, c.Empty())
	})

	t.Run("merge past cap leaves line unchanged", func(t *testing.T) {
		c := newCart()
		total, err := c.Add(ctx, "milk-1l", MaxQuantity, "")
		require.NoError(t, err)
		assert.True(t, total.Equal(dec("2497.50")), "total %s", total)

		total, err = c.Add(ctx, "milk-1l", 1, "")
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
		assert.Equal(t, MaxQuantity, c.Lines()[0].Quantity)
		assert.True(t, total.Equal(dec("2497.50")), "total %s", total)
	})

	t.Run("huge quantity does not wrap", func(t *testing.T) {
		c := newCart()
		_, err := c.Add(ctx, "milk-1l", 1, "")
		require.NoError(t, err)

		_, err = c.Add(ctx, "milk-1l", math.MaxInt, "")
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
		assert.Equal(t, 1, c.Lines()[0].Quantity)
		assert.True(t, c.Total().IsPositive())
	})

	t.Run("catalog failure surfaces as persistence error", func(t *testing.T) {
		c := New(failingStore{})
		_, err := c.Add(ctx, "milk-1l", 1, "")
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})
}

func TestCart_RemoveAndSetQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("remove absent line reports not found", func(t *testing.T) {
		c := newCart()
		_, err := c.Add(ctx, "milk-1l", 1, "")
		require.NoError(t, err)

		total, err := c.Remove("eggs-12")
		assert.ErrorIs(t, err, domain.ErrLineNotFound)
		assert.True(t, total.Equal(dec("2.50")))
		assert.Equal(t, 1, c.Len())
	})

	t.Run("remove deletes line", func(t *testing.T) {
		c := newCart()
		_, _ = c.Add(ctx, "milk-1l", 1, "")
		_, _ = c.Add(ctx, "eggs-12", 1, "")

		total, err := c.Remove("milk-1l")
		require.NoError(t, err)
		assert.True(t, total.Equal(dec("3.00")))
		require.Len(t, c.Lines(), 1)
		assert.Equal(t, "eggs-12", c.Lines()[0].ItemID)
	})

	t.Run("set quantity overwrites", func(t *testing.T) {
		c := newCart()
		_, _ = c.Add(ctx, "eggs-12", 5, "")

		total, err := c.SetQuantity("eggs-12", 2)
		require.NoError(t, err)
		assert.Equal(t, 2, c.Lines()[0].Quantity)
		assert.True(t, total.Equal(dec("6.00")))
	})

	t.Run("set quantity below one removes", func(t *testing.T) {
		c := newCart()
		_, _ = c.Add(ctx, "eggs-12", 5, "")

		_, err := c.SetQuantity("eggs-12", 0)
		require.NoError(t, err)
		assert.True(t, c.Empty())

		_, err = c.SetQuantity("eggs-12", -3)
		assert.ErrorIs(t, err, domain.ErrLineNotFound)
	})

	t.Run("set quantity above cap is rejected", func(t *testing.T) {
		c := newCart()
		_, _ = c.Add(ctx, "eggs-12", 5, "")

		total, err := c.SetQuantity("eggs-12", MaxQuantity+1)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
		assert.Equal(t, 5, c.Lines()[0].Quantity)
		assert.True(t, total.Equal(dec("15.00")))

		_, err = c.SetQuantity("eggs-12", MaxQuantity)
		require.NoError(t, err)
		assert.Equal(t, MaxQuantity, c.Lines()[0].Quantity)
	})

	t.Run("set quantity on absent line", func(t *testing.T) {
		c := newCart()
		_, err := c.SetQuantity("eggs-12", 4)
		assert.ErrorIs(t, err, domain.ErrLineNotFound)
		assert.True(t, c.Empty())
	})
}

func TestCart_LinesIsDefensiveCopy(t *testing.T) {
	c := newCart()
	_, err := c.Add(context.Background(), "milk-1l", 1, "")
	require.NoError(t, err)

	lines := c.Lines()
	lines[0].Quantity = 99

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Lines()[0].Quantity)
}

func TestCart_TotalRoundsToCents(t *testing.T) {
	c := New(catalog.NewMemoryStore([]domain.CatalogItem{
		{ID: "gum", Name: "Gum", Price: dec("0.335")},
	}))

	total, err := c.Add(context.Background(), "gum", 3, "")
	require.NoError(t, err)
	// 1.005 rounds half away from zero.
	assert.Equal(t, "1.01", total.StringFixed(2))
}

func TestCart_Invariants(t *testing.T) {
	items := catalog.DefaultItems()
	ids := make([]string, 0, len(items)+1)
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	ids = append(ids, "not-in-catalog")

	qty := rapid.OneOf(
		rapid.IntRange(-2, 5),
		rapid.IntRange(MaxQuantity-5, MaxQuantity+2),
		rapid.SampledFrom([]int{math.MaxInt, math.MinInt}),
	)

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		c := newCart()

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			id := rapid.SampledFrom(ids).Draw(rt, "id")
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				_, _ = c.Add(ctx, id, qty.Draw(rt, "qty"), "")
			case 1:
				_, _ = c.Remove(id)
			case 2:
				_, _ = c.SetQuantity(id, qty.Draw(rt, "qty"))
			}

			seen := map[string]bool{}
			want := decimal.Zero
			for _, l := range c.Lines() {
				if seen[l.ItemID] {
					rt.Fatalf("duplicate line for %s", l.ItemID)
				}
				seen[l.ItemID] = true
				if l.Quantity < 1 || l.Quantity > MaxQuantity {
					rt.Fatalf("line %s has quantity %d", l.ItemID, l.Quantity)
				}
				want = want.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
			}
			if got := c.Total(); !got.Equal(want.Round(2)) {
				rt.Fatalf("total %s, want %s", got, want.Round(2))
			}
		}
	})
}
