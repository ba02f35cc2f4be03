package orders

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

// MemoryRepository is an in-process Store. The index lock is held only to
// find or insert an entry; status reads and writes lock the single entry
// involved, so writes to different orders never contend.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ids     []string
	now     func() time.Time
}

type memoryEntry struct {
	mu    sync.Mutex
	order domain.Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[string]*memoryEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(_ context.Context, order *domain.Order) error {
	order.ID = uuid.New().String()
	order.Status = domain.OrderStatusReceived
	order.Total = domain.LinesTotal(order.Lines)
	if order.CreatedAt.IsZero() {
		order.CreatedAt = r.now()
	}
	order.UpdatedAt = order.CreatedAt

	// The entry is complete before it becomes reachable through the index.
	entry := &memoryEntry{order: order.Clone()}

	r.mu.Lock()
	r.entries[order.ID] = entry
	r.ids = append(r.ids, order.ID)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) entry(id string) *memoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	e := r.entry(id)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	order := e.order.Clone()
	e.mu.Unlock()

	order.Total = domain.LinesTotal(order.Lines)
	return &order, nil
}

func (r *MemoryRepository) ListByCustomer(_ context.Context, customerName string, limit int) ([]domain.Order, error) {
	return r.list(clampLimit(limit), func(o *domain.Order) bool {
		return strings.EqualFold(o.CustomerName, customerName)
	}), nil
}

func (r *MemoryRepository) ListRecent(_ context.Context, limit int) ([]domain.Order, error) {
	return r.list(clampLimit(limit), func(*domain.Order) bool { return true }), nil
}

// list walks the index newest first.
func (r *MemoryRepository) list(limit int, match func(*domain.Order) bool) []domain.Order {
	r.mu.RLock()
	entries := make([]*memoryEntry, 0, len(r.ids))
	for i := len(r.ids) - 1; i >= 0; i-- {
		entries = append(entries, r.entries[r.ids[i]])
	}
	r.mu.RUnlock()

	out := []domain.Order{}
	for _, e := range entries {
		if len(out) >= limit {
			break
		}
		e.mu.Lock()
		if match(&e.order) {
			order := e.order.Clone()
			order.Total = domain.LinesTotal(order.Lines)
			out = append(out, order)
		}
		e.mu.Unlock()
	}
	return out
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) (bool, error) {
	e := r.entry(id)
	if e == nil {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r.setStatus(e, status)
	return true, nil
}

func (r *MemoryRepository) Transition(_ context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	e := r.entry(id)
	if e == nil {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.order.Status != from {
		return false, nil
	}
	r.setStatus(e, to)
	return true, nil
}

// setStatus requires e.mu to be held.
func (r *MemoryRepository) setStatus(e *memoryEntry, status domain.OrderStatus) {
	now := r.now()
	if !now.After(e.order.UpdatedAt) {
		now = e.order.UpdatedAt.Add(time.Microsecond)
	}
	e.order.Status = status
	e.order.UpdatedAt = now
}

func (r *MemoryRepository) ListActive(_ context.Context) ([]string, error) {
	r.mu.RLock()
	entries := make([]*memoryEntry, 0, len(r.ids))
	for _, id := range r.ids {
		entries = append(entries, r.entries[id])
	}
	r.mu.RUnlock()

	var ids []string
	for _, e := range entries {
		e.mu.Lock()
		if !e.order.Status.Terminal() {
			ids = append(ids, e.order.ID)
		}
		e.mu.Unlock()
	}
	return ids, nil
}
