package shop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/grocery-fulfillment/internal/cart"
	"github.com/joao-fontenele/grocery-fulfillment/internal/catalog"
	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
	"github.com/joao-fontenele/grocery-fulfillment/internal/recipe"
)

var ErrSessionNotFound = fmt.Errorf("session %w", domain.ErrNotFound)

type SearchResult struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type CartLineView struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	Notes     string          `json:"notes,omitempty"`
}

type CartView struct {
	Lines []CartLineView  `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

type PlacedOrder struct {
	OrderID string          `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
}

// Session is one shopper's cart plus the operations a front end calls on
// it. Calls on the same session are serialized.
type Session struct {
	ID string

	mu       sync.Mutex
	cart     *cart.Cart
	lastUsed time.Time

	resolver *recipe.Resolver
	service  *Service
}

func (s *Session) touch() {
	s.lastUsed = time.Now()
}

func (s *Session) AddToCart(ctx context.Context, itemID string, quantity int, notes string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.cart.Add(ctx, itemID, quantity, notes)
}

// RemoveFromCart returns domain.ErrLineNotFound when the item was not in
// the cart; the cart is unchanged in that case.
func (s *Session) RemoveFromCart(itemID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.cart.Remove(itemID)
}

func (s *Session) SetCartQuantity(itemID string, quantity int) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.cart.SetQuantity(itemID, quantity)
}

func (s *Session) ViewCart() CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	lines := s.cart.Lines()
	view := CartView{Lines: make([]CartLineView, 0, len(lines)), Total: s.cart.Total()}
	for _, l := range lines {
		view.Lines = append(view.Lines, CartLineView{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.Subtotal(),
			Notes:     l.Notes,
		})
	}
	return view
}

func (s *Session) ResolveRecipe(ctx context.Context, text string) (recipe.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.resolver.Fill(ctx, s.cart, text)
}

func (s *Session) PlaceOrder(ctx context.Context, customerName, address string) (PlacedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	order, err := s.service.PlaceOrder(ctx, s.cart, customerName, address)
	if err != nil {
		return PlacedOrder{}, err
	}
	return PlacedOrder{OrderID: order.ID, Total: order.Total}, nil
}

// Sessions is the registry of live shopping sessions.
type Sessions struct {
	catalog  catalog.Store
	resolver *recipe.Resolver
	service  *Service
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessions(store catalog.Store, resolver *recipe.Resolver, service *Service, logger *slog.Logger) *Sessions {
	return &Sessions{
		catalog:  store,
		resolver: resolver,
		service:  service,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func (r *Sessions) Create() *Session {
	sess := &Session{
		ID:       uuid.New().String(),
		cart:     cart.New(r.catalog),
		lastUsed: time.Now(),
		resolver: r.resolver,
		service:  r.service,
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	r.logger.Info("session created", "session_id", sess.ID)
	return sess
}

func (r *Sessions) Get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Close drops a session and its cart. It reports false for unknown ids.
func (r *Sessions) Close(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	r.logger.Info("session closed", "session_id", id)
	return true
}

// Expire drops sessions idle for longer than maxIdle and returns how many
// were removed.
func (r *Sessions) Expire(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, sess := range r.sessions {
		sess.mu.Lock()
		idle := sess.lastUsed.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("expired idle sessions", "count", removed)
	}
	return removed
}

// RunExpiry calls Expire every interval until ctx is done.
func (r *Sessions) RunExpiry(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Expire(maxIdle)
		}
	}
}

// Search is session independent; results carry only what a shopper needs
// to pick an item.
func (r *Sessions) Search(ctx context.Context, query string) ([]SearchResult, error) {
	items, err := r.catalog.Search(ctx, query, catalog.MaxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("%w: search catalog: %w", domain.ErrPersistence, err)
	}
	out := make([]SearchResult, 0, len(items))
	for _, it := range items {
		out = append(out, SearchResult{ID: it.ID, Name: it.Name, Price: it.Price})
	}
	return out, nil
}

func (r *Sessions) Lookup(ctx context.Context, id string) (*domain.CatalogItem, error) {
	item, err := r.catalog.Lookup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup item: %w", domain.ErrPersistence, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
	}
	return item, nil
}
