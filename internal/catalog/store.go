// Package catalog provides read-only access to purchasable items.
package catalog

import (
	"context"
	"strings"

	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

// MaxSearchResults caps every search regardless of the requested limit.
const MaxSearchResults = 50

// Store looks items up by id and searches them by name or tag. Lookup
// returns nil, nil when the id is unknown.
type Store interface {
	Lookup(ctx context.Context, id string) (*domain.CatalogItem, error)
	Search(ctx context.Context, query string, limit int) ([]domain.CatalogItem, error)
}

// MemoryStore keeps a fixed item list in insertion order. It is built once
// and never mutated, so it is safe for concurrent use without locking.
type MemoryStore struct {
	items []domain.CatalogItem
	byID  map[string]int
}

func NewMemoryStore(items []domain.CatalogItem) *MemoryStore {
	s := &MemoryStore{
		items: make([]domain.CatalogItem, 0, len(items)),
		byID:  make(map[string]int, len(items)),
	}
	for _, it := range items {
		key := strings.ToLower(it.ID)
		if _, dup := s.byID[key]; dup {
			continue
		}
		it.Tags = normalizeTags(it.Tags)
		s.byID[key] = len(s.items)
		s.items = append(s.items, it)
	}
	return s
}

func (s *MemoryStore) Lookup(_ context.Context, id string) (*domain.CatalogItem, error) {
	i, ok := s.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, nil
	}
	item := cloneItem(s.items[i])
	return &item, nil
}

func (s *MemoryStore) Search(_ context.Context, query string, limit int) ([]domain.CatalogItem, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	limit = clampLimit(limit)

	out := []domain.CatalogItem{}
	for _, it := range s.items {
		if len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(it.Name), q) || it.HasTag(q) {
			out = append(out, cloneItem(it))
		}
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxSearchResults {
		return MaxSearchResults
	}
	return limit
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func cloneItem(it domain.CatalogItem) domain.CatalogItem {
	it.Tags = append([]string(nil), it.Tags...)
	return it
}
