package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

const (
	// order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	TTLStatusCache = 30 * time.Second
)

type StatusView struct {
	Status    domain.OrderStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// StatusReader is implemented by stores that can answer status queries
// without loading the whole order.
type StatusReader interface {
	Status(ctx context.Context, id string) (*StatusView, error)
}

type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// cachedStatus carries the order's updated_at in microseconds so the
// conditional write can compare entries without parsing timestamps.
type cachedStatus struct {
	StatusView
	Version int64 `json:"version"`
}

// setIfNewer writes ARGV[1] unless the cached entry has a version at or
// above ARGV[2]. Returns 1 when the entry was written.
var setIfNewer = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur then
	local ok, decoded = pcall(cjson.decode, cur)
	if ok and tonumber(decoded["version"]) and tonumber(decoded["version"]) >= tonumber(ARGV[2]) then
		return 0
	end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

func NewStatusCache(rdb *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = TTLStatusCache
	}
	return &StatusCache{rdb: rdb, ttl: ttl}
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Get returns nil, nil on a cache miss.
func (c *StatusCache) Get(ctx context.Context, id string) (*StatusView, error) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry cachedStatus
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cached status: %w", err)
	}
	return &entry.StatusView, nil
}

// Set stores view unless the cache already holds a view with the same or a
// later UpdatedAt. The returned bool reports whether view was written.
func (c *StatusCache) Set(ctx context.Context, id string, view StatusView) (bool, error) {
	version := view.UpdatedAt.UnixMicro()
	b, err := json.Marshal(cachedStatus{StatusView: view, Version: version})
	if err != nil {
		return false, err
	}
	n, err := setIfNewer.Run(ctx, c.rdb, []string{fmt.Sprintf(KeyOrderStatus, id)}, b, version, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *StatusCache) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyOrderStatus, id)).Err()
}

// CachingStore serves status reads from the cache and writes the fresh
// view through after every status write. Cache writes only ever move an
// entry forward in updated_at, so a slow read-miss fill cannot replace the
// view a concurrent status write published. Full order reads always hit
// the underlying store.
type CachingStore struct {
	Store
	cache  *StatusCache
	logger *slog.Logger
}

func NewCachingStore(store Store, cache *StatusCache, logger *slog.Logger) *CachingStore {
	return &CachingStore{Store: store, cache: cache, logger: logger}
}

func (s *CachingStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (bool, error) {
	ok, err := s.Store.UpdateStatus(ctx, id, status)
	if ok {
		s.refresh(ctx, id)
	}
	return ok, err
}

func (s *CachingStore) Transition(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	ok, err := s.Store.Transition(ctx, id, from, to)
	if ok {
		s.refresh(ctx, id)
	}
	return ok, err
}

func (s *CachingStore) Status(ctx context.Context, id string) (*StatusView, error) {
	view, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.Warn("status cache read failed", "error", err, "order_id", id)
	}
	if view != nil {
		return view, nil
	}

	order, err := s.Store.GetByID(ctx, id)
	if err != nil || order == nil {
		return nil, err
	}

	view = &StatusView{Status: order.Status, UpdatedAt: order.UpdatedAt}
	if _, err := s.cache.Set(ctx, id, *view); err != nil {
		s.logger.Warn("status cache write failed", "error", err, "order_id", id)
	}
	return view, nil
}

// refresh publishes the stored view after a status write. When the fresh
// view cannot be read or written the entry is dropped instead.
func (s *CachingStore) refresh(ctx context.Context, id string) {
	order, err := s.Store.GetByID(ctx, id)
	if err == nil && order != nil {
		_, err = s.cache.Set(ctx, id, StatusView{Status: order.Status, UpdatedAt: order.UpdatedAt})
		if err == nil {
			return
		}
	}
	if err != nil {
		s.logger.Warn("status cache refresh failed", "error", err, "order_id", id)
	}
	s.invalidate(ctx, id)
}

func (s *CachingStore) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("status cache invalidation failed", "error", err, "order_id", id)
	}
}
