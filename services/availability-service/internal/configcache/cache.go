// Package configcache holds the per-shop BookingPolicy and CapacityConfig in
// a read-mostly in-process cache. Entries never expire on a timer; the owner
// configuration collaborator invalidates a shop explicitly after a change,
// so stale capacity rules are never served "until TTL".
package configcache

import (
	"context"
	"sync"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
)

// Store is the slice of the persistence collaborator the cache loads from.
type Store interface {
	GetBookingPolicy(ctx context.Context, shopID string) (model.BookingPolicy, error)
	ListCapacityConfigs(ctx context.Context, shopID string) ([]model.CapacityConfig, error)
}

type shopConfig struct {
	policy   model.BookingPolicy
	capacity []model.CapacityConfig
}

// Cache is safe for concurrent use; readers never block each other,
// invalidation is rare.
type Cache struct {
	store Store

	mu    sync.RWMutex
	shops map[string]shopConfig
}

func New(store Store) *Cache {
	return &Cache{
		store: store,
		shops: make(map[string]shopConfig),
	}
}

// Policy returns the shop's booking policy, loading it on first use.
func (c *Cache) Policy(ctx context.Context, shopID string) (model.BookingPolicy, error) {
	cfg, err := c.get(ctx, shopID)
	if err != nil {
		return model.BookingPolicy{}, err
	}
	return cfg.policy, nil
}

// Capacity returns the shop's capacity bands, loading them on first use.
func (c *Cache) Capacity(ctx context.Context, shopID string) ([]model.CapacityConfig, error) {
	cfg, err := c.get(ctx, shopID)
	if err != nil {
		return nil, err
	}
	return cfg.capacity, nil
}

// Invalidate drops a shop's cached configuration. The single entry point
// called when an owner changes policy or capacity settings.
func (c *Cache) Invalidate(shopID string) {
	c.mu.Lock()
	delete(c.shops, shopID)
	c.mu.Unlock()
}

func (c *Cache) get(ctx context.Context, shopID string) (shopConfig, error) {
	c.mu.RLock()
	cfg, ok := c.shops[shopID]
	c.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	policy, err := c.store.GetBookingPolicy(ctx, shopID)
	if err != nil {
		return shopConfig{}, err
	}
	capacity, err := c.store.ListCapacityConfigs(ctx, shopID)
	if err != nil {
		return shopConfig{}, err
	}
	cfg = shopConfig{policy: policy, capacity: capacity}

	// Concurrent loaders may race here; last write wins and both saw
	// consistent storage state, so that is fine.
	c.mu.Lock()
	c.shops[shopID] = cfg
	c.mu.Unlock()
	return cfg, nil
}
