package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownKey is returned for cache keys that were never registered.
var ErrUnknownKey = errors.New("unknown cache key")

// PopulateFunc computes the value stored under a cache key.
type PopulateFunc func(ctx context.Context) ([]byte, error)

// Registry binds named keys to the functions that populate them.
type Registry struct {
	driver Driver
	ttl    time.Duration

	mu        sync.RWMutex
	populates map[string]PopulateFunc
}

// NewRegistry returns a Registry storing entries in driver.
func NewRegistry(driver Driver, ttl time.Duration) *Registry {
	if driver == nil {
		driver = NewLocal(ttl)
	}
	return &Registry{driver: driver, ttl: ttl, populates: make(map[string]PopulateFunc)}
}

// Driver returns the backing driver.
func (r *Registry) Driver() Driver { return r.driver }

// Register binds key to fn, replacing any previous binding.
func (r *Registry) Register(key string, fn PopulateFunc) {
	r.mu.Lock()
	r.populates[key] = fn
	r.mu.Unlock()
}

// Keys lists registered keys in order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.populates))
	for k := range r.populates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) lookup(key string) (PopulateFunc, error) {
	r.mu.RLock()
	fn, ok := r.populates[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return fn, nil
}

// Retrieve returns the cached value, populating it on a miss.
func (r *Registry) Retrieve(ctx context.Context, key string) ([]byte, error) {
	fn, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	if b, ok, err := r.driver.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return b, nil
	}
	return r.fill(ctx, key, fn)
}

// Populate recomputes and stores the value for key.
func (r *Registry) Populate(ctx context.Context, key string) error {
	fn, err := r.lookup(key)
	if err != nil {
		return err
	}
	_, err = r.fill(ctx, key, fn)
	return err
}

// Invalidate drops the cached value for key.
func (r *Registry) Invalidate(ctx context.Context, key string) error {
	if _, err := r.lookup(key); err != nil {
		return err
	}
	return r.driver.Delete(ctx, key)
}

// InvalidateAll drops every registered key, returning the first error.
func (r *Registry) InvalidateAll(ctx context.Context) error {
	var first error
	for _, key := range r.Keys() {
		if err := r.driver.Delete(ctx, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (r *Registry) fill(ctx context.Context, key string, fn PopulateFunc) ([]byte, error) {
	b, err := fn(ctx)
	if err != nil {
		return nil, fmt.Errorf("populate %s: %w", key, err)
	}
	if err := r.driver.Set(ctx, key, b, r.ttl); err != nil {
		return nil, err
	}
	return b, nil
}
