package cache

import "context"

// KeyValueCache is the cache contract handed to executors that can reuse
// per-document artifacts (the federation gateway caches query plans with it).
type KeyValueCache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) (any, bool, error)
	// Set stores value under key.
	Set(ctx context.Context, key string, value any) error
	// Delete removes key and reports whether the deletion succeeded.
	Delete(ctx context.Context, key string) (bool, error)
}

// Noop is a KeyValueCache that never stores anything.
// Get always reports absence, Set discards, Delete always succeeds.
type Noop struct{}

var _ KeyValueCache = Noop{}

func (Noop) Get(context.Context, string) (any, bool, error) {
	return nil, false, nil
}

func (Noop) Set(context.Context, string, any) error {
	return nil
}

func (Noop) Delete(context.Context, string) (bool, error) {
	return true, nil
}
