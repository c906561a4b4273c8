package memo

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// ParseFunc prepares a document from a raw query string.
type ParseFunc[D any] func(query string) (D, error)

// Parser memoizes a ParseFunc by the exact query string.
// Successful results are stored and returned for every later call with an
// equal string; failures are returned to the caller and never stored.
// Concurrent first calls for the same string share one invocation.
type Parser[D any] struct {
	parse ParseFunc[D]
	store store
	group singleflight.Group
}

type store interface {
	get(key string) (any, bool)
	add(key string, value any)
	len() int
}

// New wraps parse. When size is zero or negative the cache is unbounded and
// never evicts; otherwise it keeps the size most recently used documents.
func New[D any](parse ParseFunc[D], size int) (*Parser[D], error) {
	if parse == nil {
		return nil, fmt.Errorf("memo: parse function is nil")
	}

	p := &Parser[D]{parse: parse}
	if size <= 0 {
		p.store = &mapStore{entries: make(map[string]any)}
		return p, nil
	}

	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("memo: failed to create lru cache: %w", err)
	}
	p.store = &lruStore{cache: c}

	return p, nil
}

// Parse returns the document for query, invoking the wrapped function only
// when no document has been stored for this exact string.
func (p *Parser[D]) Parse(query string) (D, error) {
	if v, ok := p.store.get(query); ok {
		return v.(D), nil
	}

	v, err, _ := p.group.Do(query, func() (any, error) {
		// another caller may have stored it between the miss and Do
		if v, ok := p.store.get(query); ok {
			return v, nil
		}

		doc, err := p.parse(query)
		if err != nil {
			return nil, err
		}
		p.store.add(query, doc)

		return doc, nil
	})
	if err != nil {
		var zero D
		return zero, err
	}

	return v.(D), nil
}

// Len reports the number of stored documents.
func (p *Parser[D]) Len() int {
	return p.store.len()
}

type mapStore struct {
	mu      sync.RWMutex
	entries map[string]any
}

func (s *mapStore) get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	return v, ok
}

func (s *mapStore) add(key string, value any) {
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
}

func (s *mapStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

type lruStore struct {
	cache *lru.Cache
}

func (s *lruStore) get(key string) (any, bool) {
	return s.cache.Get(key)
}

func (s *lruStore) add(key string, value any) {
	s.cache.Add(key, value)
}

func (s *lruStore) len() int {
	return s.cache.Len()
}
