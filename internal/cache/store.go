package cache

import (
	gocache "github.com/patrickmn/go-cache"
)

// Store is a concurrency-safe, unbounded response cache.
//
// Lookups take a shared lock and never block each other; inserts are
// exclusive with all other access.
type Store struct {
	items *gocache.Cache
}

// New returns an empty Store.
func New() *Store {
	// A non-positive cleanup interval disables go-cache's janitor goroutine;
	// nothing ever expires.
	return &Store{items: gocache.New(gocache.NoExpiration, 0)}
}

// Lookup returns the cached response for key. The returned slice is shared
// with the Store and must not be modified.
func (s *Store) Lookup(key string) ([]byte, bool) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, false
	}
	resp, ok := v.([]byte)
	return resp, ok
}

// Insert stores resp under key unless an entry already exists. It reports
// whether resp was stored. The Store takes ownership of resp.
func (s *Store) Insert(key string, resp []byte) bool {
	return s.items.Add(key, resp, gocache.NoExpiration) == nil
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	return s.items.ItemCount()
}

// snapshot copies the current entries out from under the lock.
func (s *Store) snapshot() map[string][]byte {
	items := s.items.Items()
	out := make(map[string][]byte, len(items))
	for k, it := range items {
		if resp, ok := it.Object.([]byte); ok {
			out[k] = resp
		}
	}
	return out
}
