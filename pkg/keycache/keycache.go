package keycache

import (
	"context"
	"sync"
	"time"

	"github.com/playbeacon/beacon/pkg/storage"
	"github.com/playbeacon/beacon/pkg/types"
)

// entry is one cached key with its fetch time.
type entry struct {
	key       *types.ClusterKey
	fetchedAt time.Time
}

// Cache is a read-through TTL cache over a KeyStore. The hot ingest path
// calls Get on every heartbeat; the backing store is only consulted when
// the cached entry is older than the TTL. A store error inside the TTL
// extension serves the stale entry rather than failing the request.
type Cache struct {
	store storage.KeyStore
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]entry

	// Now is swappable for tests.
	Now func() time.Time
}

// New creates a key cache over the given store with the given TTL.
func New(store storage.KeyStore, ttl time.Duration) *Cache {
	return &Cache{
		store:   store,
		ttl:     ttl,
		entries: make(map[string]entry),
		Now:     time.Now,
	}
}

// Get returns the cluster key for a server. Fresh cache entries are
// served directly; expired entries trigger a store read. If the store
// read fails and a stale entry exists, the stale entry is returned so a
// flaky key store does not take down ingestion.
func (c *Cache) Get(ctx context.Context, serverID string) (*types.ClusterKey, error) {
	now := c.Now()

	c.mu.RLock()
	e, ok := c.entries[serverID]
	c.mu.RUnlock()

	if ok && now.Sub(e.fetchedAt) < c.ttl {
		return e.key, nil
	}

	key, err := c.store.GetKey(ctx, serverID)
	if err != nil {
		if ok {
			return e.key, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[serverID] = entry{key: key, fetchedAt: now}
	c.mu.Unlock()
	return key, nil
}

// Invalidate drops the cached entry for a server, forcing the next Get
// to hit the store. Called after a key rotation.
func (c *Cache) Invalidate(serverID string) {
	c.mu.Lock()
	delete(c.entries, serverID)
	c.mu.Unlock()
}
