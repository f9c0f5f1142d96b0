package cache

import (
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// snapshotEntry wraps a cached value with its own expiry so a single
// otter cache can mix TTLs (credential lookups, budget snapshots)
// without needing separate cache instances to tune.
type snapshotEntry struct {
	data      []byte
	expiresAt time.Time
}

// Snapshots is the in-process W-TinyLFU cache for short-TTL read models
// that the hot path would otherwise fetch from Postgres or Redis on
// every request: the budget engine's 30s evaluation snapshot and
// credential fingerprint lookups. Routing rules are not cached here; the
// router reads them from the store on every request.
type Snapshots struct {
	cache *otter.Cache[string, snapshotEntry]
}

func NewSnapshots(maxSize int) (*Snapshots, error) {
	c, err := otter.New[string, snapshotEntry](&otter.Options[string, snapshotEntry]{
		MaximumSize: maxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}
	return &Snapshots{cache: c}, nil
}

func (s *Snapshots) Get(key string) ([]byte, bool) {
	e, ok := s.cache.GetIfPresent(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		s.cache.Invalidate(key)
		return nil, false
	}
	return e.data, true
}

func (s *Snapshots) Set(key string, val []byte, ttl time.Duration) {
	s.cache.Set(key, snapshotEntry{
		data:      val,
		expiresAt: time.Now().Add(ttl),
	})
}

func (s *Snapshots) Invalidate(key string) {
	s.cache.Invalidate(key)
}

func (s *Snapshots) InvalidateAll() {
	s.cache.InvalidateAll()
}
