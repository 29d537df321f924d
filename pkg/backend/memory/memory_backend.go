// Package memory holds in-process backends.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/erain9/arbsignal/pkg/core"
)

// MemoryBackend is a core.Deduper backed by a map with per-key expiry. It
// is safe for concurrent use.
type MemoryBackend struct {
	sync.Mutex
	seen map[string]time.Time // key -> expiry
	now  func() time.Time
}

// NewMemoryBackend creates a new instance of MemoryBackend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen records key for ttl and reports whether an unexpired record already
// existed. Expired entries are swept on every call.
func (b *MemoryBackend) Seen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	b.Lock()
	defer b.Unlock()

	now := b.now()
	for k, expiry := range b.seen {
		if !now.Before(expiry) {
			delete(b.seen, k)
		}
	}

	if _, ok := b.seen[key]; ok {
		return true, nil
	}
	b.seen[key] = now.Add(ttl)
	return false, nil
}

// Forget removes key.
func (b *MemoryBackend) Forget(_ context.Context, key string) error {
	b.Lock()
	defer b.Unlock()
	delete(b.seen, key)
	return nil
}

// Len returns the number of unexpired keys.
func (b *MemoryBackend) Len() int {
	b.Lock()
	defer b.Unlock()

	now := b.now()
	n := 0
	for _, expiry := range b.seen {
		if now.Before(expiry) {
			n++
		}
	}
	return n
}

// Ensure MemoryBackend implements core.Deduper
var _ core.Deduper = (*MemoryBackend)(nil)
