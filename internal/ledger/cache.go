package ledger

import (
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

const defaultCacheSize = 4096

type cacheKey struct {
	sig        solana.Signature
	commitment submitter.Commitment
}

// statusCache remembers confirmed observations, evicting the oldest entry
// once full.
type statusCache struct {
	mu      sync.Mutex
	size    int
	entries map[cacheKey]submitter.Status
	order   []cacheKey
}

func newStatusCache(size int) *statusCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &statusCache{
		size:    size,
		entries: make(map[cacheKey]submitter.Status, size),
	}
}

func (c *statusCache) get(sig solana.Signature, commitment submitter.Commitment) (submitter.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.entries[cacheKey{sig, commitment}]
	return st, ok
}

func (c *statusCache) put(sig solana.Signature, commitment submitter.Commitment, st submitter.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{sig, commitment}
	if _, ok := c.entries[key]; ok {
		return
	}
	if len(c.order) >= c.size {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = st
	c.order = append(c.order, key)
}

func (c *statusCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
