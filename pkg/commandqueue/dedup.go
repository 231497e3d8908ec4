package commandqueue

import (
	"context"
	"sync"
	"time"
)

// dedupCache remembers request IDs for a TTL so redelivered inbound
// messages are handled once.
type dedupCache struct {
	entries map[string]time.Time
	ttl     time.Duration
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func newDedupCache(ctx context.Context, ttl time.Duration) *dedupCache {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}

	ctx, cancel := context.WithCancel(ctx)
	cache := &dedupCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

func (dc *dedupCache) Stop() {
	if dc.cancel != nil {
		dc.cancel()
	}
}

// MarkIfNew records requestID and reports whether it was unseen or expired.
func (dc *dedupCache) MarkIfNew(requestID string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	now := time.Now()
	if seen, exists := dc.entries[requestID]; exists && now.Sub(seen) <= dc.ttl {
		return false
	}
	dc.entries[requestID] = now
	return true
}

// cleanup periodically removes expired entries
func (dc *dedupCache) cleanup() {
	defer close(dc.done)

	interval := time.Minute
	if dc.ttl < interval {
		interval = dc.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-dc.ctx.Done():
			return
		case <-ticker.C:
			dc.mu.Lock()
			now := time.Now()
			for requestID, seen := range dc.entries {
				if now.Sub(seen) > dc.ttl {
					delete(dc.entries, requestID)
				}
			}
			dc.mu.Unlock()
		}
	}
}
