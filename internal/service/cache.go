package service

import (
	"sync"

	"github.com/corona10/goimagehash"

	"github.com/straja-ai/ulap/internal/classifier"
)

// predictionCache remembers classifier results for perceptually identical
// images. Oldest entries are evicted first. It is safe for concurrent use.
type predictionCache struct {
	maxEntries  int
	maxDistance int

	mu      sync.Mutex
	entries []cacheEntry
}

type cacheEntry struct {
	hash   *goimagehash.ImageHash
	result classifier.Result
}

func newPredictionCache(maxEntries, maxDistance int) *predictionCache {
	if maxEntries <= 0 {
		return nil
	}
	if maxDistance < 0 {
		maxDistance = 0
	}
	return &predictionCache{maxEntries: maxEntries, maxDistance: maxDistance}
}

func (c *predictionCache) get(h *goimagehash.ImageHash) (*classifier.Result, bool) {
	if c == nil || h == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.entries) - 1; i >= 0; i-- {
		dist, err := h.Distance(c.entries[i].hash)
		if err == nil && dist <= c.maxDistance {
			return cloneResult(&c.entries[i].result), true
		}
	}
	return nil, false
}

func (c *predictionCache) put(h *goimagehash.ImageHash, res *classifier.Result) {
	if c == nil || h == nil || res == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		copy(c.entries, c.entries[1:])
		c.entries = c.entries[:len(c.entries)-1]
	}
	c.entries = append(c.entries, cacheEntry{hash: h, result: *cloneResult(res)})
}

func (c *predictionCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func cloneResult(r *classifier.Result) *classifier.Result {
	out := *r
	out.Predictions = append([]float64(nil), r.Predictions...)
	return &out
}
