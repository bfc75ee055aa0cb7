// Package embeddings provides a bounded in-memory cache in front of an
// embeddings service, keyed by the xxh3 hash of the text.
package embeddings

import (
	"context"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/simon020286/go-transforms/models"
)

type entry struct {
	text   string
	vector []float32
}

// CachingService memoizes the vectors of recently seen texts. When full, the
// oldest entry is evicted.
type CachingService struct {
	svc  models.EmbeddingsService
	size int

	mu      sync.Mutex
	entries map[uint64]entry
	order   []uint64
}

func NewCachingService(svc models.EmbeddingsService, size int) *CachingService {
	return &CachingService{
		svc:     svc,
		size:    size,
		entries: make(map[uint64]entry, size),
	}
}

func (c *CachingService) ComputeEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.Lock()
	for i, text := range texts {
		if e, ok := c.entries[xxh3.HashString(text)]; ok && e.text == text {
			out[i] = e.vector
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}
	// the lock is not held during the call
	vectors, err := c.svc.ComputeEmbeddings(ctx, missing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for j, v := range vectors {
		if j >= len(missingIdx) {
			break
		}
		out[missingIdx[j]] = v
		c.storeLocked(missing[j], v)
	}
	return out, nil
}

func (c *CachingService) storeLocked(text string, vector []float32) {
	if c.size <= 0 {
		return
	}
	key := xxh3.HashString(text)
	if _, ok := c.entries[key]; !ok {
		if len(c.order) >= c.size {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = entry{text: text, vector: vector}
}

// Len returns the number of cached texts
func (c *CachingService) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CachingProvider wraps every service of a provider in a CachingService
type CachingProvider struct {
	provider models.EmbeddingsProvider
	size     int
}

func NewCachingProvider(provider models.EmbeddingsProvider, size int) *CachingProvider {
	return &CachingProvider{provider: provider, size: size}
}

func (p *CachingProvider) EmbeddingsService(model string, options map[string]any) (models.EmbeddingsService, error) {
	svc, err := p.provider.EmbeddingsService(model, options)
	if err != nil {
		return nil, err
	}
	return NewCachingService(svc, p.size), nil
}
