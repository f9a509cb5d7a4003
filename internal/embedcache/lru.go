package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/doctrail/doctrail/internal/ai"
)

// WrapLRUCache puts an in-process expiring LRU in front of an embedder.
// Stacked outside WrapDBCache it absorbs hot repeats without a DB round trip.
func WrapLRUCache(next ai.Embedder, size int, ttl time.Duration) ai.Embedder {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &lruEmbedder{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.Embedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func (l *lruEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if cached, ok := l.cache.Get(l.cacheKey(text)); ok {
			vectors[i] = cloneEmbedding(cached)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.Int("texts", len(texts)))
		return vectors, nil
	}

	computed, err := l.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		vectors[idx] = computed[j]
		l.cache.Add(l.cacheKey(missTexts[j]), cloneEmbedding(computed[j]))
	}
	return vectors, nil
}

func (l *lruEmbedder) cacheKey(text string) string {
	return "embed:" + l.next.ModelName() + ":" + contentHash(text)
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
