package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/doctrail/doctrail/internal/ai"
	"github.com/doctrail/doctrail/internal/model"
)

// CacheStore is the persistent side of the cache, keyed by (model, text hash).
type CacheStore interface {
	Get(ctx context.Context, modelName, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

// WrapDBCache puts a persistent vector cache in front of an embedder. Each
// text in a batch is resolved independently; the provider is only called for
// the misses, and the batch order is preserved.
func WrapDBCache(next ai.Embedder, store CacheStore) ai.Embedder {
	if next == nil || store == nil {
		return next
	}
	return &dbEmbedder{next: next, store: store}
}

type dbEmbedder struct {
	next  ai.Embedder
	store CacheStore
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

func (d *dbEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		cached, ok, err := d.store.Get(ctx, d.next.ModelName(), contentHash(text))
		if err != nil {
			// A broken cache must not block embedding.
			logutil.GetLogger(ctx).Warn("embedding cache lookup failed", zap.Error(err))
		}
		if ok {
			vectors[i] = cached
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)", zap.Int("texts", len(texts)))
		return vectors, nil
	}

	computed, err := d.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		vectors[idx] = computed[j]
		item := &model.EmbeddingCache{
			ModelName:   d.next.ModelName(),
			ContentHash: contentHash(missTexts[j]),
			Embedding:   computed[j],
			Ctime:       time.Now().Unix(),
		}
		if err := d.store.Save(ctx, item); err != nil {
			logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
		}
	}
	return vectors, nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
