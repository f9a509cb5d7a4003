package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type cacheCleaner interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

// EmbeddingCacheCleanupJob expires cached vectors nobody asked for recently.
type EmbeddingCacheCleanupJob struct {
	cache      cacheCleaner
	maxAgeDays int
}

func NewEmbeddingCacheCleanupJob(cache cacheCleaner, maxAgeDays int) *EmbeddingCacheCleanupJob {
	return &EmbeddingCacheCleanupJob{cache: cache, maxAgeDays: maxAgeDays}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	if j.cache == nil {
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
	removed, err := j.cache.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("expired cached embeddings", zap.Int64("removed", removed))
	}
	return nil
}
