package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/doctrail/doctrail/internal/ai"
	"github.com/doctrail/doctrail/internal/model"
)

type countingEmbedder struct {
	calls   int
	batches [][]string
}

func (c *countingEmbedder) ModelName() string { return "test-model" }

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.batches = append(c.batches, texts)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i]))}
	}
	return vectors, nil
}

type memCacheStore struct {
	items map[string][]float32
}

func (m *memCacheStore) Get(ctx context.Context, modelName, contentHash string) ([]float32, bool, error) {
	v, ok := m.items[modelName+":"+contentHash]
	return v, ok, nil
}

func (m *memCacheStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	m.items[item.ModelName+":"+item.ContentHash] = item.Embedding
	return nil
}

func TestDBCacheOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{}
	store := &memCacheStore{items: map[string][]float32{}}
	cached := WrapDBCache(inner, store)
	ctx := context.Background()

	first, err := cached.EmbedBatch(ctx, []string{"aa", "bbb"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.Equal(t, [][]float32{{2}, {3}}, first)

	// Second batch shares one text; only the new one reaches the provider.
	second, err := cached.EmbedBatch(ctx, []string{"aa", "cccc"})
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
	require.Equal(t, []string{"cccc"}, inner.batches[1])
	require.Equal(t, [][]float32{{2}, {4}}, second)

	// Fully cached batch never calls the provider.
	_, err = cached.EmbedBatch(ctx, []string{"bbb", "cccc"})
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestLRUCachePreservesOrder(t *testing.T) {
	inner := &countingEmbedder{}
	cached := WrapLRUCache(inner, 16, time.Minute)
	ctx := context.Background()

	_, err := cached.EmbedBatch(ctx, []string{"x"})
	require.NoError(t, err)

	out, err := cached.EmbedBatch(ctx, []string{"longer", "x"})
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
	require.Equal(t, []string{"longer"}, inner.batches[1])
	require.Equal(t, [][]float32{{6}, {1}}, out)
}

func TestWrapDisabledReturnsInner(t *testing.T) {
	inner := &countingEmbedder{}
	require.Equal(t, ai.Embedder(inner), WrapLRUCache(inner, 0, time.Minute))
	require.Equal(t, ai.Embedder(inner), WrapDBCache(inner, nil))
}
