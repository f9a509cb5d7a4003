package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/doctrail/doctrail/internal/config"
	"github.com/doctrail/doctrail/internal/filestore"
	"github.com/doctrail/doctrail/internal/model"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type fakeDocStore struct {
	docs     map[string]*model.Document
	statuses []string
	lastErr  string
}

func (f *fakeDocStore) GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	doc, ok := f.docs[docID]
	if !ok || doc.TenantID != tenantID {
		return nil, errs.ErrNotFound
	}
	return doc, nil
}

func (f *fakeDocStore) UpdateStatus(ctx context.Context, tenantID, docID, status, errText string) error {
	f.statuses = append(f.statuses, status)
	f.lastErr = errText
	return nil
}

type fakeChunkStore struct {
	inserted [][]model.DocumentChunk
}

func (f *fakeChunkStore) InsertDocumentChunks(ctx context.Context, doc *model.Document, chunks []model.DocumentChunk) error {
	f.inserted = append(f.inserted, chunks)
	return nil
}

type scriptedEmbedder struct {
	calls    int
	failures int
	batches  [][]string
}

func (s *scriptedEmbedder) ModelName() string { return "test-model" }

func (s *scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errs.Provider(context.DeadlineExceeded)
	}
	s.batches = append(s.batches, texts)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 2, 3}
	}
	return vectors, nil
}

type fixedMemory struct{ percent float64 }

func (f fixedMemory) UsedPercent(ctx context.Context) (float64, error) { return f.percent, nil }

type workerFixture struct {
	worker   *Worker
	docs     *fakeDocStore
	chunks   *fakeChunkStore
	embedder *scriptedEmbedder
	store    filestore.Store
}

func newFixture(t *testing.T, cfg config.EmbeddingConfig, failures int) *workerFixture {
	t.Helper()
	store, err := filestore.New(config.FileStoreConfig{Type: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	docs := &fakeDocStore{docs: map[string]*model.Document{
		"doc-1": {ID: "doc-1", TenantID: "acme", Name: "policy.txt", Status: model.DocumentStatusEmbedding},
	}}
	chunks := &fakeChunkStore{}
	emb := &scriptedEmbedder{failures: failures}
	worker := NewWorker(cfg, docs, chunks, store, emb, fixedMemory{percent: 10})
	return &workerFixture{worker: worker, docs: docs, chunks: chunks, embedder: emb, store: store}
}

func stagePages(t *testing.T, store filestore.Store, extracted *model.ExtractedDocument) string {
	t.Helper()
	raw, err := json.Marshal(extracted)
	require.NoError(t, err)
	key := filestore.PagesKey(extracted.DocID)
	require.NoError(t, store.Save(context.Background(), key, bytes.NewReader(raw), int64(len(raw))))
	return key
}

func embedTask(t *testing.T, pointer string) []byte {
	t.Helper()
	raw, err := json.Marshal(model.EmbedTask{DocumentID: "doc-1", TenantID: "acme", Pointer: pointer})
	require.NoError(t, err)
	return raw
}

func baseConfig() config.EmbeddingConfig {
	return config.EmbeddingConfig{
		ChunkSize:        1000,
		ChunkOverlap:     10,
		BatchSize:        64,
		MaxRetries:       3,
		RetryDelaySecond: 0,
		MaxMemoryPercent: 85,
	}
}

func TestWorkerEmbedsAndCommitsChunks(t *testing.T) {
	fx := newFixture(t, baseConfig(), 0)
	key := stagePages(t, fx.store, extractedDoc("refunds are issued within 30 days", "digital goods are final sale"))

	require.NoError(t, fx.worker.Handle(context.Background(), embedTask(t, key)))

	require.Len(t, fx.chunks.inserted, 1)
	committed := fx.chunks.inserted[0]
	require.Len(t, committed, 2)
	for _, c := range committed {
		require.Equal(t, []float32{1, 2, 3}, c.Embedding)
		require.Equal(t, "acme", c.TenantID)
	}
	require.Equal(t, []string{model.DocumentStatusReady}, fx.docs.statuses)
}

func TestWorkerRespectsBatchSize(t *testing.T) {
	cfg := baseConfig()
	cfg.BatchSize = 1
	fx := newFixture(t, cfg, 0)
	key := stagePages(t, fx.store, extractedDoc("page one text", "page two text", "page three text"))

	require.NoError(t, fx.worker.Handle(context.Background(), embedTask(t, key)))
	require.Len(t, fx.embedder.batches, 3)
	for _, batch := range fx.embedder.batches {
		require.Len(t, batch, 1)
	}
}

func TestWorkerProviderExhaustionFailsDocumentWithoutCommit(t *testing.T) {
	// Provider rejects every attempt within the retry budget of 3.
	fx := newFixture(t, baseConfig(), 3)
	key := stagePages(t, fx.store, extractedDoc("some content"))

	err := fx.worker.Handle(context.Background(), embedTask(t, key))
	require.Error(t, err)
	require.False(t, errs.IsRetryable(err))
	require.Equal(t, 3, fx.embedder.calls)
	require.Empty(t, fx.chunks.inserted)
	require.Equal(t, []string{model.DocumentStatusFailed}, fx.docs.statuses)
	require.NotEmpty(t, fx.docs.lastErr)
}

func TestWorkerRetriesTransientProviderThenSucceeds(t *testing.T) {
	fx := newFixture(t, baseConfig(), 2)
	key := stagePages(t, fx.store, extractedDoc("some content"))

	require.NoError(t, fx.worker.Handle(context.Background(), embedTask(t, key)))
	require.Equal(t, 3, fx.embedder.calls)
	require.Len(t, fx.chunks.inserted, 1)
	require.Equal(t, []string{model.DocumentStatusReady}, fx.docs.statuses)
}

func TestWorkerTenantMismatchIsConsistencyViolation(t *testing.T) {
	fx := newFixture(t, baseConfig(), 0)
	foreign := extractedDoc("stolen pages")
	foreign.TenantID = "rival"
	key := stagePages(t, fx.store, foreign)

	err := fx.worker.Handle(context.Background(), embedTask(t, key))
	require.ErrorIs(t, err, errs.ErrConsistency)
	require.Empty(t, fx.chunks.inserted)
	require.Equal(t, []string{model.DocumentStatusFailed}, fx.docs.statuses)
}

func TestWorkerMissingPagesFailsDocument(t *testing.T) {
	fx := newFixture(t, baseConfig(), 0)
	err := fx.worker.Handle(context.Background(), embedTask(t, "pages-doc-1.json"))
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Equal(t, []string{model.DocumentStatusFailed}, fx.docs.statuses)
}

func TestWorkerDropsTaskForDeletedDocument(t *testing.T) {
	fx := newFixture(t, baseConfig(), 0)
	raw, _ := json.Marshal(model.EmbedTask{DocumentID: "doc-gone", TenantID: "acme", Pointer: "pages-doc-gone.json"})
	require.NoError(t, fx.worker.Handle(context.Background(), raw))
	require.Empty(t, fx.docs.statuses)
}
