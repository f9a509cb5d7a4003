package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/doctrail/doctrail/internal/ai"
	"github.com/doctrail/doctrail/internal/config"
	"github.com/doctrail/doctrail/internal/filestore"
	"github.com/doctrail/doctrail/internal/model"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

const memoryPollInterval = time.Second

type documentStore interface {
	GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error)
	UpdateStatus(ctx context.Context, tenantID, docID, status, errText string) error
}

type chunkStore interface {
	InsertDocumentChunks(ctx context.Context, doc *model.Document, chunks []model.DocumentChunk) error
}

// Worker consumes embedding tasks: reads staged pages, windows them into
// chunks, obtains vectors from the embedding provider in batches, and commits
// all chunks of a document in one transaction.
type Worker struct {
	cfg      config.EmbeddingConfig
	docs     documentStore
	chunks   chunkStore
	store    filestore.Store
	embedder ai.Embedder
	memory   MemoryMonitor
}

func NewWorker(cfg config.EmbeddingConfig, docs documentStore, chunks chunkStore, store filestore.Store, embedder ai.Embedder, memory MemoryMonitor) *Worker {
	if memory == nil {
		memory = SystemMemory()
	}
	return &Worker{cfg: cfg, docs: docs, chunks: chunks, store: store, embedder: embedder, memory: memory}
}

func (w *Worker) Handle(ctx context.Context, payload []byte) error {
	var task model.EmbedTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return errs.Validation("decode embed task: %v", err)
	}
	if task.DocumentID == "" || task.TenantID == "" || task.Pointer == "" {
		return errs.Validation("embed task missing document_id/tenant_id/pointer")
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("document_id", task.DocumentID),
		zap.String("tenant_id", task.TenantID))

	if err := w.waitForMemory(ctx, logger); err != nil {
		return err
	}

	doc, err := w.docs.GetByID(ctx, task.TenantID, task.DocumentID)
	if errs.IsNotFound(err) {
		logger.Warn("document gone, dropping embed task")
		return nil
	}
	if err != nil {
		return errs.Transient(err)
	}

	err = w.process(ctx, logger, &task, doc)
	if err == nil {
		return nil
	}
	if errs.IsRetryable(err) {
		// The provider retry budget lives in embedAll; anything still
		// retryable here is infrastructure trouble the queue should
		// redeliver.
		return err
	}
	logger.Error("embedding failed", zap.Error(err))
	if serr := w.docs.UpdateStatus(ctx, task.TenantID, task.DocumentID, model.DocumentStatusFailed, err.Error()); serr != nil {
		logger.Error("mark document failed", zap.Error(serr))
	}
	return err
}

func (w *Worker) process(ctx context.Context, logger *zap.Logger, task *model.EmbedTask, doc *model.Document) error {
	rc, err := w.store.Open(ctx, task.Pointer)
	if err != nil {
		if errs.IsNotFound(err) {
			return errs.Validation("staged pages %s are missing", task.Pointer)
		}
		return err
	}
	var extracted model.ExtractedDocument
	err = json.NewDecoder(rc).Decode(&extracted)
	rc.Close()
	if err != nil {
		return errs.Validation("decode staged pages: %v", err)
	}
	if extracted.TenantID != doc.TenantID || extracted.DocID != doc.ID {
		return errs.Consistency("staged pages belong to %s/%s, task is for %s/%s",
			extracted.TenantID, extracted.DocID, doc.TenantID, doc.ID)
	}

	chunks := ChunkPages(&extracted, w.cfg.ChunkSize, w.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return errs.Validation("document produced no chunks")
	}

	if err := w.embedAll(ctx, logger, chunks); err != nil {
		return err
	}
	if err := w.chunks.InsertDocumentChunks(ctx, doc, chunks); err != nil {
		if errs.IsConsistency(err) || errs.IsValidation(err) {
			return err
		}
		return errs.Transient(err)
	}
	if err := w.docs.UpdateStatus(ctx, doc.TenantID, doc.ID, model.DocumentStatusReady, ""); err != nil {
		return errs.Transient(err)
	}
	logger.Info("document embedded", zap.Int("chunks", len(chunks)))
	return nil
}

// embedAll fills in the vectors for every chunk before anything is written,
// so a provider failure never leaves a partially indexed document. Each batch
// gets bounded retries with exponential backoff.
func (w *Worker) embedAll(ctx context.Context, logger *zap.Logger, chunks []model.DocumentChunk) error {
	batchSize := w.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	for begin := 0; begin < len(chunks); begin += batchSize {
		end := begin + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-begin)
		for _, c := range chunks[begin:end] {
			texts = append(texts, c.ChunkText)
		}
		vectors, err := w.embedBatchWithRetry(ctx, logger, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return errs.Provider(fmt.Errorf("expected %d vectors, got %d", len(texts), len(vectors)))
		}
		for i := range vectors {
			chunks[begin+i].Embedding = vectors[i]
		}
	}
	return nil
}

func (w *Worker) embedBatchWithRetry(ctx context.Context, logger *zap.Logger, texts []string) ([][]float32, error) {
	attempts := w.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(w.cfg.RetryDelaySecond) * time.Second
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		var vectors [][]float32
		vectors, err = w.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		logger.Warn("embed batch attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %v", attempts, err)
}

// waitForMemory blocks while system memory sits above the configured ceiling.
// Backpressure pauses intake instead of failing work.
func (w *Worker) waitForMemory(ctx context.Context, logger *zap.Logger) error {
	ceiling := float64(w.cfg.MaxMemoryPercent)
	if ceiling <= 0 {
		return nil
	}
	for {
		used, err := w.memory.UsedPercent(ctx)
		if err != nil {
			logger.Warn("memory probe failed", zap.Error(err))
			return nil
		}
		if used <= ceiling {
			return nil
		}
		logger.Warn("memory above ceiling, pausing intake",
			zap.Float64("used_percent", used),
			zap.Float64("ceiling", ceiling))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(memoryPollInterval):
		}
	}
}
