package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/doctrail/doctrail/internal/config"
	"github.com/doctrail/doctrail/internal/filestore"
	"github.com/doctrail/doctrail/internal/model"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type documentStore interface {
	GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error)
	UpdateStatus(ctx context.Context, tenantID, docID, status, errText string) error
}

type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Worker consumes extraction tasks and turns staged raw documents into staged
// page text, then hands the document to the embedding stage.
type Worker struct {
	cfg          config.ExtractorConfig
	docs         documentStore
	store        filestore.Store
	pub          publisher
	embedSubject string
}

func NewWorker(cfg config.ExtractorConfig, docs documentStore, store filestore.Store, pub publisher, embedSubject string) *Worker {
	return &Worker{cfg: cfg, docs: docs, store: store, pub: pub, embedSubject: embedSubject}
}

// Handle processes one extraction task. Transient failures are retried with a
// fixed delay up to the configured maximum; exhaustion or a validation failure
// marks the document failed and surfaces a non-retryable error so the task is
// dead-lettered instead of redelivered.
func (w *Worker) Handle(ctx context.Context, payload []byte) error {
	var task model.ExtractTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return errs.Validation("decode extract task: %v", err)
	}
	if task.DocumentID == "" || task.TenantID == "" || task.Pointer == "" {
		return errs.Validation("extract task missing document_id/tenant_id/pointer")
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("document_id", task.DocumentID),
		zap.String("tenant_id", task.TenantID))

	doc, err := w.docs.GetByID(ctx, task.TenantID, task.DocumentID)
	if errs.IsNotFound(err) {
		// Deleted while the task was in flight; nothing left to extract.
		logger.Warn("document gone, dropping extract task")
		return nil
	}
	if err != nil {
		return errs.Transient(err)
	}
	if err := w.docs.UpdateStatus(ctx, task.TenantID, task.DocumentID, model.DocumentStatusExtracting, ""); err != nil {
		return errs.Transient(err)
	}

	attempts := w.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(w.cfg.RetryDelaySeconds) * time.Second
	for attempt := 1; ; attempt++ {
		err = w.process(ctx, &task, doc)
		if err == nil {
			logger.Info("document extracted", zap.String("name", doc.Name))
			return nil
		}
		if !errs.IsRetryable(err) || attempt >= attempts {
			break
		}
		logger.Warn("extraction attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	logger.Error("extraction failed", zap.Error(err))
	if serr := w.docs.UpdateStatus(ctx, task.TenantID, task.DocumentID, model.DocumentStatusFailed, err.Error()); serr != nil {
		logger.Error("mark document failed", zap.Error(serr))
	}
	if errs.IsRetryable(err) {
		// Retry budget spent; report a terminal error so the queue stops
		// redelivering.
		return fmt.Errorf("extraction failed after %d attempts: %v", attempts, err)
	}
	return err
}

func (w *Worker) process(ctx context.Context, task *model.ExtractTask, doc *model.Document) error {
	rc, err := w.store.Open(ctx, task.Pointer)
	if err != nil {
		if errs.IsNotFound(err) {
			return errs.Validation("staged document %s is missing", task.Pointer)
		}
		return err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return errs.Transient(err)
	}

	ext, err := ForDocument(doc.Name)
	if err != nil {
		return err
	}
	pages, err := ext.Extract(ctx, data)
	if err != nil {
		return err
	}

	extracted := model.ExtractedDocument{
		DocID:    doc.ID,
		TenantID: doc.TenantID,
		DocName:  doc.Name,
		Pages:    pages,
	}
	raw, err := json.Marshal(extracted)
	if err != nil {
		return err
	}
	pagesKey := filestore.PagesKey(doc.ID)
	if err := w.store.Save(ctx, pagesKey, bytes.NewReader(raw), int64(len(raw))); err != nil {
		return err
	}

	next := model.EmbedTask{DocumentID: doc.ID, TenantID: doc.TenantID, Pointer: pagesKey}
	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := w.pub.Publish(ctx, w.embedSubject, payload); err != nil {
		return err
	}
	if err := w.docs.UpdateStatus(ctx, doc.TenantID, doc.ID, model.DocumentStatusEmbedding, ""); err != nil {
		return errs.Transient(err)
	}
	return nil
}
