package service

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/doctrail/doctrail/internal/filestore"
	"github.com/doctrail/doctrail/internal/model"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type documentWriter interface {
	Create(ctx context.Context, doc *model.Document) error
	UpdateStatus(ctx context.Context, tenantID, docID, status, errText string) error
}

type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// IngestService is the document entry point: it validates the upload, stages
// the raw bytes, records the document, and enqueues extraction.
type IngestService struct {
	docs           documentWriter
	store          filestore.Store
	pub            publisher
	extractSubject string
	maxFileBytes   int64
}

func NewIngestService(docs documentWriter, store filestore.Store, pub publisher, extractSubject string, maxFileSizeMB int) *IngestService {
	return &IngestService{
		docs:           docs,
		store:          store,
		pub:            pub,
		extractSubject: extractSubject,
		maxFileBytes:   int64(maxFileSizeMB) * 1024 * 1024,
	}
}

func (s *IngestService) Submit(ctx context.Context, tenantID, name string, file io.ReadSeeker, size int64) (*model.Document, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errs.Validation("tenant id is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errs.Validation("document name is required")
	}
	if size <= 0 {
		return nil, errs.Validation("document is empty")
	}
	if s.maxFileBytes > 0 && size > s.maxFileBytes {
		return nil, errs.Validation("document exceeds the %d byte limit", s.maxFileBytes)
	}

	doc := &model.Document{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
		Status:   model.DocumentStatusPending,
		Ctime:    time.Now().Unix(),
	}
	if err := s.store.Save(ctx, filestore.RawKey(doc.ID), file, size); err != nil {
		return nil, err
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if errs.IsConflict(err) {
			// Resubmitting an existing document is a caller error, never
			// a silent merge.
			return nil, errs.Validation("document %s already exists", doc.ID)
		}
		return nil, err
	}

	task := model.ExtractTask{DocumentID: doc.ID, TenantID: tenantID, Pointer: filestore.RawKey(doc.ID)}
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	if err := s.pub.Publish(ctx, s.extractSubject, payload); err != nil {
		logutil.GetLogger(ctx).Error("enqueue extraction failed",
			zap.String("document_id", doc.ID),
			zap.Error(err))
		if serr := s.docs.UpdateStatus(ctx, tenantID, doc.ID, model.DocumentStatusFailed, "failed to enqueue extraction"); serr != nil {
			logutil.GetLogger(ctx).Error("mark document failed", zap.Error(serr))
		}
		return nil, err
	}
	logutil.GetLogger(ctx).Info("document submitted",
		zap.String("document_id", doc.ID),
		zap.String("tenant_id", tenantID),
		zap.String("name", name),
		zap.Int64("size", size))
	return doc, nil
}
