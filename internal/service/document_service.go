package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/doctrail/doctrail/internal/filestore"
	"github.com/doctrail/doctrail/internal/model"
)

type documentReader interface {
	GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error)
	List(ctx context.Context, tenantID string, limit, offset uint) ([]model.Document, error)
	Delete(ctx context.Context, tenantID, docID string) error
}

type chunkCounter interface {
	CountByDocument(ctx context.Context, tenantID, docID string) (int, error)
}

// DocumentService serves document reads and the explicit delete, the only way
// a document and its chunks leave the system.
type DocumentService struct {
	docs   documentReader
	chunks chunkCounter
	store  filestore.Store
}

func NewDocumentService(docs documentReader, chunks chunkCounter, store filestore.Store) *DocumentService {
	return &DocumentService{docs: docs, chunks: chunks, store: store}
}

// DocumentDetail is a document plus its committed chunk count.
type DocumentDetail struct {
	Document   *model.Document `json:"document"`
	ChunkCount int             `json:"chunk_count"`
}

func (s *DocumentService) Get(ctx context.Context, tenantID, docID string) (*DocumentDetail, error) {
	doc, err := s.docs.GetByID(ctx, tenantID, docID)
	if err != nil {
		return nil, err
	}
	count, err := s.chunks.CountByDocument(ctx, tenantID, docID)
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{Document: doc, ChunkCount: count}, nil
}

func (s *DocumentService) List(ctx context.Context, tenantID string, limit, offset uint) ([]model.Document, error) {
	return s.docs.List(ctx, tenantID, limit, offset)
}

// Delete removes the document row, which cascades to chunks and their
// chunk_message links. Messages that cited the chunks outlive the evidence.
// Staged artifacts are removed best-effort; the cleanup job sweeps leftovers.
func (s *DocumentService) Delete(ctx context.Context, tenantID, docID string) error {
	if err := s.docs.Delete(ctx, tenantID, docID); err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", docID))
	for _, key := range []string{filestore.RawKey(docID), filestore.PagesKey(docID)} {
		if err := s.store.Delete(ctx, key); err != nil {
			logger.Warn("remove staged artifact failed", zap.String("key", key), zap.Error(err))
		}
	}
	logger.Info("document deleted", zap.String("tenant_id", tenantID))
	return nil
}
