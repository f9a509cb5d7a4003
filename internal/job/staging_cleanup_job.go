package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/doctrail/doctrail/internal/filestore"
	"github.com/doctrail/doctrail/internal/model"
)

const stagingCleanupBatch = 200

type terminalDocLister interface {
	ListTerminalBefore(ctx context.Context, cutoff int64, limit uint) ([]model.Document, error)
}

// StagingCleanupJob removes staged raw uploads and extracted pages of
// documents that finished the pipeline. The staged copies only exist to feed
// the next stage; once a document is ready or failed they are dead weight.
type StagingCleanupJob struct {
	docs   terminalDocLister
	store  filestore.Store
	maxAge time.Duration
}

func NewStagingCleanupJob(docs terminalDocLister, store filestore.Store, maxAge time.Duration) *StagingCleanupJob {
	return &StagingCleanupJob{docs: docs, store: store, maxAge: maxAge}
}

func (j *StagingCleanupJob) Name() string {
	return "staging_cleanup"
}

func (j *StagingCleanupJob) Run(ctx context.Context) error {
	if j.docs == nil || j.store == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge).Unix()
	docs, err := j.docs.ListTerminalBefore(ctx, cutoff, stagingCleanupBatch)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	cleaned := 0
	for _, doc := range docs {
		for _, key := range []string{filestore.RawKey(doc.ID), filestore.PagesKey(doc.ID)} {
			if err := j.store.Delete(ctx, key); err != nil {
				logger.Warn("remove staged artifact failed",
					zap.String("document_id", doc.ID),
					zap.String("key", key),
					zap.Error(err))
				continue
			}
			cleaned++
		}
	}
	if cleaned > 0 {
		logger.Info("staging cleanup finished",
			zap.Int("documents", len(docs)),
			zap.Int("artifacts", cleaned))
	}
	return nil
}
