package filestore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/doctrail/doctrail/internal/config"
)

// Store holds staged document payloads between pipeline stages: the raw
// upload until extraction consumes it, and the extracted pages until
// embedding consumes them.
type Store interface {
	Save(ctx context.Context, key string, r io.ReadSeeker, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// RawKey names the staged raw upload for a document.
func RawKey(docID string) string {
	return "raw-" + docID
}

// PagesKey names the staged extraction output for a document.
func PagesKey(docID string) string {
	return "pages-" + docID + ".json"
}

func New(cfg config.FileStoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "local":
		return newLocalStore(cfg.Dir)
	case "s3":
		return newS3Store(cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported file store type: %s", cfg.Type)
	}
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("file key is required")
	}
	if strings.Contains(key, "/") || strings.Contains(key, "\\") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid file key: %s", key)
	}
	return nil
}
