package extractor

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/doctrail/doctrail/internal/model"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

// Extractor turns raw document bytes into an ordered sequence of page texts.
// Implementations must be all-or-nothing: either every page comes back or an
// error does.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, data []byte) ([]model.Page, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Extractor{}
)

// Register binds a file extension (".txt") to an extractor.
func Register(ext string, e Extractor) {
	key := strings.ToLower(strings.TrimSpace(ext))
	if key == "" || e == nil {
		return
	}
	registryMu.Lock()
	registry[key] = e
	registryMu.Unlock()
}

// ForDocument picks an extractor by the document's file extension. An
// unsupported extension is a caller error, not a retryable one.
func ForDocument(name string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(name))
	registryMu.RLock()
	e := registry[ext]
	registryMu.RUnlock()
	if e == nil {
		return nil, errs.Validation("unsupported document type: %q", ext)
	}
	return e, nil
}
