package extractor

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/doctrail/doctrail/internal/model"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type textExtractor struct{}

func init() {
	Register(".txt", &textExtractor{})
	Register(".text", &textExtractor{})
}

func (e *textExtractor) Name() string {
	return "text"
}

// Extract splits plain text into pages on form-feed characters. Line endings
// are normalized so chunk offsets stay stable across platforms.
func (e *textExtractor) Extract(ctx context.Context, data []byte) ([]model.Page, error) {
	_ = ctx
	if !utf8.Valid(data) {
		return nil, errs.Validation("document is not valid utf-8 text")
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	parts := strings.Split(content, "\f")
	pages := make([]model.Page, 0, len(parts))
	for _, part := range parts {
		text := strings.TrimRight(part, "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, model.Page{Page: len(pages), Text: text})
	}
	if len(pages) == 0 {
		return nil, errs.Validation("document contains no extractable text")
	}
	return pages, nil
}
