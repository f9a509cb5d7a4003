package embedder

import (
	"strings"
	"time"

	"github.com/doctrail/doctrail/internal/model"
)

// ChunkPages splits extracted page text into overlapping fixed-size windows.
// Offsets are character positions relative to the page text, and the chunk id
// is derived from the window address, so re-chunking the same pages yields
// identical rows.
func ChunkPages(doc *model.ExtractedDocument, size, overlap int) []model.DocumentChunk {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil
	}
	step := size - overlap
	now := time.Now().Unix()

	var chunks []model.DocumentChunk
	for _, page := range doc.Pages {
		runes := []rune(page.Text)
		for begin := 0; begin < len(runes); begin += step {
			end := begin + size
			if end > len(runes) {
				end = len(runes)
			}
			text := string(runes[begin:end])
			if strings.TrimSpace(text) != "" {
				chunks = append(chunks, model.DocumentChunk{
					ID:          model.ChunkID(doc.DocID, page.Page, begin, end),
					TenantID:    doc.TenantID,
					DocID:       doc.DocID,
					ChunkText:   text,
					PageNumber:  page.Page,
					BeginOffset: begin,
					EndOffset:   end,
					Ctime:       now,
				})
			}
			if end == len(runes) {
				break
			}
		}
	}
	return chunks
}
