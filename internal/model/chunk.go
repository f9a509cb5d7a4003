package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

type DocumentChunk struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	DocID       string    `json:"doc_id"`
	ChunkText   string    `json:"chunk_text"`
	PageNumber  int       `json:"page_number"`
	BeginOffset int       `json:"begin_offset"`
	EndOffset   int       `json:"end_offset"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Ctime       int64     `json:"ctime"`
}

// ChunkID derives the chunk identity from its addressing tuple. Re-processing
// the same window always produces the same id, which makes chunk writes
// idempotent across crash-and-retry.
func ChunkID(docID string, pageNumber, beginOffset, endOffset int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d:%d", docID, pageNumber, beginOffset, endOffset)))
	return hex.EncodeToString(sum[:])
}

// ChunkResult is a chunk returned from a similarity query together with its
// cosine distance to the query vector.
type ChunkResult struct {
	Chunk    DocumentChunk `json:"chunk"`
	DocName  string        `json:"doc_name"`
	Distance float64       `json:"distance"`
}
