package repo

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/doctrail/doctrail/internal/model"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertDocumentChunks writes all chunks of one document in a single
// transaction: either every chunk becomes visible to queries or none does.
// Chunk ids are deterministic, so a redelivered task upserts instead of
// duplicating rows. Each chunk must carry the tenant of its parent document.
func (r *ChunkRepo) InsertDocumentChunks(ctx context.Context, doc *model.Document, chunks []model.DocumentChunk) error {
	for _, chunk := range chunks {
		if chunk.TenantID != doc.TenantID {
			return errs.Consistency("chunk %s tenant %q does not match document tenant %q", chunk.ID, chunk.TenantID, doc.TenantID)
		}
		if chunk.ChunkText == "" {
			return errs.Validation("chunk %s has empty text", chunk.ID)
		}
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO document_chunk (id, tenant_id, fk_doc_id, chunk_text, page_number, begin_offset, end_offset, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	for _, chunk := range chunks {
		if _, err := tx.ExecContext(ctx, query,
			chunk.ID,
			chunk.TenantID,
			chunk.DocID,
			chunk.ChunkText,
			chunk.PageNumber,
			chunk.BeginOffset,
			chunk.EndOffset,
			pgvector.NewVector(chunk.Embedding),
			chunk.Ctime,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// QueryByVector returns the k closest chunks for the tenant, ordered by
// increasing cosine distance. The tenant filter is part of the statement, not
// a post-filter, so other tenants' data can never surface.
func (r *ChunkRepo) QueryByVector(ctx context.Context, tenantID string, vector []float32, k int) ([]model.ChunkResult, error) {
	const query = `
		SELECT dc.id, dc.tenant_id, dc.fk_doc_id, dc.chunk_text, dc.page_number,
		       dc.begin_offset, dc.end_offset, dc.embedding <=> $2 AS distance, d.name
		FROM document_chunk dc
		INNER JOIN document d ON dc.fk_doc_id = d.id
		WHERE dc.tenant_id = $1
		ORDER BY dc.embedding <=> $2
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make([]model.ChunkResult, 0, k)
	for rows.Next() {
		var res model.ChunkResult
		if err := rows.Scan(
			&res.Chunk.ID,
			&res.Chunk.TenantID,
			&res.Chunk.DocID,
			&res.Chunk.ChunkText,
			&res.Chunk.PageNumber,
			&res.Chunk.BeginOffset,
			&res.Chunk.EndOffset,
			&res.Distance,
			&res.DocName,
		); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *ChunkRepo) CountByDocument(ctx context.Context, tenantID, docID string) (int, error) {
	const query = `SELECT COUNT(*) FROM document_chunk WHERE tenant_id = $1 AND fk_doc_id = $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, tenantID, docID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
