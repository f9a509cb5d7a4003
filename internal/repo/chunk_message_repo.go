package repo

import (
	"context"
	"database/sql"

	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type ChunkMessageRepo struct {
	db *sql.DB
}

func NewChunkMessageRepo(db *sql.DB) *ChunkMessageRepo {
	return &ChunkMessageRepo{db: db}
}

// Link records the chunks cited as evidence for a message. The insert is
// guarded by a tenant-equality join: a chunk and message from different
// tenants produce zero rows, which is surfaced as a consistency violation
// rather than silently written.
func (r *ChunkMessageRepo) Link(ctx context.Context, messageID string, chunkIDs []string) error {
	const query = `
		INSERT INTO chunk_message (fk_chunk_id, fk_message_id)
		SELECT dc.id, m.id
		FROM document_chunk dc, message m
		WHERE dc.id = $1 AND m.id = $2 AND dc.tenant_id = m.tenant_id
		ON CONFLICT (fk_chunk_id, fk_message_id) DO UPDATE SET fk_chunk_id = EXCLUDED.fk_chunk_id
	`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, chunkID := range chunkIDs {
		res, err := tx.ExecContext(ctx, query, chunkID, messageID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errs.Consistency("chunk %s and message %s do not share a tenant", chunkID, messageID)
		}
	}
	return tx.Commit()
}

func (r *ChunkMessageRepo) ListChunkIDs(ctx context.Context, messageID string) ([]string, error) {
	const query = `SELECT fk_chunk_id FROM chunk_message WHERE fk_message_id = $1`
	rows, err := r.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
