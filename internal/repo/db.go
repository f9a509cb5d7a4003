package repo

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/doctrail/doctrail/internal/config"
)

func Open(cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// ApplyMigrations creates the schema. Statements are idempotent so every
// process role can run them at startup. The HNSW index parameters come from
// config: m bounds the per-node neighbor count, ef_construction the build
// effort, both trading recall against build cost.
func ApplyMigrations(db *sql.DB, cfg config.DBConfig) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS document (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			error TEXT NOT NULL DEFAULT '',
			ctime BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_document_tenant ON document (tenant_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunk (
			id CHAR(64) PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			fk_doc_id UUID NOT NULL REFERENCES document (id) ON DELETE CASCADE,
			chunk_text TEXT NOT NULL CHECK (chunk_text <> ''),
			page_number INT NOT NULL CHECK (page_number >= 0),
			begin_offset INT NOT NULL CHECK (begin_offset >= 0),
			end_offset INT NOT NULL CHECK (end_offset >= begin_offset),
			embedding VECTOR(%d) NOT NULL,
			ctime BIGINT NOT NULL
		)`, cfg.Dimension),
		`CREATE INDEX IF NOT EXISTS idx_document_chunk_doc ON document_chunk (fk_doc_id)`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunk_tenant ON document_chunk (tenant_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_document_chunk_embedding ON document_chunk
			USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)`,
			cfg.HNSWM, cfg.HNSWEfConstruc),
		`CREATE TABLE IF NOT EXISTS message (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			query_id TEXT NOT NULL,
			query_text TEXT NOT NULL,
			result TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			error TEXT NOT NULL DEFAULT '',
			ctime BIGINT NOT NULL,
			UNIQUE (tenant_id, query_id)
		)`,
		`CREATE TABLE IF NOT EXISTS token (
			fk_message_id UUID NOT NULL REFERENCES message (id) ON DELETE CASCADE,
			token_number INT NOT NULL CHECK (token_number >= 0),
			token_text TEXT NOT NULL,
			ctime BIGINT NOT NULL,
			PRIMARY KEY (fk_message_id, token_number)
		)`,
		`CREATE TABLE IF NOT EXISTS chunk_message (
			fk_chunk_id CHAR(64) NOT NULL REFERENCES document_chunk (id) ON DELETE CASCADE,
			fk_message_id UUID NOT NULL REFERENCES message (id) ON DELETE CASCADE,
			PRIMARY KEY (fk_chunk_id, fk_message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS embedding_cache (
			model_name TEXT NOT NULL,
			content_hash CHAR(64) NOT NULL,
			embedding VECTOR NOT NULL,
			ctime BIGINT NOT NULL,
			PRIMARY KEY (model_name, content_hash)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
