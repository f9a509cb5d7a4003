package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/doctrail/doctrail/internal/model"
	"github.com/doctrail/doctrail/internal/pkg/dbutil"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":        doc.ID,
		"tenant_id": doc.TenantID,
		"name":      doc.Name,
		"status":    doc.Status,
		"error":     doc.Error,
		"ctime":     doc.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("document", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return errs.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id":        docID,
		"tenant_id": tenantID,
	}
	sqlStr, args, err := builder.BuildSelect("document", where, []string{"id", "tenant_id", "name", "status", "error", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var doc model.Document
	if err := row.Scan(&doc.ID, &doc.TenantID, &doc.Name, &doc.Status, &doc.Error, &doc.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepo) List(ctx context.Context, tenantID string, limit, offset uint) ([]model.Document, error) {
	where := map[string]interface{}{
		"tenant_id": tenantID,
		"_orderby":  "ctime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	sqlStr, args, err := builder.BuildSelect("document", where, []string{"id", "tenant_id", "name", "status", "error", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		var doc model.Document
		if err := rows.Scan(&doc.ID, &doc.TenantID, &doc.Name, &doc.Status, &doc.Error, &doc.Ctime); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListTerminalBefore returns documents in a terminal status created before
// cutoff, across all tenants. The cleanup job uses it to sweep staged
// artifacts that the pipeline no longer needs.
func (r *DocumentRepo) ListTerminalBefore(ctx context.Context, cutoff int64, limit uint) ([]model.Document, error) {
	where := map[string]interface{}{
		"status in": []string{model.DocumentStatusReady, model.DocumentStatusFailed},
		"ctime <":   cutoff,
		"_orderby":  "ctime asc",
		"_limit":    []uint{0, limit},
	}
	sqlStr, args, err := builder.BuildSelect("document", where, []string{"id", "tenant_id", "name", "status", "error", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		var doc model.Document
		if err := rows.Scan(&doc.ID, &doc.TenantID, &doc.Name, &doc.Status, &doc.Error, &doc.Ctime); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateStatus records pipeline progress. A document already in failed state
// stays failed; that keeps the first recorded error authoritative when a
// redelivered task races a dead-letter.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, tenantID, docID, status, errText string) error {
	const query = `
		UPDATE document SET status = $1, error = $2
		WHERE id = $3 AND tenant_id = $4 AND status <> 'failed'
	`
	_, err := r.db.ExecContext(ctx, query, status, errText, docID, tenantID)
	return err
}

// Delete removes the document row; chunks and chunk_message rows go with it
// via cascading foreign keys, messages are left untouched.
func (r *DocumentRepo) Delete(ctx context.Context, tenantID, docID string) error {
	const query = `DELETE FROM document WHERE id = $1 AND tenant_id = $2`
	res, err := r.db.ExecContext(ctx, query, docID, tenantID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.ErrNotFound
	}
	return nil
}
