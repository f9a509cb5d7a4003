package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/doctrail/doctrail/internal/model"
	"github.com/doctrail/doctrail/internal/pkg/dbutil"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Create(ctx context.Context, msg *model.Message) error {
	data := map[string]interface{}{
		"id":         msg.ID,
		"tenant_id":  msg.TenantID,
		"query_id":   msg.QueryID,
		"query_text": msg.QueryText,
		"result":     msg.Result,
		"status":     msg.Status,
		"error":      msg.Error,
		"ctime":      msg.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("message", []map[string]interface{}{data})
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

func (r *MessageRepo) GetByQueryID(ctx context.Context, tenantID, queryID string) (*model.Message, error) {
	where := map[string]interface{}{
		"tenant_id": tenantID,
		"query_id":  queryID,
	}
	sqlStr, args, err := builder.BuildSelect("message", where, []string{"id", "tenant_id", "query_id", "query_text", "result", "status", "error", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var msg model.Message
	if err := row.Scan(&msg.ID, &msg.TenantID, &msg.QueryID, &msg.QueryText, &msg.Result, &msg.Status, &msg.Error, &msg.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepo) GetStatus(ctx context.Context, messageID string) (string, error) {
	const query = `SELECT status FROM message WHERE id = $1`
	var status string
	if err := r.db.QueryRowContext(ctx, query, messageID).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return "", errs.ErrNotFound
		}
		return "", err
	}
	return status, nil
}

// SetTerminal moves a pending message into a terminal status. The status
// guard makes terminal states sticky: a completed, failed or aborted message
// never transitions again.
func (r *MessageRepo) SetTerminal(ctx context.Context, messageID, status, result, errText string) error {
	if !model.IsTerminalMessageStatus(status) {
		return errs.Consistency("status %q is not terminal", status)
	}
	const query = `
		UPDATE message SET status = $1, result = $2, error = $3
		WHERE id = $4 AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, status, result, errText, messageID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.ErrConflict
	}
	return nil
}
