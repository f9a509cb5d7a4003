package repo

import (
	"context"
	"database/sql"

	"github.com/doctrail/doctrail/internal/model"
)

type TokenRepo struct {
	db *sql.DB
}

func NewTokenRepo(db *sql.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// Append persists one generated token. The composite primary key
// (fk_message_id, token_number) rejects duplicate numbering, so a retried
// append cannot corrupt the sequence.
func (r *TokenRepo) Append(ctx context.Context, token *model.Token) error {
	const query = `
		INSERT INTO token (fk_message_id, token_number, token_text, ctime)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, token.MessageID, token.TokenNumber, token.TokenText, token.Ctime)
	return err
}

func (r *TokenRepo) ListByMessage(ctx context.Context, messageID string) ([]model.Token, error) {
	const query = `
		SELECT fk_message_id, token_number, token_text, ctime
		FROM token
		WHERE fk_message_id = $1
		ORDER BY token_number
	`
	rows, err := r.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tokens := make([]model.Token, 0)
	for rows.Next() {
		var token model.Token
		if err := rows.Scan(&token.MessageID, &token.TokenNumber, &token.TokenText, &token.Ctime); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}
