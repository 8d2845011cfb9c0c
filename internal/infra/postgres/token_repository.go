package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"quotepdf/internal/tokens"
)

const (
	ddlTokens = `CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		rate_limit INTEGER NOT NULL DEFAULT 60,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		comment TEXT
	);`
	ddlTokensIndex = `CREATE INDEX IF NOT EXISTS idx_tokens_created_at ON tokens (created_at);`
	selectTokens   = `SELECT token, rate_limit FROM tokens;`
)

// TokenRepository reads API tokens and their rate limits from Postgres.
type TokenRepository struct {
	DB  *DB
	DSN string
}

// NewTokenRepository returns a repository reading from dsn through db.
func NewTokenRepository(db *DB, dsn string) *TokenRepository {
	return &TokenRepository{DB: db, DSN: dsn}
}

// EnsureSchema creates the tokens table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, ddlTokens); err != nil {
		return fmt.Errorf("create tokens table: %w", err)
	}
	if _, err := db.ExecContext(ctx, ddlTokensIndex); err != nil {
		return fmt.Errorf("create tokens index: %w", err)
	}
	return nil
}

// LoadTokens ensures the schema and returns every token.
func (r *TokenRepository) LoadTokens(ctx context.Context) (map[string]tokens.Entry, error) {
	db, err := r.DB.Get(r.DSN)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, selectTokens)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	out := make(map[string]tokens.Entry)
	for rows.Next() {
		var token string
		var limit int
		if err := rows.Scan(&token, &limit); err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		out[token] = tokens.Entry{RateLimit: limit}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	return out, nil
}
