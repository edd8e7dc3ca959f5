package token

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists refresh tokens in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Save upserts the ledger entry for a refresh token.
func (r *Repository) Save(ctx context.Context, rec RefreshRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, user_id, role, expires_at, is_revoked, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		ON CONFLICT (token) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			is_revoked = FALSE
	`, rec.Token, rec.UserID, rec.Role, rec.ExpiresAt, rec.CreatedAt)
	return err
}

// Get looks a token up; unknown tokens return (nil, nil).
func (r *Repository) Get(ctx context.Context, tokenStr string) (*RefreshRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT token, user_id, role, expires_at, is_revoked, created_at
		FROM refresh_tokens WHERE token = $1
	`, tokenStr)
	var rec RefreshRecord
	if err := row.Scan(&rec.Token, &rec.UserID, &rec.Role, &rec.ExpiresAt, &rec.IsRevoked, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Revoke marks a token revoked. Updating zero rows is fine; logout is
// idempotent and rows are retained for audit.
func (r *Repository) Revoke(ctx context.Context, tokenStr string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET is_revoked = TRUE WHERE token = $1`, tokenStr)
	return err
}
