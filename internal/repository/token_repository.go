package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/recital-program/internal/model"
)

// TokenRepo persists and validates refresh tokens.  Rows are keyed by the
// session subject so anonymous, password and Google sessions share it.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, s model.Session, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (subject, email, verified, anonymous, token_hash, expires_at) VALUES (?,?,?,?,?,?)",
		s.Subject, s.Email, s.Verified, s.Anonymous, tokenHash, exp)
	return err
}

// ValidateRefresh returns the session of a non-revoked, non-expired token.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (model.Session, error) {
	var (
		s         model.Session
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT subject, email, verified, anonymous, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&s.Subject, &s.Email, &s.Verified, &s.Anonymous, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, err
	}
	if revokedAt.Valid || time.Now().UTC().After(expiresAt) {
		return model.Session{}, ErrNotFound
	}
	return s, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// RevokeAllForSubject revokes every active token of a subject.
func (r *TokenRepo) RevokeAllForSubject(ctx context.Context, subject string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE subject=? AND revoked_at IS NULL",
		subject)
	return err
}
