package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/recital-program/internal/favorites"
)

// PrefsRepo stores opaque per-session preference values (favorites, theme)
// in the session_prefs table.
type PrefsRepo struct{ DB *sql.DB }

func NewPrefsRepo(db *sql.DB) *PrefsRepo { return &PrefsRepo{DB: db} }

// For returns the favorites.Storage of one session subject.
func (r *PrefsRepo) For(subject string) favorites.Storage {
	return prefsStorage{repo: r, subject: subject}
}

func (r *PrefsRepo) get(ctx context.Context, subject, key string) ([]byte, bool, error) {
	var v []byte
	err := r.DB.QueryRowContext(ctx,
		"SELECT pref_value FROM session_prefs WHERE subject=? AND pref_key=? LIMIT 1",
		subject, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(v) == 0 {
		return nil, false, nil
	}
	return v, true, nil
}

const upsertPref = `INSERT INTO session_prefs (subject, pref_key, pref_value) VALUES (?,?,?)
	ON DUPLICATE KEY UPDATE pref_value=VALUES(pref_value), updated_at=CURRENT_TIMESTAMP`

func (r *PrefsRepo) set(ctx context.Context, subject, key string, value []byte) error {
	_, err := r.DB.ExecContext(ctx, upsertPref, subject, key, value)
	return err
}

// update reads the row with FOR UPDATE, applies fn and writes the result in
// one transaction, so writers on other instances queue behind each other.
// An empty placeholder row is created first, outside the transaction, so
// the lock is always a record lock; an empty value reads as unset.
func (r *PrefsRepo) update(ctx context.Context, subject, key string, fn func([]byte, bool) ([]byte, error)) error {
	if _, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO session_prefs (subject, pref_key, pref_value) VALUES (?,?,'')",
		subject, key); err != nil {
		return err
	}
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = r.updateOnce(ctx, subject, key, fn); !isDeadlock(err) {
			return err
		}
	}
	return err
}

func (r *PrefsRepo) updateOnce(ctx context.Context, subject, key string, fn func([]byte, bool) ([]byte, error)) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var old []byte
	ok := true
	err = tx.QueryRowContext(ctx,
		"SELECT pref_value FROM session_prefs WHERE subject=? AND pref_key=? FOR UPDATE",
		subject, key).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(old) == 0) {
		ok = false
	} else if err != nil {
		return err
	}
	next, err := fn(old, ok)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsertPref, subject, key, next); err != nil {
		return err
	}
	return tx.Commit()
}

type prefsStorage struct {
	repo    *PrefsRepo
	subject string
}

func (p prefsStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.repo.get(ctx, p.subject, key)
}

func (p prefsStorage) Set(ctx context.Context, key string, value []byte) error {
	return p.repo.set(ctx, p.subject, key, value)
}

func (p prefsStorage) Update(ctx context.Context, key string, fn func([]byte, bool) ([]byte, error)) error {
	return p.repo.update(ctx, p.subject, key, fn)
}
