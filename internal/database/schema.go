package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by Migrate.  Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		subject    VARCHAR(128) NOT NULL,
		email      VARCHAR(255) NOT NULL DEFAULT '',
		verified   BOOLEAN NOT NULL DEFAULT FALSE,
		anonymous  BOOLEAN NOT NULL DEFAULT FALSE,
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_refresh_subject (subject)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS session_prefs (
		subject    VARCHAR(128) NOT NULL,
		pref_key   VARCHAR(64) NOT NULL,
		pref_value MEDIUMBLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (subject, pref_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables the service needs when they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
