// Package repository holds the MySQL-backed persistence for accounts,
// refresh tokens and per-session preferences.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no live row.  Handlers
// translate it into a 401 for credentials and refresh tokens.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when registering an email that is taken.
var ErrEmailExists = errors.New("email already exists")

// isDuplicate reports MySQL error 1062 (duplicate entry).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return false
}

// isDeadlock reports MySQL error 1213, raised when two transactions take
// the same gap lock before inserting.
func isDeadlock(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1213
	}
	return false
}
