package model

import "time"

// User is an account row in the `users` table.  Accounts exist only for
// people who sign in with an email and password; anonymous and Google
// sessions are never persisted here.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique, lower-cased email address.
//	PasswordHash – bcrypt hashed password.
//	IsActive     – whether the account may sign in.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Session describes who is calling the API.  It is derived from the bearer
// token on each request.  Verified is set only when an identity provider
// vouched for Email; password sign-up never proves ownership of the address.
type Session struct {
	Subject   string `json:"subject"`
	Email     string `json:"email,omitempty"`
	Verified  bool   `json:"verified"`
	Anonymous bool   `json:"anonymous"`
}
