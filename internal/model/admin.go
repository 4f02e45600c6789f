package model

import "time"

// Admin is a panel administrator account. Passwords are stored as bcrypt
// hashes; there is no hardcoded admin credential anywhere in the service.
type Admin struct {
	ID           int64      `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	PasswordHash string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	LastLogin    *time.Time `json:"lastLogin,omitempty" db:"last_login"`
	CreatedAt    time.Time  `json:"created" db:"created_at"`
}
