package model

import "time"

// Reseller is a credit-holding account permitted to create keys against its
// own balance. Passwords are stored as bcrypt hashes.
type Reseller struct {
	ID           int64      `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	PasswordHash string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	Credits      int64      `json:"credits" db:"credits"`
	LastLogin    *time.Time `json:"lastLogin,omitempty" db:"last_login"`
	CreatedAt    time.Time  `json:"created" db:"created_at"`
}
