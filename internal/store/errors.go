package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a key string collides with a live key.
	ErrDuplicateKey = errors.New("key already exists")

	// ErrDuplicateUsername is returned on admin/reseller username collisions.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrInsufficientCredits is returned when a debit would overdraw a
	// reseller's balance. The balance is left untouched.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrDeviceLimit is returned when a new device would exceed a key's
	// maxDevices cap. No device row is written.
	ErrDeviceLimit = errors.New("device limit reached")
)
