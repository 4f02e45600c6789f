package store

import (
	"context"
	"fmt"
	"time"

	"github.com/keygate/keygate/internal/model"
)

// RecordDevice binds deviceID to the key, enforcing the key's maxDevices cap.
// Returns (false, nil) when the device is already bound (idempotent
// re-validation), (true, nil) when a new binding was written, and
// ErrDeviceLimit when the cap is full, in which case nothing is written.
//
// The check and insert run in one transaction. The device_count bump is a
// conditional UPDATE guarded by max_devices, so two concurrent validations
// racing for the last slot cannot both pass: the second one matches zero
// rows and is rejected.
func (s *Store) RecordDevice(ctx context.Context, keyID int64, deviceID string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var bound int
	if err := tx.GetContext(ctx, &bound,
		s.rebind(`SELECT COUNT(*) FROM devices WHERE key_id = ? AND device_id = ?`),
		keyID, deviceID); err != nil {
		return false, fmt.Errorf("check device binding: %w", err)
	}
	if bound > 0 {
		return false, nil
	}

	var exists int
	if err := tx.GetContext(ctx, &exists,
		s.rebind(`SELECT COUNT(*) FROM login_keys WHERE id = ?`), keyID); err != nil {
		return false, fmt.Errorf("check key: %w", err)
	}
	if exists == 0 {
		return false, ErrNotFound
	}

	result, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE login_keys SET device_count = device_count + 1
		 WHERE id = ? AND (max_devices IS NULL OR device_count < max_devices)`), keyID)
	if err != nil {
		return false, fmt.Errorf("bump device count: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("bump device count rows affected: %w", err)
	}
	if n == 0 {
		return false, ErrDeviceLimit
	}

	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO devices (key_id, device_id, first_seen) VALUES (?, ?, ?)`),
		keyID, deviceID, time.Now().UTC()); err != nil {
		if isUniqueViolation(err) {
			// Lost a race against an identical binding; the count bump
			// rolls back with the transaction.
			return false, nil
		}
		return false, fmt.Errorf("insert device binding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit device binding: %w", err)
	}
	return true, nil
}

// ListDevices returns every device ever bound to the key with its first-seen
// timestamp.
func (s *Store) ListDevices(ctx context.Context, keyID int64) ([]model.DeviceBinding, error) {
	var devices []model.DeviceBinding
	if err := s.db.SelectContext(ctx, &devices,
		s.rebind(`SELECT * FROM devices WHERE key_id = ? ORDER BY first_seen`), keyID); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// CountDevices returns the number of devices bound to the key.
func (s *Store) CountDevices(ctx context.Context, keyID int64) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n,
		s.rebind(`SELECT COUNT(*) FROM devices WHERE key_id = ?`), keyID); err != nil {
		return 0, fmt.Errorf("count devices: %w", err)
	}
	return n, nil
}
