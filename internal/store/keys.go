package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keygate/keygate/internal/model"
)

const insertKeyQuery = `INSERT INTO login_keys
	(key_string, injector_id, reseller_id, expires_at, max_devices, device_count, used, blocked, created_at)
	VALUES
	(:key_string, :injector_id, :reseller_id, :expires_at, :max_devices, :device_count, :used, :blocked, :created_at)`

// CreateKey inserts a new login key. The key string must be unique among
// live keys; a collision returns ErrDuplicateKey without mutating state.
// ID and CreatedAt are populated on success.
func (s *Store) CreateKey(ctx context.Context, key *model.LoginKey) error {
	key.CreatedAt = time.Now().UTC()
	key.DeviceCount = 0
	key.Used = 0
	key.Blocked = false

	id, err := s.insertGetID(ctx, insertKeyQuery, key)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert key: %w", err)
	}
	key.ID = id
	return nil
}

// CreateKeyWithDebit atomically debits cost credits from the reseller and
// creates the key stamped with that reseller's id. Either both happen or
// neither: a failed debit creates no key, and a failed insert restores the
// balance. The reseller debit is always applied first (fixed lock order).
func (s *Store) CreateKeyWithDebit(ctx context.Context, key *model.LoginKey, resellerID, cost int64) error {
	key.CreatedAt = time.Now().UTC()
	key.DeviceCount = 0
	key.Used = 0
	key.Blocked = false
	key.ResellerID = &resellerID

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE resellers SET credits = credits - ? WHERE id = ? AND credits >= ?`),
		cost, resellerID, cost)
	if err != nil {
		return fmt.Errorf("debit credits: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit credits rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.GetContext(ctx, &exists,
			s.rebind(`SELECT COUNT(*) FROM resellers WHERE id = ?`), resellerID); err != nil {
			return fmt.Errorf("check reseller: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrInsufficientCredits
	}

	id, err := s.txInsertGetID(ctx, tx, insertKeyQuery, key)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert key: %w", err)
	}
	key.ID = id

	return tx.Commit()
}

// GetKey returns a login key by id.
func (s *Store) GetKey(ctx context.Context, id int64) (*model.LoginKey, error) {
	var key model.LoginKey
	if err := s.db.GetContext(ctx, &key,
		s.rebind(`SELECT * FROM login_keys WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get key: %w", err)
	}
	return &key, nil
}

// GetKeyByString resolves a raw key string to its record. This is the hot
// lookup on the validation path.
func (s *Store) GetKeyByString(ctx context.Context, raw string) (*model.LoginKey, error) {
	var key model.LoginKey
	if err := s.db.GetContext(ctx, &key,
		s.rebind(`SELECT * FROM login_keys WHERE key_string = ?`), raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get key by string: %w", err)
	}
	return &key, nil
}

// KeyExists reports whether a live key with the given string exists.
func (s *Store) KeyExists(ctx context.Context, raw string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n,
		s.rebind(`SELECT COUNT(*) FROM login_keys WHERE key_string = ?`), raw); err != nil {
		return false, fmt.Errorf("key exists: %w", err)
	}
	return n > 0, nil
}

// ListKeys returns all login keys, newest first.
func (s *Store) ListKeys(ctx context.Context) ([]model.LoginKey, error) {
	var keys []model.LoginKey
	if err := s.db.SelectContext(ctx, &keys,
		`SELECT * FROM login_keys ORDER BY id DESC`); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// ListKeysByInjector returns keys bound to the given injector.
func (s *Store) ListKeysByInjector(ctx context.Context, injectorID int64) ([]model.LoginKey, error) {
	var keys []model.LoginKey
	if err := s.db.SelectContext(ctx, &keys,
		s.rebind(`SELECT * FROM login_keys WHERE injector_id = ? ORDER BY id DESC`), injectorID); err != nil {
		return nil, fmt.Errorf("list keys by injector: %w", err)
	}
	return keys, nil
}

// ListKeysByReseller returns keys created by the given reseller.
func (s *Store) ListKeysByReseller(ctx context.Context, resellerID int64) ([]model.LoginKey, error) {
	var keys []model.LoginKey
	if err := s.db.SelectContext(ctx, &keys,
		s.rebind(`SELECT * FROM login_keys WHERE reseller_id = ? ORDER BY id DESC`), resellerID); err != nil {
		return nil, fmt.Errorf("list keys by reseller: %w", err)
	}
	return keys, nil
}

// CountKeysByInjector returns the number of keys bound to each injector.
func (s *Store) CountKeysByInjector(ctx context.Context) ([]model.InjectorKeyCount, error) {
	var counts []model.InjectorKeyCount
	if err := s.db.SelectContext(ctx, &counts,
		`SELECT injector_id, COUNT(*) AS n FROM login_keys
		 WHERE injector_id IS NOT NULL GROUP BY injector_id`); err != nil {
		return nil, fmt.Errorf("count keys by injector: %w", err)
	}
	return counts, nil
}

// SetKeyBlocked sets the blocked flag. Setting a key to its current state is
// not an error; a missing key is.
func (s *Store) SetKeyBlocked(ctx context.Context, id int64, blocked bool) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE login_keys SET blocked = ? WHERE id = ?`), blocked, id)
	if err != nil {
		return fmt.Errorf("set key blocked: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set key blocked rows affected: %w", err)
	}
	if n == 0 {
		// The UPDATE matches even when the flag already has the target
		// value, so zero rows means the key doesn't exist. MySQL counts
		// matched rows here because Open sets clientFoundRows.
		return ErrNotFound
	}
	return nil
}

// IncrementKeyUsed bumps the successful-validation counter.
func (s *Store) IncrementKeyUsed(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE login_keys SET used = used + 1 WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("increment key used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment key used rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteKey removes a key and its device bindings in one transaction.
// Credits spent on the key are not refunded.
func (s *Store) DeleteKey(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		s.rebind(`DELETE FROM devices WHERE key_id = ?`), id); err != nil {
		return fmt.Errorf("delete key devices: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		s.rebind(`DELETE FROM login_keys WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}
