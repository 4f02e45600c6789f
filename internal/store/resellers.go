package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keygate/keygate/internal/model"
)

// CreateReseller inserts a new reseller account. The password hash must
// already be set. Returns ErrDuplicateUsername on a username collision.
func (s *Store) CreateReseller(ctx context.Context, res *model.Reseller) error {
	res.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO resellers (username, password_hash, credits, created_at)
		VALUES (:username, :password_hash, :credits, :created_at)`

	id, err := s.insertGetID(ctx, q, res)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("insert reseller: %w", err)
	}
	res.ID = id
	return nil
}

// GetReseller returns a reseller by id.
func (s *Store) GetReseller(ctx context.Context, id int64) (*model.Reseller, error) {
	var res model.Reseller
	if err := s.db.GetContext(ctx, &res,
		s.rebind(`SELECT * FROM resellers WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reseller: %w", err)
	}
	return &res, nil
}

// GetResellerByUsername returns a reseller by its unique username.
func (s *Store) GetResellerByUsername(ctx context.Context, username string) (*model.Reseller, error) {
	var res model.Reseller
	if err := s.db.GetContext(ctx, &res,
		s.rebind(`SELECT * FROM resellers WHERE username = ?`), username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reseller by username: %w", err)
	}
	return &res, nil
}

// ListResellers returns all reseller accounts.
func (s *Store) ListResellers(ctx context.Context) ([]model.Reseller, error) {
	var resellers []model.Reseller
	if err := s.db.SelectContext(ctx, &resellers,
		`SELECT * FROM resellers ORDER BY username`); err != nil {
		return nil, fmt.Errorf("list resellers: %w", err)
	}
	return resellers, nil
}

// AddCredits increases a reseller's balance. Amount must be positive.
func (s *Store) AddCredits(ctx context.Context, id, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE resellers SET credits = credits + ? WHERE id = ?`), amount, id)
	if err != nil {
		return fmt.Errorf("add credits: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add credits rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DebitCredits atomically subtracts amount from the balance. Returns
// ErrInsufficientCredits, with no mutation, when the balance is too low.
func (s *Store) DebitCredits(ctx context.Context, id, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE resellers SET credits = credits - ? WHERE id = ? AND credits >= ?`),
		amount, id, amount)
	if err != nil {
		return fmt.Errorf("debit credits: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit credits rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		if err := s.db.GetContext(ctx, &exists,
			s.rebind(`SELECT COUNT(*) FROM resellers WHERE id = ?`), id); err != nil {
			return fmt.Errorf("check reseller: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrInsufficientCredits
	}
	return nil
}

// UpdateResellerLastLogin sets the last_login timestamp.
func (s *Store) UpdateResellerLastLogin(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE resellers SET last_login = ? WHERE id = ?`), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update reseller last login: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update reseller last login rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReseller removes a reseller account. Keys the reseller created are
// kept and their reseller reference cleared in the same transaction, so
// customers who bought those keys keep working.
func (s *Store) DeleteReseller(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE login_keys SET reseller_id = NULL WHERE reseller_id = ?`), id); err != nil {
		return fmt.Errorf("unbind reseller keys: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		s.rebind(`DELETE FROM resellers WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete reseller: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reseller rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}
