package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keygate/keygate/internal/model"
)

// CreateInjector registers a new injector. The redirect URL is optional and
// stored verbatim. ID and CreatedAt are populated on success.
func (s *Store) CreateInjector(ctx context.Context, inj *model.Injector) error {
	inj.CreatedAt = time.Now().UTC()
	inj.Status = true

	const q = `INSERT INTO injectors (name, redirect_url, status, created_at)
		VALUES (:name, :redirect_url, :status, :created_at)`

	id, err := s.insertGetID(ctx, q, inj)
	if err != nil {
		return fmt.Errorf("insert injector: %w", err)
	}
	inj.ID = id
	return nil
}

// GetInjector returns an injector by id.
func (s *Store) GetInjector(ctx context.Context, id int64) (*model.Injector, error) {
	var inj model.Injector
	if err := s.db.GetContext(ctx, &inj,
		s.rebind(`SELECT * FROM injectors WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get injector: %w", err)
	}
	return &inj, nil
}

// ListInjectors returns all injectors.
func (s *Store) ListInjectors(ctx context.Context) ([]model.Injector, error) {
	var injectors []model.Injector
	if err := s.db.SelectContext(ctx, &injectors,
		`SELECT * FROM injectors ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list injectors: %w", err)
	}
	return injectors, nil
}

// UpdateInjectorRedirect replaces the redirect URL; nil clears it.
func (s *Store) UpdateInjectorRedirect(ctx context.Context, id int64, redirectURL *string) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE injectors SET redirect_url = ? WHERE id = ?`), redirectURL, id)
	if err != nil {
		return fmt.Errorf("update injector redirect: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update injector redirect rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInjector removes an injector. Keys bound to it are kept and become
// general-purpose: their injector reference is cleared in the same
// transaction as the delete.
func (s *Store) DeleteInjector(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE login_keys SET injector_id = NULL WHERE injector_id = ?`), id); err != nil {
		return fmt.Errorf("unbind injector keys: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		s.rebind(`DELETE FROM injectors WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete injector: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete injector rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}
