package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/store"
)

var (
	// ErrInjectorRequired is returned when a reseller tries to create a key
	// without scoping it to an injector. Only admins may create unscoped keys.
	ErrInjectorRequired = errors.New("injector required")

	// ErrForbidden is returned when a reseller operates on a key it doesn't own.
	ErrForbidden = errors.New("forbidden")
)

// Lifecycle orchestrates key creation, blocking, and deletion, enforcing
// cross-entity rules the store alone can't see: reseller credit debits,
// injector existence, and ownership checks.
type Lifecycle struct {
	store         *store.Store
	logger        *slog.Logger
	publicBaseURL string
}

// NewLifecycle creates a Lifecycle. publicBaseURL is the externally
// reachable origin used to build injector login URLs.
func NewLifecycle(st *store.Store, logger *slog.Logger, publicBaseURL string) *Lifecycle {
	return &Lifecycle{
		store:         st,
		logger:        logger,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// GenerateKey produces a fresh random key string in XXXX-XXXX-XXXX-XXXX
// form, derived from a UUID.
func GenerateKey() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%s-%s-%s", raw[0:4], raw[4:8], raw[8:12], raw[12:16])
}

// buildKey validates the shared parts of a key request.
func (l *Lifecycle) buildKey(ctx context.Context, req model.KeyRequest) (*model.LoginKey, error) {
	if strings.TrimSpace(req.Key) == "" {
		return nil, fmt.Errorf("key string is required")
	}
	if req.MaxDevices != nil && *req.MaxDevices <= 0 {
		return nil, fmt.Errorf("maxDevices must be positive, got %d", *req.MaxDevices)
	}
	if req.InjectorID != nil {
		if _, err := l.store.GetInjector(ctx, *req.InjectorID); err != nil {
			return nil, fmt.Errorf("injector %d: %w", *req.InjectorID, err)
		}
	}
	return &model.LoginKey{
		Key:        strings.TrimSpace(req.Key),
		InjectorID: req.InjectorID,
		ExpiresAt:  req.ExpiresAt,
		MaxDevices: req.MaxDevices,
	}, nil
}

// AdminCreateKey creates a key on behalf of an administrator. No credits are
// involved and the key may be unscoped.
func (l *Lifecycle) AdminCreateKey(ctx context.Context, req model.KeyRequest) (*model.LoginKey, error) {
	key, err := l.buildKey(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := l.store.CreateKey(ctx, key); err != nil {
		return nil, err
	}
	l.logger.Info("key created", "key_id", key.ID, "by", "admin")
	return key, nil
}

// ResellerCreateKey creates a key on behalf of a reseller: the key must be
// scoped to an injector, and the configured credit cost is debited
// atomically with the creation; a failed debit creates no key.
func (l *Lifecycle) ResellerCreateKey(ctx context.Context, req model.KeyRequest, resellerID int64) (*model.LoginKey, error) {
	if req.InjectorID == nil {
		return nil, ErrInjectorRequired
	}
	key, err := l.buildKey(ctx, req)
	if err != nil {
		return nil, err
	}

	cost, err := l.store.GetCreditCost(ctx)
	if err != nil {
		return nil, err
	}

	if err := l.store.CreateKeyWithDebit(ctx, key, resellerID, cost); err != nil {
		return nil, err
	}
	l.logger.Info("key created", "key_id", key.ID, "by", "reseller", "reseller_id", resellerID, "cost", cost)
	return key, nil
}

// BlockKey blocks a key. Blocking an already-blocked key is a no-op.
func (l *Lifecycle) BlockKey(ctx context.Context, id int64) error {
	return l.store.SetKeyBlocked(ctx, id, true)
}

// UnblockKey unblocks a key. Unblocking an unblocked key is a no-op.
func (l *Lifecycle) UnblockKey(ctx context.Context, id int64) error {
	return l.store.SetKeyBlocked(ctx, id, false)
}

// DeleteKey removes a key. When requestingReseller is set, the key must
// belong to that reseller; admins pass nil and may delete anything. Credits
// spent on the key are never refunded.
func (l *Lifecycle) DeleteKey(ctx context.Context, id int64, requestingReseller *int64) error {
	if requestingReseller != nil {
		key, err := l.store.GetKey(ctx, id)
		if err != nil {
			return err
		}
		if key.ResellerID == nil || *key.ResellerID != *requestingReseller {
			return ErrForbidden
		}
	}
	return l.store.DeleteKey(ctx, id)
}

// CreditCost returns the per-key cost charged to resellers.
func (l *Lifecycle) CreditCost(ctx context.Context) (int64, error) {
	return l.store.GetCreditCost(ctx)
}

// SetCreditCost updates the per-key cost. Admin-only at the transport layer.
func (l *Lifecycle) SetCreditCost(ctx context.Context, cost int64) error {
	return l.store.SetCreditCost(ctx, cost)
}

// LoginRedirectURL builds the URL injector client apps POST validation
// requests to. Fails if the injector doesn't exist.
func (l *Lifecycle) LoginRedirectURL(ctx context.Context, injectorID int64) (string, error) {
	if _, err := l.store.GetInjector(ctx, injectorID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/api/verifyLoginWithInjector?injectorId=%d", l.publicBaseURL, injectorID), nil
}
