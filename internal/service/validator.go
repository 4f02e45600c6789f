package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/store"
)

// Verdict messages. Injector client apps pattern-match on these strings, so
// they are part of the wire contract and must never change.
const (
	MsgKeyNotFound     = "Key not found"
	MsgKeyExpired      = "Key has expired"
	MsgKeyBlocked      = "Key is blocked"
	MsgDeviceLimit     = "Device limit reached"
	MsgMissingFields   = "Missing required fields"
	MsgLoginSuccessful = "Login successful"
)

// wrongInjectorMsg names the injector the key actually belongs to.
func wrongInjectorMsg(injectorName string) string {
	return fmt.Sprintf("This key is not valid for %s", injectorName)
}

// Validator decides whether a (key, device, injector) triple may log in.
// Rejections come back as Verdict values; the error return is reserved for
// storage faults.
type Validator struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewValidator creates a Validator.
func NewValidator(st *store.Store, logger *slog.Logger) *Validator {
	return &Validator{
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// Verify runs the validation ladder in strict order: key resolution,
// injector binding, block flag, expiry, then device binding. The order is
// load-bearing: clients rely on which rejection wins when several apply,
// and a blocked or expired key must never consume a device slot.
//
// injectorID nil means the legacy endpoint: no injector check even for
// scoped keys.
func (v *Validator) Verify(ctx context.Context, rawKey, deviceID string, injectorID *int64) (model.Verdict, error) {
	key, err := v.store.GetKeyByString(ctx, rawKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Reject(MsgKeyNotFound), nil
		}
		return model.Verdict{}, err
	}

	if injectorID != nil && key.InjectorID != nil && *key.InjectorID != *injectorID {
		name := v.injectorName(ctx, *key.InjectorID)
		return model.Reject(wrongInjectorMsg(name)), nil
	}

	if key.Blocked {
		return model.Reject(MsgKeyBlocked), nil
	}

	if key.Expired(v.now()) {
		return model.Reject(MsgKeyExpired), nil
	}

	isNew, err := v.store.RecordDevice(ctx, key.ID, deviceID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDeviceLimit):
			return model.Reject(MsgDeviceLimit), nil
		case errors.Is(err, store.ErrNotFound):
			// Key deleted between lookup and binding.
			return model.Reject(MsgKeyNotFound), nil
		}
		return model.Verdict{}, err
	}

	if err := v.store.IncrementKeyUsed(ctx, key.ID); err != nil {
		return model.Verdict{}, err
	}

	v.logger.Debug("key validated",
		"key_id", key.ID,
		"device_id", deviceID,
		"new_device", isNew,
	)
	return model.Accept(MsgLoginSuccessful), nil
}

// injectorName resolves an injector's display name for the rejection
// message. A dangling reference falls back to a generic label rather than
// failing the verdict.
func (v *Validator) injectorName(ctx context.Context, id int64) string {
	inj, err := v.store.GetInjector(ctx, id)
	if err != nil {
		return "another injector"
	}
	return inj.Name
}
