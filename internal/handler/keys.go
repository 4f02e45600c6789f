package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

// KeyHandler manages login keys on the admin surface.
type KeyHandler struct {
	store     *store.Store
	lifecycle *service.Lifecycle
}

// NewKeyHandler creates a KeyHandler.
func NewKeyHandler(st *store.Store, lifecycle *service.Lifecycle) *KeyHandler {
	return &KeyHandler{
		store:     st,
		lifecycle: lifecycle,
	}
}

// ListKeys returns all keys, optionally filtered by injector via the
// injectorId query parameter.
// GET /api/v1/system/key
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	var (
		keys []model.LoginKey
		err  error
	)
	if raw := r.URL.Query().Get("injectorId"); raw != "" {
		injectorID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "Invalid injectorId: "+raw)
			return
		}
		keys, err = h.store.ListKeysByInjector(r.Context(), injectorID)
	} else {
		keys, err = h.store.ListKeys(r.Context())
	}
	if err != nil {
		writeStoreError(w, err, "Failed to list keys")
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta:     &model.ResponseMeta{Count: len(keys)},
	})
}

// createKeyRequest extends the shared creation payload with a generate flag;
// when set (or when key is empty) the server picks a random key string.
type createKeyRequest struct {
	model.KeyRequest
	Generate bool `json:"generate,omitempty"`
}

// CreateKey creates a key with no credit involvement. Admin only.
// POST /api/v1/system/key
func (h *KeyHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Generate || req.Key == "" {
		req.Key = service.GenerateKey()
	}

	key, err := h.lifecycle.AdminCreateKey(r.Context(), req.KeyRequest)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateKey), errors.Is(err, store.ErrNotFound):
			writeStoreError(w, err, "Failed to create key")
		default:
			writeError(w, http.StatusBadRequest, "Failed to create key: "+err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, key)
}

// GetKey returns one key by ID.
// GET /api/v1/system/key/{keyId}
func (h *KeyHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "keyId")
	if !ok {
		return
	}

	key, err := h.store.GetKey(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Failed to get key")
		return
	}

	writeJSON(w, http.StatusOK, key)
}

// KeyExists reports whether a key string is taken. Panels use it to surface
// collisions before submitting a manual key.
// GET /api/v1/system/key/exists?key=...
func (h *KeyHandler) KeyExists(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("key")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "key query parameter is required")
		return
	}

	exists, err := h.store.KeyExists(r.Context(), raw)
	if err != nil {
		writeStoreError(w, err, "Failed to check key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"exists": exists})
}

// ListKeyDevices returns the device ledger for a key.
// GET /api/v1/system/key/{keyId}/device
func (h *KeyHandler) ListKeyDevices(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "keyId")
	if !ok {
		return
	}
	if _, err := h.store.GetKey(r.Context(), id); err != nil {
		writeStoreError(w, err, "Failed to get key")
		return
	}

	devices, err := h.store.ListDevices(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: devices,
		Meta:     &model.ResponseMeta{Count: len(devices)},
	})
}

// BlockKey blocks a key so all future validations fail.
// POST /api/v1/system/key/{keyId}/block
func (h *KeyHandler) BlockKey(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true, "Key blocked")
}

// UnblockKey lifts a block.
// POST /api/v1/system/key/{keyId}/unblock
func (h *KeyHandler) UnblockKey(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false, "Key unblocked")
}

func (h *KeyHandler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool, msg string) {
	id, ok := urlID(w, r, "keyId")
	if !ok {
		return
	}

	var err error
	if blocked {
		err = h.lifecycle.BlockKey(r.Context(), id)
	} else {
		err = h.lifecycle.UnblockKey(r.Context(), id)
	}
	if err != nil {
		writeStoreError(w, err, "Failed to update key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": msg,
	})
}

// DeleteKey permanently removes a key and its device ledger. The key string
// becomes available for reuse.
// DELETE /api/v1/system/key/{keyId}
func (h *KeyHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "keyId")
	if !ok {
		return
	}

	if err := h.lifecycle.DeleteKey(r.Context(), id, nil); err != nil {
		writeStoreError(w, err, "Failed to delete key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Key deleted",
	})
}
