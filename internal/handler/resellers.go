package handler

import (
	"errors"
	"net/http"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/server/middleware"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

// ResellerHandler serves two surfaces: admin management of reseller accounts
// and the reseller's own self-service routes.
type ResellerHandler struct {
	store     *store.Store
	lifecycle *service.Lifecycle
}

// NewResellerHandler creates a ResellerHandler.
func NewResellerHandler(st *store.Store, lifecycle *service.Lifecycle) *ResellerHandler {
	return &ResellerHandler{
		store:     st,
		lifecycle: lifecycle,
	}
}

// ---------------------------------------------------------------------------
// Admin surface
// ---------------------------------------------------------------------------

// ListResellers returns all reseller accounts.
// GET /api/v1/system/reseller
func (h *ResellerHandler) ListResellers(w http.ResponseWriter, r *http.Request) {
	resellers, err := h.store.ListResellers(r.Context())
	if err != nil {
		writeStoreError(w, err, "Failed to list resellers")
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resellers,
		Meta:     &model.ResponseMeta{Count: len(resellers)},
	})
}

// createResellerRequest is the payload for CreateReseller.
type createResellerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Credits  int64  `json:"credits"`
}

// CreateReseller creates a reseller account with an optional starting
// balance.
// POST /api/v1/system/reseller
func (h *ResellerHandler) CreateReseller(w http.ResponseWriter, r *http.Request) {
	var req createResellerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}
	if req.Credits < 0 {
		writeError(w, http.StatusBadRequest, "Credits must not be negative")
		return
	}

	hash, err := service.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password: "+err.Error())
		return
	}

	res := &model.Reseller{
		Username:     req.Username,
		PasswordHash: hash,
		Credits:      req.Credits,
	}
	if err := h.store.CreateReseller(r.Context(), res); err != nil {
		writeStoreError(w, err, "Failed to create reseller")
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// GetReseller returns one reseller by ID.
// GET /api/v1/system/reseller/{resellerId}
func (h *ResellerHandler) GetReseller(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "resellerId")
	if !ok {
		return
	}

	res, err := h.store.GetReseller(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Failed to get reseller")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// AdjustCredits adds to or subtracts from a reseller's balance. Positive
// amounts add; negative amounts subtract and fail if the balance would go
// below zero.
// POST /api/v1/system/reseller/{resellerId}/credits
func (h *ResellerHandler) AdjustCredits(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "resellerId")
	if !ok {
		return
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "Amount must not be zero")
		return
	}

	var err error
	if req.Amount > 0 {
		err = h.store.AddCredits(r.Context(), id, req.Amount)
	} else {
		err = h.store.DebitCredits(r.Context(), id, -req.Amount)
	}
	if err != nil {
		writeStoreError(w, err, "Failed to adjust credits")
		return
	}

	res, err := h.store.GetReseller(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Failed to get reseller")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListResellerKeys returns the keys a reseller has issued.
// GET /api/v1/system/reseller/{resellerId}/key
func (h *ResellerHandler) ListResellerKeys(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "resellerId")
	if !ok {
		return
	}
	if _, err := h.store.GetReseller(r.Context(), id); err != nil {
		writeStoreError(w, err, "Failed to get reseller")
		return
	}

	keys, err := h.store.ListKeysByReseller(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Failed to list keys")
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta:     &model.ResponseMeta{Count: len(keys)},
	})
}

// DeleteReseller removes a reseller account. Keys the reseller issued stay
// valid with their ownership cleared.
// DELETE /api/v1/system/reseller/{resellerId}
func (h *ResellerHandler) DeleteReseller(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "resellerId")
	if !ok {
		return
	}

	if err := h.store.DeleteReseller(r.Context(), id); err != nil {
		writeStoreError(w, err, "Failed to delete reseller")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Reseller deleted",
	})
}

// ---------------------------------------------------------------------------
// Reseller self-service surface
// ---------------------------------------------------------------------------

// Profile returns the authenticated reseller's own account.
// GET /api/v1/reseller/profile
func (h *ResellerHandler) Profile(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	res, err := h.store.GetReseller(r.Context(), principal.ID)
	if err != nil {
		writeStoreError(w, err, "Failed to get profile")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ListOwnKeys returns the authenticated reseller's keys.
// GET /api/v1/reseller/key
func (h *ResellerHandler) ListOwnKeys(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	keys, err := h.store.ListKeysByReseller(r.Context(), principal.ID)
	if err != nil {
		writeStoreError(w, err, "Failed to list keys")
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta:     &model.ResponseMeta{Count: len(keys)},
	})
}

// CreateOwnKey creates a key on the reseller's own account, debiting the
// configured credit cost. The key must be scoped to an injector.
// POST /api/v1/reseller/key
func (h *ResellerHandler) CreateOwnKey(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Generate || req.Key == "" {
		req.Key = service.GenerateKey()
	}

	key, err := h.lifecycle.ResellerCreateKey(r.Context(), req.KeyRequest, principal.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInjectorRequired):
			writeError(w, http.StatusBadRequest, "An injector is required for reseller keys")
		case errors.Is(err, store.ErrDuplicateKey),
			errors.Is(err, store.ErrInsufficientCredits),
			errors.Is(err, store.ErrNotFound):
			writeStoreError(w, err, "Failed to create key")
		default:
			writeError(w, http.StatusBadRequest, "Failed to create key: "+err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, key)
}

// DeleteOwnKey deletes one of the reseller's own keys. No credits are
// refunded.
// DELETE /api/v1/reseller/key/{keyId}
func (h *ResellerHandler) DeleteOwnKey(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	id, ok := urlID(w, r, "keyId")
	if !ok {
		return
	}

	if err := h.lifecycle.DeleteKey(r.Context(), id, &principal.ID); err != nil {
		if errors.Is(err, service.ErrForbidden) {
			writeError(w, http.StatusForbidden, "Key belongs to another account")
			return
		}
		writeStoreError(w, err, "Failed to delete key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Key deleted",
	})
}

// CreditCost returns the current per-key cost so panels can show it before
// a purchase.
// GET /api/v1/reseller/credit-cost
func (h *ResellerHandler) CreditCost(w http.ResponseWriter, r *http.Request) {
	cost, err := h.lifecycle.CreditCost(r.Context())
	if err != nil {
		writeStoreError(w, err, "Failed to get credit cost")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"creditCost": cost})
}
