package handler

import (
	"errors"
	"net/http"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/server/middleware"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/stats"
	"github.com/keygate/keygate/internal/store"
)

// SystemHandler manages Keygate's own surface: sessions, admin accounts,
// panel settings, credit cost, and dashboard stats.
type SystemHandler struct {
	store     *store.Store
	authSvc   *service.AuthService
	lifecycle *service.Lifecycle
	collector *stats.Collector
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(st *store.Store, authSvc *service.AuthService, lifecycle *service.Lifecycle, collector *stats.Collector) *SystemHandler {
	return &SystemHandler{
		store:     st,
		authSvc:   authSvc,
		lifecycle: lifecycle,
		collector: collector,
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// loginRequest is the expected payload for the session endpoints.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response payload for a successful login.
type loginResponse struct {
	Token     string `json:"session_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	Role      string `json:"role"`
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
}

// AdminLogin authenticates an admin and returns a JWT session token.
// POST /api/v1/system/admin/session
func (h *SystemHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readLogin(w, r)
	if !ok {
		return
	}

	admin, err := h.authSvc.AuthenticateAdmin(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	h.writeSession(w, service.RoleAdmin, admin.ID, admin.Username)
}

// ResellerLogin authenticates a reseller and returns a JWT session token.
// POST /api/v1/system/reseller/session
func (h *SystemHandler) ResellerLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readLogin(w, r)
	if !ok {
		return
	}

	res, err := h.authSvc.AuthenticateReseller(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	h.writeSession(w, service.RoleReseller, res.ID, res.Username)
}

// Logout invalidates the current session. Since JWTs are stateless, this is
// a no-op on the server side. Clients should discard their token.
// DELETE /api/v1/system/session
func (h *SystemHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Session invalidated",
	})
}

func (h *SystemHandler) readLogin(w http.ResponseWriter, r *http.Request) (loginRequest, bool) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return req, false
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return req, false
	}
	return req, true
}

func (h *SystemHandler) writeLoginError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeError(w, http.StatusInternalServerError, "Authentication error: "+err.Error())
}

func (h *SystemHandler) writeSession(w http.ResponseWriter, role string, id int64, username string) {
	token, err := h.authSvc.IssueToken(role, id, username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int(h.authSvc.TTL().Seconds()),
		Role:      role,
		AccountID: id,
		Username:  username,
	})
}

// ---------------------------------------------------------------------------
// Admin account management
// ---------------------------------------------------------------------------

// ListAdmins returns all admin accounts.
// GET /api/v1/system/admin
func (h *SystemHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.store.ListAdmins(r.Context())
	if err != nil {
		writeStoreError(w, err, "Failed to list admins")
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: admins,
		Meta:     &model.ResponseMeta{Count: len(admins)},
	})
}

// CreateAdmin creates a new admin account.
// POST /api/v1/system/admin
func (h *SystemHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
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

	hash, err := service.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password: "+err.Error())
		return
	}

	admin := &model.Admin{Username: req.Username, PasswordHash: hash}
	if err := h.store.CreateAdmin(r.Context(), admin); err != nil {
		writeStoreError(w, err, "Failed to create admin")
		return
	}

	writeJSON(w, http.StatusCreated, admin)
}

// updateAccountRequest carries credential changes for the calling admin.
// Empty fields are left unchanged.
type updateAccountRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// UpdateAccount changes the authenticated admin's own username and/or
// password.
// PUT /api/v1/system/admin/account
func (h *SystemHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req updateAccountRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Username == "" && req.Password == "" {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	if req.Username != "" {
		if err := h.store.UpdateAdminUsername(r.Context(), principal.ID, req.Username); err != nil {
			writeStoreError(w, err, "Failed to update username")
			return
		}
	}
	if req.Password != "" {
		if len(req.Password) < 8 {
			writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
			return
		}
		hash, err := service.HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to hash password: "+err.Error())
			return
		}
		if err := h.store.UpdateAdminPassword(r.Context(), principal.ID, hash); err != nil {
			writeStoreError(w, err, "Failed to update password")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Account updated",
	})
}

// ---------------------------------------------------------------------------
// Panel settings and credit cost
// ---------------------------------------------------------------------------

// GetSettings returns the panel presentation settings.
// GET /api/v1/system/settings
func (h *SystemHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetPanelSettings(r.Context())
	if err != nil {
		writeStoreError(w, err, "Failed to get settings")
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings replaces the panel presentation settings.
// PUT /api/v1/system/settings
func (h *SystemHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings model.PanelSettings
	if err := readJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if settings.PanelName == "" {
		writeError(w, http.StatusBadRequest, "panelName is required")
		return
	}

	if err := h.store.UpdatePanelSettings(r.Context(), settings); err != nil {
		writeStoreError(w, err, "Failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

// GetCreditCost returns the per-key cost charged to resellers.
// GET /api/v1/system/credit-cost
func (h *SystemHandler) GetCreditCost(w http.ResponseWriter, r *http.Request) {
	cost, err := h.lifecycle.CreditCost(r.Context())
	if err != nil {
		writeStoreError(w, err, "Failed to get credit cost")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"creditCost": cost})
}

// UpdateCreditCost sets the per-key cost charged to resellers.
// PUT /api/v1/system/credit-cost
func (h *SystemHandler) UpdateCreditCost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CreditCost int64 `json:"creditCost"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.lifecycle.SetCreditCost(r.Context(), req.CreditCost); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to set credit cost: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"creditCost": req.CreditCost})
}

// Stats returns the aggregate dashboard counters.
// GET /api/v1/system/stats
func (h *SystemHandler) Stats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.collector.Snapshot(r.Context())
	if err != nil {
		writeStoreError(w, err, "Failed to compute stats")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}
