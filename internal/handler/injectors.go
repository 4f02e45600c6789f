package handler

import (
	"net/http"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

// InjectorHandler manages injector registrations on the admin surface.
type InjectorHandler struct {
	store     *store.Store
	lifecycle *service.Lifecycle
}

// NewInjectorHandler creates an InjectorHandler.
func NewInjectorHandler(st *store.Store, lifecycle *service.Lifecycle) *InjectorHandler {
	return &InjectorHandler{
		store:     st,
		lifecycle: lifecycle,
	}
}

// ListInjectors returns all registered injectors.
// GET /api/v1/system/injector
func (h *InjectorHandler) ListInjectors(w http.ResponseWriter, r *http.Request) {
	injectors, err := h.store.ListInjectors(r.Context())
	if err != nil {
		writeStoreError(w, err, "Failed to list injectors")
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: injectors,
		Meta:     &model.ResponseMeta{Count: len(injectors)},
	})
}

// createInjectorRequest is the payload for CreateInjector.
type createInjectorRequest struct {
	Name        string  `json:"name"`
	RedirectURL *string `json:"redirectUrl,omitempty"`
}

// CreateInjector registers a new injector.
// POST /api/v1/system/injector
func (h *InjectorHandler) CreateInjector(w http.ResponseWriter, r *http.Request) {
	var req createInjectorRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Injector name is required")
		return
	}

	inj := &model.Injector{
		Name:        req.Name,
		RedirectURL: req.RedirectURL,
	}
	if err := h.store.CreateInjector(r.Context(), inj); err != nil {
		writeStoreError(w, err, "Failed to create injector")
		return
	}

	writeJSON(w, http.StatusCreated, inj)
}

// GetInjector returns one injector by ID.
// GET /api/v1/system/injector/{injectorId}
func (h *InjectorHandler) GetInjector(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "injectorId")
	if !ok {
		return
	}

	inj, err := h.store.GetInjector(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Failed to get injector")
		return
	}

	writeJSON(w, http.StatusOK, inj)
}

// UpdateInjectorRedirect sets or clears an injector's redirect URL. A null
// redirectUrl clears it.
// PUT /api/v1/system/injector/{injectorId}/redirect
func (h *InjectorHandler) UpdateInjectorRedirect(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "injectorId")
	if !ok {
		return
	}

	var req struct {
		RedirectURL *string `json:"redirectUrl"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.store.UpdateInjectorRedirect(r.Context(), id, req.RedirectURL); err != nil {
		writeStoreError(w, err, "Failed to update injector")
		return
	}

	inj, err := h.store.GetInjector(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Failed to get injector")
		return
	}
	writeJSON(w, http.StatusOK, inj)
}

// LoginURL returns the validation URL injector builds embed for this
// injector.
// GET /api/v1/system/injector/{injectorId}/login-url
func (h *InjectorHandler) LoginURL(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "injectorId")
	if !ok {
		return
	}

	url, err := h.lifecycle.LoginRedirectURL(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Failed to build login URL")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"url": url})
}

// KeyCounts returns the number of keys bound to each injector.
// GET /api/v1/system/injector/key-count
func (h *InjectorHandler) KeyCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountKeysByInjector(r.Context())
	if err != nil {
		writeStoreError(w, err, "Failed to count keys")
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: counts,
		Meta:     &model.ResponseMeta{Count: len(counts)},
	})
}

// DeleteInjector removes an injector. Keys bound to it survive unscoped.
// DELETE /api/v1/system/injector/{injectorId}
func (h *InjectorHandler) DeleteInjector(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "injectorId")
	if !ok {
		return
	}

	if err := h.store.DeleteInjector(r.Context(), id); err != nil {
		writeStoreError(w, err, "Failed to delete injector")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Injector deleted",
	})
}
