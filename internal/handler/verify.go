package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/stats"
)

// VerifyHandler serves the public validation endpoints injector client apps
// call. Responses are always the verdict envelope, including the 400s:
// clients branch on the message string, not the HTTP status.
type VerifyHandler struct {
	validator *service.Validator
	collector *stats.Collector
}

// NewVerifyHandler creates a VerifyHandler.
func NewVerifyHandler(validator *service.Validator, collector *stats.Collector) *VerifyHandler {
	return &VerifyHandler{
		validator: validator,
		collector: collector,
	}
}

// verifyRequest is the payload both validation endpoints accept. InjectorID
// is a json.Number because generated clients send it either as a string or
// a number.
type verifyRequest struct {
	Key        string      `json:"key"`
	DeviceID   string      `json:"deviceId"`
	InjectorID json.Number `json:"injectorId"`
}

// VerifyLogin validates a key against a device with no injector scoping.
// POST /api/verifyLogin
func (h *VerifyHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.Reject(service.MsgMissingFields))
		return
	}
	if req.Key == "" || req.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, model.Reject(service.MsgMissingFields))
		return
	}

	h.respond(w, r, req, nil)
}

// VerifyLoginWithInjector validates a key against a device for a specific
// injector. The injector ID comes from the request body, or from the
// injectorId query parameter when redirect URLs are used.
// POST /api/verifyLoginWithInjector
func (h *VerifyHandler) VerifyLoginWithInjector(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.Reject(service.MsgMissingFields))
		return
	}
	if req.InjectorID == "" {
		req.InjectorID = json.Number(r.URL.Query().Get("injectorId"))
	}
	if req.Key == "" || req.DeviceID == "" || req.InjectorID == "" {
		writeJSON(w, http.StatusBadRequest, model.Reject(service.MsgMissingFields))
		return
	}

	injectorID, err := strconv.ParseInt(req.InjectorID.String(), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.Reject("Invalid injectorId"))
		return
	}

	h.respond(w, r, req, &injectorID)
}

func (h *VerifyHandler) respond(w http.ResponseWriter, r *http.Request, req verifyRequest, injectorID *int64) {
	verdict, err := h.validator.Verify(r.Context(), req.Key, req.DeviceID, injectorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Validation error: "+err.Error())
		return
	}

	h.collector.RecordVerdict(verdict.Valid)
	writeJSON(w, http.StatusOK, verdict)
}
