package handler

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/keygate/keygate/internal/openapi"
)

// OpenAPIHandler serves the API description. The document is static for a
// given base URL, so it is built once and reused.
type OpenAPIHandler struct {
	baseURL string

	once sync.Once
	doc  *openapi3.T
}

// NewOpenAPIHandler creates an OpenAPIHandler.
func NewOpenAPIHandler(baseURL string) *OpenAPIHandler {
	return &OpenAPIHandler{baseURL: baseURL}
}

// ServeSpec returns the OpenAPI document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	h.once.Do(func() {
		h.doc = openapi.Document(h.baseURL)
	})

	writeJSON(w, http.StatusOK, h.doc)
}
