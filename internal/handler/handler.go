// Package handler provides the HTTP and MCP surfaces of the tester box
// storefront.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"tester-box/internal/model"
	"tester-box/internal/session"
	"tester-box/internal/shopper"
)

// Probe reports whether a backing dependency is usable. Used by /healthz.
type Probe func(ctx context.Context) error

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions *session.Manager
	probe    Probe
	logger   *slog.Logger
}

// New creates a Handler over a session manager. probe may be nil, in which
// case /healthz reports the same as /health.
func New(sessions *session.Manager, probe Probe, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		probe:    probe,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /catalog", h.handleCatalog)

	mux.HandleFunc("GET /bundle", h.handleGetBundle)
	mux.HandleFunc("PUT /bundle/filters", h.handleApplyFilter)
	mux.HandleFunc("POST /bundle/items", h.handleSelect)
	mux.HandleFunc("DELETE /bundle/items/{id}", h.handleDeselect)
	mux.HandleFunc("POST /bundle/dismiss", h.handleDismiss)
	mux.HandleFunc("POST /bundle/submit", h.handleSubmit)

	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("DELETE /cart/lines/{id}", h.handleRemoveLine)

	mux.HandleFunc("GET /wishlist", h.handleGetWishlist)
	mux.HandleFunc("POST /wishlist/{id}", h.handleToggleWishlist)

	mux.HandleFunc("GET /session", h.handleSession)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleReady)
}

// session resolves the shopper session attached by the shopper middleware.
func (h *Handler) session(r *http.Request) (*session.Session, error) {
	id, ok := shopper.FromContext(r.Context())
	if !ok {
		return nil, model.NewValidationError("session", shopper.HeaderName+" header required")
	}
	return h.sessions.Get(r.Context(), id)
}

// === Health ===

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Error    string `json:"error,omitempty"`
}

// handleHealth is the liveness check.
// GET /health
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: h.sessions.Len()})
}

// handleReady also checks the session store.
// GET /healthz
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.probe != nil {
		if err := h.probe(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "readiness probe failed", slog.String("error", err.Error()))
			h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{
				Status:   "unavailable",
				Sessions: h.sessions.Len(),
				Error:    "session store unreachable",
			})
			return
		}
	}
	h.handleHealth(w, r)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewInternalError(err)
	}

	attrs := []any{
		slog.String("code", apiErr.Code),
		slog.String("kind", apiErr.Kind.String()),
		slog.String("error", err.Error()),
	}
	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", attrs...)
	} else {
		h.logger.InfoContext(r.Context(), "request rejected", attrs...)
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Fields:  apiErr.Fields,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// === Request Decoding ===

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// decodeJSON reads a JSON body into v and runs its validate tags.
// Returns an APIError if decoding or validation fails.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return validateStruct(v)
}

// validateStruct checks v's validate tags and folds every failure into one
// validation error naming all offending fields.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return model.NewValidationError("body", "validation failed")
	}

	fields := make([]string, len(errs))
	reasons := make([]string, len(errs))
	for i, fe := range errs {
		fields[i] = fe.Field()
		reasons[i] = fe.Field() + " " + validationMessage(fe)
	}
	apiErr := model.NewValidationError(fields[0], validationMessage(errs[0]))
	apiErr.Message = strings.Join(reasons, "; ")
	apiErr.Fields = fields
	return apiErr
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}
