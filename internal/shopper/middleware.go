package shopper

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey struct{}

// Middleware resolves the session id of each request and stores it in the
// request context. Missing headers get a fresh id; malformed ones are
// rejected with 400.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			var id string
			if header := r.Header.Get(HeaderName); header != "" {
				parsed, err := ParseHeader(header)
				if err != nil {
					logger.Warn("invalid Shopper-Session header",
						slog.String("header", header),
						slog.String("error", err.Error()))
					writeSessionError(w, "Invalid Shopper-Session header: "+err.Error())
					return
				}
				id = parsed
			} else {
				id = NewID()
				logger.Debug("new shopper session", slog.String("session", id))
			}

			if value, err := FormatHeader(id); err == nil {
				w.Header().Set(HeaderName, value)
			}

			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}

// isExemptPath returns true for paths that carry no shopper session.
// MCP clients pass the session in tool metadata instead.
func isExemptPath(path string) bool {
	switch {
	case path == "/health" || path == "/healthz":
		return true
	case path == "/metrics":
		return true
	case path == "/mcp" || strings.HasPrefix(path, "/mcp/"):
		return true
	default:
		return false
	}
}

// writeSessionError writes the standard error envelope.
func writeSessionError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = "INVALID_SESSION"
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}

// WithID returns a context carrying a session id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the session id stored by Middleware.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
