package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/soochol/salesconnect/internal/integration"
	"github.com/soochol/salesconnect/internal/statetoken"
)

// statusFor maps lifecycle errors to HTTP status codes.
func statusFor(err error) int {
	var upstream *integration.UpstreamError
	switch {
	case errors.Is(err, integration.ErrUnauthorized),
		errors.Is(err, integration.ErrMalformedState):
		return http.StatusUnauthorized
	case errors.Is(err, integration.ErrOrganizationUnresolved):
		return http.StatusForbidden
	case errors.Is(err, integration.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, integration.ErrInvalidToken),
		errors.Is(err, statetoken.ErrInvalidIdentifier):
		return http.StatusBadRequest
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}
