package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/soochol/salesconnect/internal/auth"
	"github.com/soochol/salesconnect/internal/integration"
)

type sessionResponse struct {
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId,omitempty"`
	Email          string    `json:"email,omitempty"`
	ExtensionToken string    `json:"extensionToken"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// session hands the browser extension a short-lived token for the current
// web session so it can call the API without the session cookie. Only a
// session token can mint one; extension tokens cannot renew themselves.
func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if auth.AudienceFrom(r.Context()) != auth.AudienceSession {
		writeError(w, r, fmt.Errorf("%w: session token required", integration.ErrUnauthorized))
		return
	}
	tok, exp, err := s.auth.Mint(caller, auth.AudienceExtension, s.extensionTTL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:         caller.UserID,
		OrganizationID: caller.OrganizationID,
		Email:          caller.Email,
		ExtensionToken: tok,
		ExpiresAt:      exp,
	})
}
