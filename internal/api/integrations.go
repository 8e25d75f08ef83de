package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/soochol/salesconnect/internal/auth"
	"github.com/soochol/salesconnect/internal/integration"
	"golang.org/x/oauth2"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const maxCallbackBody = 64 << 10

// callbackRequest is the token payload a provider callback posts. Fields
// not listed here are kept as provider-specific extras.
type callbackRequest struct {
	State        string `json:"state" validate:"required"`
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresAt    string `json:"expires_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ExpiresIn    int64  `json:"expires_in" validate:"gte=0"`
}

var callbackFields = []string{"state", "access_token", "refresh_token", "token_type", "expires_at", "expires_in"}

func (c callbackRequest) token(extra map[string]any) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		ExpiresIn:    c.ExpiresIn,
	}
	if c.ExpiresAt != "" {
		// validated above
		tok.Expiry, _ = time.Parse(time.RFC3339, c.ExpiresAt)
	}
	for _, k := range callbackFields {
		delete(extra, k)
	}
	return tok.WithExtra(extra)
}

// providerType resolves the {provider} path parameter and the optional
// ?type= override to an integration type owned by that provider.
func providerType(r *http.Request) (integration.Provider, integration.Type, error) {
	name := chi.URLParam(r, "provider")
	prov, ok := integration.LookupProvider(name)
	if !ok {
		return integration.Provider{}, "", fmt.Errorf("%w: %q", integration.ErrUnknownProvider, name)
	}
	typ := prov.ConnectType
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := integration.Type(raw)
		if !slices.Contains(prov.Types, t) {
			return integration.Provider{}, "", fmt.Errorf("%w: %q is not a %s integration", integration.ErrUnknownProvider, raw, prov.Name)
		}
		typ = t
	}
	return prov, typ, nil
}

func callerFrom(r *http.Request) (integration.Caller, error) {
	c, ok := auth.CallerFrom(r.Context())
	if !ok {
		return integration.Caller{}, integration.ErrUnauthorized
	}
	return c, nil
}

func (s *Server) initiateConnect(w http.ResponseWriter, r *http.Request) {
	_, typ, err := providerType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	authURL, err := s.lifecycle.InitiateConnect(r.Context(), caller, typ)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "authUrl": authURL})
}

func (s *Server) checkStatus(w http.ResponseWriter, r *http.Request) {
	_, typ, err := providerType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.lifecycle.CheckStatus(r.Context(), caller, typ)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"connected": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	prov, _, err := providerType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.lifecycle.Disconnect(r.Context(), caller, prov.Name)
	if err != nil {
		var upstream *integration.UpstreamError
		if errors.As(err, &upstream) {
			res.Message = fmt.Sprintf("%s: %v", res.Message, upstream.Err)
			writeJSON(w, statusFor(err), res)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) completeConnect(w http.ResponseWriter, r *http.Request) {
	_, typ, err := providerType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	var req callbackRequest
	var extra map[string]any
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err == nil {
		err = json.Unmarshal(body, &extra)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	rec, err := s.lifecycle.CompleteConnect(r.Context(), caller, typ, req.State, req.token(extra))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "integration": rec.Safe()})
}

func (s *Server) listIntegrations(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	statuses, err := s.lifecycle.ListStatuses(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}
