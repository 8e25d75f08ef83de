package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/soochol/salesconnect/internal/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuth(t *testing.T) *Authenticator {
	t.Helper()
	a, err := New("test-secret", "salesconnect")
	require.NoError(t, err)
	return a
}

func TestMintVerify(t *testing.T) {
	a := newAuth(t)
	caller := integration.Caller{UserID: "U1", OrganizationID: "O1", Email: "u1@example.com"}

	tok, exp, err := a.Mint(caller, AudienceSession, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	got, err := a.Verify(tok, AudienceSession)
	require.NoError(t, err)
	assert.Equal(t, caller, got)

	_, err = a.Verify(tok, AudienceExtension)
	assert.ErrorIs(t, err, integration.ErrUnauthorized, "audience must match")
}

func TestVerify_Rejects(t *testing.T) {
	a := newAuth(t)
	caller := integration.Caller{UserID: "U1"}

	expired, _, err := a.Mint(caller, AudienceSession, -time.Minute)
	require.NoError(t, err)

	other, err := New("other-secret", "salesconnect")
	require.NoError(t, err)
	foreign, _, err := other.Mint(caller, AudienceSession, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "U1", "aud": AudienceSession})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, _, err := a.Mint(integration.Caller{}, AudienceSession, time.Hour)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":    expired,
		"foreign":    foreign,
		"alg none":   unsigned,
		"no subject": noSubject,
		"garbage":    "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Verify(tok, AudienceSession)
			assert.True(t, errors.Is(err, integration.ErrUnauthorized), "got %v", err)
		})
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New("", "x")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	a := newAuth(t)
	var seen integration.Caller
	var seenAud string
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFrom(r.Context())
		seenAud = AudienceFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	session, _, err := a.Mint(integration.Caller{UserID: "U1", OrganizationID: "O1"}, AudienceSession, time.Hour)
	require.NoError(t, err)
	ext, _, err := a.Mint(integration.Caller{UserID: "U2"}, AudienceExtension, time.Hour)
	require.NoError(t, err)

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+session)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "O1", seen.OrganizationID)
		assert.Equal(t, AudienceSession, seenAud)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: session})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, AudienceSession, seenAud)
	})

	t.Run("extension token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+ext)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "U2", seen.UserID)
		assert.Equal(t, AudienceExtension, seenAud)
	})

	t.Run("extension token not accepted as cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: ext})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"ok":false,"error":"unauthorized"}`, w.Body.String())
	})

	t.Run("basic scheme", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
