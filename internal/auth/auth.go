// Package auth verifies session tokens and carries the caller principal
// through request contexts.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/soochol/salesconnect/internal/integration"
)

// SessionCookie is the cookie checked when no Authorization header is sent.
const SessionCookie = "session"

// Audience values distinguish web sessions from extension tokens.
const (
	AudienceSession   = "session"
	AudienceExtension = "extension"
)

// Claims are the JWT claims of a session or extension token.
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID string `json:"org,omitempty"`
	Email          string `json:"email,omitempty"`
}

// Authenticator signs and verifies HS256 tokens with a shared secret.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func New(secret, issuer string) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("auth: session secret is required")
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Mint signs a token for c valid for ttl.
func (a *Authenticator) Mint(c integration.Caller, audience string, ttl time.Duration) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID,
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		OrganizationID: c.OrganizationID,
		Email:          c.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses raw and returns the caller it names. Any failure is
// reported as integration.ErrUnauthorized.
func (a *Authenticator) Verify(raw, audience string) (integration.Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return integration.Caller{}, fmt.Errorf("%w: %v", integration.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return integration.Caller{}, fmt.Errorf("%w: missing subject", integration.ErrUnauthorized)
	}
	return integration.Caller{
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		Email:          claims.Email,
	}, nil
}

// Middleware rejects requests without a valid session token with 401 and
// stores the caller in the request context otherwise. Extension tokens are
// accepted on the Authorization header as well.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, aud, err := a.fromRequest(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "unauthorized"})
			return
		}
		ctx := context.WithValue(WithCaller(r.Context(), c), audienceKey{}, aud)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) fromRequest(r *http.Request) (integration.Caller, string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return integration.Caller{}, "", integration.ErrUnauthorized
		}
		raw = strings.TrimSpace(raw)
		if c, err := a.Verify(raw, AudienceSession); err == nil {
			return c, AudienceSession, nil
		}
		c, err := a.Verify(raw, AudienceExtension)
		return c, AudienceExtension, err
	}
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return integration.Caller{}, "", integration.ErrUnauthorized
	}
	c, err := a.Verify(cookie.Value, AudienceSession)
	return c, AudienceSession, err
}

type (
	callerKey   struct{}
	audienceKey struct{}
)

func WithCaller(ctx context.Context, c integration.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored by Middleware.
func CallerFrom(ctx context.Context) (integration.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(integration.Caller)
	return c, ok
}

// AudienceFrom returns the audience of the token Middleware verified.
func AudienceFrom(ctx context.Context) string {
	aud, _ := ctx.Value(audienceKey{}).(string)
	return aud
}
