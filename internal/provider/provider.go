package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/soochol/salesconnect/internal/integration"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Settings configures one OAuth provider.
type Settings struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	AuthParams   map[string]string
}

// defaults holds endpoints, scopes and token fields kept alongside the
// access token for each known provider.
var defaults = map[string]struct {
	endpoint    oauth2.Endpoint
	scopes      []string
	extraFields []string
	params      map[string]string
}{
	"salesforce": {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://login.salesforce.com/services/oauth2/authorize",
			TokenURL: "https://login.salesforce.com/services/oauth2/token",
		},
		scopes:      []string{"api", "refresh_token", "id"},
		extraFields: []string{"instance_url", "id", "issued_at", "scope"},
	},
	"outlook": {
		endpoint:    microsoft.AzureADEndpoint("common"),
		scopes:      []string{"offline_access", "User.Read", "Mail.Read", "Calendars.Read"},
		extraFields: []string{"scope"},
		params:      map[string]string{"prompt": "select_account"},
	},
	"hubspot": {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://app.hubspot.com/oauth/authorize",
			TokenURL: "https://api.hubapi.com/oauth/v1/token",
		},
		scopes:      []string{"oauth", "crm.objects.contacts.read", "crm.objects.companies.read", "crm.objects.deals.read"},
		extraFields: []string{"hub_id", "hub_domain", "scope"},
	},
}

// OAuthProvider builds authorization URLs for one provider.
type OAuthProvider struct {
	name        string
	config      *oauth2.Config
	opts        []oauth2.AuthCodeOption
	extraFields []string
}

// New creates a provider from settings, filling in the provider's default
// endpoint and scopes where settings leave them empty.
func New(name string, s Settings) (*OAuthProvider, error) {
	if _, ok := integration.LookupProvider(name); !ok {
		return nil, fmt.Errorf("%w: %q", integration.ErrUnknownProvider, name)
	}
	if s.ClientID == "" {
		return nil, fmt.Errorf("provider %s: client_id is required", name)
	}
	def := defaults[name]

	endpoint := def.endpoint
	if s.AuthURL != "" {
		endpoint.AuthURL = s.AuthURL
	}
	if s.TokenURL != "" {
		endpoint.TokenURL = s.TokenURL
	}
	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = def.scopes
	}

	params := make(map[string]string, len(def.params)+len(s.AuthParams))
	for k, v := range def.params {
		params[k] = v
	}
	for k, v := range s.AuthParams {
		params[k] = v
	}
	opts := make([]oauth2.AuthCodeOption, 0, len(params))
	for k, v := range params {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	return &OAuthProvider{
		name: name,
		config: &oauth2.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  s.RedirectURL,
			Scopes:       scopes,
		},
		opts:        opts,
		extraFields: def.extraFields,
	}, nil
}

func (p *OAuthProvider) Name() string { return p.name }

// AuthCodeURL returns the provider consent URL carrying state.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, p.opts...)
}

// TokenEntry converts a provider token response into a stored entry,
// keeping the provider-specific fields it knows about.
func (p *OAuthProvider) TokenEntry(tok *oauth2.Token) (integration.TokenEntry, error) {
	if tok == nil || strings.TrimSpace(tok.AccessToken) == "" {
		return integration.TokenEntry{}, integration.ErrInvalidToken
	}
	e := integration.TokenEntry{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	switch {
	case !tok.Expiry.IsZero():
		exp := tok.Expiry.UTC()
		e.ExpiresAt = &exp
	case tok.ExpiresIn > 0:
		exp := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second).UTC()
		e.ExpiresAt = &exp
	}
	if tok.TokenType != "" {
		e.Extra = map[string]any{"token_type": tok.TokenType}
	}
	for _, field := range p.extraFields {
		if v := tok.Extra(field); v != nil {
			if e.Extra == nil {
				e.Extra = make(map[string]any)
			}
			e.Extra[field] = v
		}
	}
	return e, nil
}
