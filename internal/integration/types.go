package integration

import "fmt"

// Type identifies a provider connection and its storage scope.
type Type string

const (
	TypeSalesforceOrg  Type = "salesforce_org"
	TypeSalesforceUser Type = "salesforce_user"
	TypeOutlookUser    Type = "outlook_user"
	TypeHubSpotUser    Type = "hubspot_user"
)

// Scope says how credentials for a Type are laid out inside a Record.
type Scope int

const (
	// ScopeOrgWide records hold provider fields directly in Configuration
	// and are soft-deleted on disconnect.
	ScopeOrgWide Scope = iota
	// ScopePerUser records map user IDs to TokenEntry values.
	ScopePerUser
)

func (s Scope) String() string {
	switch s {
	case ScopeOrgWide:
		return "org"
	case ScopePerUser:
		return "user"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Descriptor carries the per-type policies the lifecycle manager dispatches on.
type Descriptor struct {
	Type     Type
	Provider string
	Scope    Scope
	// UsesIndividualFallback lets callers without an organization use their
	// own user ID as the organization key.
	UsesIndividualFallback bool
	// DeleteRowOnDisconnect removes the whole row instead of the caller's key.
	DeleteRowOnDisconnect bool
}

// Provider groups the integration types that belong to one OAuth provider.
type Provider struct {
	Name        string
	DisplayName string
	// ConnectType is the type created by connect and inspected by status.
	ConnectType Type
	// Types lists every type disconnect must clean up, in order.
	Types []Type
}

var descriptors = map[Type]Descriptor{
	TypeSalesforceOrg:  {Type: TypeSalesforceOrg, Provider: "salesforce", Scope: ScopeOrgWide},
	TypeSalesforceUser: {Type: TypeSalesforceUser, Provider: "salesforce", Scope: ScopePerUser, DeleteRowOnDisconnect: true},
	TypeOutlookUser:    {Type: TypeOutlookUser, Provider: "outlook", Scope: ScopePerUser, UsesIndividualFallback: true},
	TypeHubSpotUser:    {Type: TypeHubSpotUser, Provider: "hubspot", Scope: ScopePerUser, UsesIndividualFallback: true},
}

var providers = map[string]Provider{
	"salesforce": {
		Name:        "salesforce",
		DisplayName: "Salesforce",
		ConnectType: TypeSalesforceUser,
		Types:       []Type{TypeSalesforceUser, TypeSalesforceOrg},
	},
	"outlook": {
		Name:        "outlook",
		DisplayName: "Outlook",
		ConnectType: TypeOutlookUser,
		Types:       []Type{TypeOutlookUser},
	},
	"hubspot": {
		Name:        "hubspot",
		DisplayName: "HubSpot",
		ConnectType: TypeHubSpotUser,
		Types:       []Type{TypeHubSpotUser},
	},
}

// providerOrder keeps listings stable.
var providerOrder = []string{"salesforce", "outlook", "hubspot"}

// Describe returns the descriptor for t.
func Describe(t Type) (Descriptor, bool) {
	d, ok := descriptors[t]
	return d, ok
}

// LookupProvider returns the provider registered under name.
func LookupProvider(name string) (Provider, bool) {
	p, ok := providers[name]
	return p, ok
}

// ProviderFor returns the provider owning t.
func ProviderFor(t Type) (Provider, bool) {
	d, ok := descriptors[t]
	if !ok {
		return Provider{}, false
	}
	return LookupProvider(d.Provider)
}

// Providers returns all known providers in display order.
func Providers() []Provider {
	out := make([]Provider, 0, len(providerOrder))
	for _, name := range providerOrder {
		out = append(out, providers[name])
	}
	return out
}

// ParseType validates a raw integration type string.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if _, ok := descriptors[t]; !ok {
		return "", fmt.Errorf("unknown integration type %q", s)
	}
	return t, nil
}
