package integration

// Caller is the authenticated principal a lifecycle operation runs for.
type Caller struct {
	UserID         string
	OrganizationID string
	Email          string
}

// ResolveOrganization returns the organization key used for d.
//
// Initiate, status, disconnect and callback all go through here so the
// individual fallback cannot drift between them.
func ResolveOrganization(c Caller, d Descriptor) (string, error) {
	if c.UserID == "" {
		return "", ErrUnauthorized
	}
	if c.OrganizationID != "" {
		return c.OrganizationID, nil
	}
	if d.UsesIndividualFallback {
		return c.UserID, nil
	}
	return "", ErrOrganizationUnresolved
}
