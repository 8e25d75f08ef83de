package integration

import "time"

const (
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
	fieldExpiresAt    = "expires_at"
)

// TokenEntry is one set of provider credentials.
type TokenEntry struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	// Extra holds provider-specific fields such as instance_url.
	Extra map[string]any
}

// Value returns the JSON-like object stored inside a Configuration.
func (e TokenEntry) Value() map[string]any {
	m := make(map[string]any, len(e.Extra)+3)
	for k, v := range e.Extra {
		m[k] = cloneValue(v)
	}
	m[fieldAccessToken] = e.AccessToken
	if e.RefreshToken != "" {
		m[fieldRefreshToken] = e.RefreshToken
	}
	if e.ExpiresAt != nil {
		m[fieldExpiresAt] = e.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return m
}

// entryFromValue reads a stored object back into a TokenEntry.
func entryFromValue(v any) (TokenEntry, bool) {
	var m map[string]any
	switch t := v.(type) {
	case map[string]any:
		m = t
	case Configuration:
		m = t
	default:
		return TokenEntry{}, false
	}

	var e TokenEntry
	for k, val := range m {
		switch k {
		case fieldAccessToken:
			e.AccessToken, _ = val.(string)
		case fieldRefreshToken:
			e.RefreshToken, _ = val.(string)
		case fieldExpiresAt:
			e.ExpiresAt = parseExpiry(val)
		default:
			if e.Extra == nil {
				e.Extra = make(map[string]any)
			}
			e.Extra[k] = cloneValue(val)
		}
	}
	return e, true
}

func parseExpiry(v any) *time.Time {
	switch t := v.(type) {
	case string:
		ts, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return nil
		}
		return &ts
	case time.Time:
		return &t
	case float64:
		// epoch seconds, as some providers send
		ts := time.Unix(int64(t), 0).UTC()
		return &ts
	default:
		return nil
	}
}

// GetTokenEntry returns the entry stored under userID in a per-user record.
func GetTokenEntry(rec *Record, userID string) (TokenEntry, bool) {
	if rec == nil || rec.Configuration == nil {
		return TokenEntry{}, false
	}
	v, ok := rec.Configuration[userID]
	if !ok {
		return TokenEntry{}, false
	}
	return entryFromValue(v)
}

// IsConnected reports whether userID has a non-empty access token in rec.
func IsConnected(rec *Record, userID string) bool {
	e, ok := GetTokenEntry(rec, userID)
	return ok && e.AccessToken != ""
}

// SetTokenEntry returns a copy of cfg with userID set to e.
func SetTokenEntry(cfg Configuration, userID string, e TokenEntry) Configuration {
	out := cfg.Clone()
	if out == nil {
		out = Configuration{}
	}
	out[userID] = e.Value()
	return out
}

// RemoveTokenEntry returns a copy of cfg without userID.
func RemoveTokenEntry(cfg Configuration, userID string) Configuration {
	out := cfg.Clone()
	if out == nil {
		return Configuration{}
	}
	delete(out, userID)
	return out
}

// OrgTokenEntry reads the top-level credentials of an org-wide record.
func OrgTokenEntry(rec *Record) (TokenEntry, bool) {
	if rec == nil || rec.Configuration == nil {
		return TokenEntry{}, false
	}
	return entryFromValue(rec.Configuration)
}

// OrgConnected reports whether an org-wide record carries an access token.
func OrgConnected(rec *Record) bool {
	e, ok := OrgTokenEntry(rec)
	return ok && e.AccessToken != ""
}

// MergeOrgFields returns a copy of cfg with e's fields written at the top level.
func MergeOrgFields(cfg Configuration, e TokenEntry) Configuration {
	out := cfg.Clone()
	if out == nil {
		out = Configuration{}
	}
	for k, v := range e.Value() {
		out[k] = v
	}
	return out
}
