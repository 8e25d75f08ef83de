package integration

import (
	"slices"
	"time"
)

// Configuration is the free-form object stored with a record.
type Configuration map[string]any

// Record is one stored connection, keyed by (OrganizationID, Type).
type Record struct {
	OrganizationID string        `json:"organization_id"`
	Type           Type          `json:"integration_type"`
	IsEnabled      bool          `json:"is_enabled"`
	Configuration  Configuration `json:"configuration"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NewRecord returns an enabled record with an empty configuration.
func NewRecord(orgID string, t Type) *Record {
	return &Record{
		OrganizationID: orgID,
		Type:           t,
		IsEnabled:      true,
		Configuration:  Configuration{},
	}
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Configuration = r.Configuration.Clone()
	return &out
}

// Clone deep-copies nested maps and slices.
func (c Configuration) Clone() Configuration {
	if c == nil {
		return nil
	}
	out := make(Configuration, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Configuration:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// RecordSafe is the API view of a Record with credentials masked.
type RecordSafe struct {
	OrganizationID string    `json:"organization_id"`
	Type           Type      `json:"integration_type"`
	IsEnabled      bool      `json:"is_enabled"`
	Users          []string  `json:"users,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Safe returns a view of r that never carries tokens.
func (r *Record) Safe() RecordSafe {
	s := RecordSafe{
		OrganizationID: r.OrganizationID,
		Type:           r.Type,
		IsEnabled:      r.IsEnabled,
		UpdatedAt:      r.UpdatedAt,
	}
	if d, ok := Describe(r.Type); ok && d.Scope == ScopePerUser {
		for userID := range r.Configuration {
			if IsConnected(r, userID) {
				s.Users = append(s.Users, userID)
			}
		}
		slices.Sort(s.Users)
	}
	return s
}
