// Package audit carries connection lifecycle events from the request path
// to external sinks without letting sink failures affect the request.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names a lifecycle transition.
type Action string

const (
	ActionConnectInitiated Action = "integration.connect_initiated"
	ActionConnected        Action = "integration.connected"
	ActionDisconnected     Action = "integration.disconnected"
	ActionStateRejected    Action = "integration.state_rejected"
)

// ResourceIntegration is the resource type for integration records.
const ResourceIntegration = "integration"

// Event is one audit record.
type Event struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	OrganizationID string         `json:"organization_id"`
	UserID         string         `json:"user_id,omitempty"`
	Action         Action         `json:"action"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id"`
	Details        map[string]any `json:"details,omitempty"`
}

// NewEvent creates an event with a generated ID and timestamp.
func NewEvent(orgID string, action Action, resourceType, resourceID string) Event {
	return Event{
		ID:             uuid.New().String(),
		Timestamp:      time.Now().UTC(),
		OrganizationID: orgID,
		Action:         action,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
	}
}

// WithUser sets the acting user.
func (e Event) WithUser(userID string) Event {
	e.UserID = userID
	return e
}

// WithDetails sets free-form details.
func (e Event) WithDetails(details map[string]any) Event {
	e.Details = details
	return e
}
