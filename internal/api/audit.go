package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/soochol/salesconnect/internal/audit"
	"github.com/soochol/salesconnect/internal/integration"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditLog reads stored audit events.
type AuditLog interface {
	ListAuditEvents(ctx context.Context, orgID string, limit int) ([]audit.Event, error)
}

// SetAuditLog enables GET /api/audit.
func (s *Server) SetAuditLog(l AuditLog) {
	s.auditLog = l
}

// listAuditEvents returns the caller's organization events, newest first.
// A caller without an organization sees events keyed by their user ID.
func (s *Server) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Individual connects are audited under the user's own key.
	orgID, err := integration.ResolveOrganization(caller, integration.Descriptor{UsesIndividualFallback: true})
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxAuditLimit)
	}
	events, err := s.auditLog.ListAuditEvents(r.Context(), orgID, limit)
	if err != nil {
		writeError(w, r, integration.Upstream("list audit events", err))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
