package notify

import (
	"context"

	"github.com/soochol/salesconnect/internal/audit"
)

// EventStore persists audit events.
type EventStore interface {
	InsertAuditEvent(ctx context.Context, e audit.Event) error
}

// StoreSink writes audit events to the audit_events table.
type StoreSink struct {
	Store EventStore
}

func (s *StoreSink) Name() string { return "db" }

func (s *StoreSink) Deliver(ctx context.Context, e audit.Event) error {
	return s.Store.InsertAuditEvent(ctx, e)
}
