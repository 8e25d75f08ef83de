package db

import (
	"context"
	"fmt"
	"time"

	"github.com/soochol/salesconnect/internal/audit"
)

const auditTable = "audit_events"

type auditRow struct {
	ID             string                `db:"id"`
	OrganizationID string                `db:"organization_id"`
	UserID         string                `db:"user_id"`
	Action         string                `db:"action"`
	ResourceType   string                `db:"resource_type"`
	ResourceID     string                `db:"resource_id"`
	Details        JSONB[map[string]any] `db:"details"`
	CreatedAt      time.Time             `db:"created_at"`
}

// InsertAuditEvent stores one audit event.
func (d *DB) InsertAuditEvent(ctx context.Context, e audit.Event) error {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	ib := d.Flavor.NewInsertBuilder()
	ib.InsertInto(auditTable).
		Cols("id", "organization_id", "user_id", "action", "resource_type", "resource_id", "details", "created_at").
		Values(e.ID, e.OrganizationID, e.UserID, string(e.Action), e.ResourceType, e.ResourceID,
			JSONB[map[string]any]{Data: details}, e.Timestamp.UTC())
	query, args := ib.Build()
	if _, err := d.Pool.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns an organization's most recent events first.
func (d *DB) ListAuditEvents(ctx context.Context, orgID string, limit int) ([]audit.Event, error) {
	sb := d.Flavor.NewSelectBuilder()
	sb.Select("id", "organization_id", "user_id", "action", "resource_type", "resource_id", "details", "created_at").
		From(auditTable).
		Where(sb.Equal("organization_id", orgID)).
		OrderBy("created_at").Desc().
		Limit(limit)
	query, args := sb.Build()

	var rows []auditRow
	if err := d.Pool.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	out := make([]audit.Event, len(rows))
	for i, r := range rows {
		out[i] = audit.Event{
			ID:             r.ID,
			Timestamp:      r.CreatedAt.UTC(),
			OrganizationID: r.OrganizationID,
			UserID:         r.UserID,
			Action:         audit.Action(r.Action),
			ResourceType:   r.ResourceType,
			ResourceID:     r.ResourceID,
			Details:        r.Details.Data,
		}
	}
	return out, nil
}

// PruneAuditEvents deletes events created before cutoff.
func (d *DB) PruneAuditEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	del := d.Flavor.NewDeleteBuilder()
	del.DeleteFrom(auditTable).Where(del.LessThan("created_at", cutoff.UTC()))
	query, args := del.Build()
	res, err := d.Pool.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
