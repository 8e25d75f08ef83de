package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/soochol/salesconnect/internal/integration"
)

const integrationsTable = "integrations"

// maxUpsertAttempts bounds retries when a concurrent insert wins the race
// for a brand-new key.
const maxUpsertAttempts = 3

var errInsertConflict = errors.New("concurrent insert for integration key")

var integrationColumns = []string{
	"organization_id", "integration_type", "is_enabled", "configuration", "created_at", "updated_at",
}

type integrationRow struct {
	OrganizationID  string                           `db:"organization_id"`
	IntegrationType string                           `db:"integration_type"`
	IsEnabled       bool                             `db:"is_enabled"`
	Configuration   JSONB[integration.Configuration] `db:"configuration"`
	CreatedAt       time.Time                        `db:"created_at"`
	UpdatedAt       time.Time                        `db:"updated_at"`
}

func (r *integrationRow) record() *integration.Record {
	cfg := r.Configuration.Data
	if cfg == nil {
		cfg = integration.Configuration{}
	}
	return &integration.Record{
		OrganizationID: r.OrganizationID,
		Type:           integration.Type(r.IntegrationType),
		IsEnabled:      r.IsEnabled,
		Configuration:  cfg,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

// RecordMutation edits rec in place and reports whether to keep it.
// keep=false deletes an existing row.
type RecordMutation func(rec *integration.Record, exists bool) (keep bool, err error)

// GetIntegration returns the record for the key, or ErrNotFound.
func (d *DB) GetIntegration(ctx context.Context, orgID string, typ integration.Type, requireEnabled bool) (*integration.Record, error) {
	sb := d.Flavor.NewSelectBuilder()
	sb.Select(integrationColumns...).From(integrationsTable).Where(
		sb.Equal("organization_id", orgID),
		sb.Equal("integration_type", string(typ)),
	)
	if requireEnabled {
		sb.Where(sb.Equal("is_enabled", true))
	}
	query, args := sb.Build()

	var row integrationRow
	err := d.Pool.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}
	return row.record(), nil
}

// ListIntegrations returns every record of an organization ordered by type.
func (d *DB) ListIntegrations(ctx context.Context, orgID string) ([]*integration.Record, error) {
	sb := d.Flavor.NewSelectBuilder()
	sb.Select(integrationColumns...).From(integrationsTable).
		Where(sb.Equal("organization_id", orgID)).
		OrderBy("integration_type")
	query, args := sb.Build()

	var rows []integrationRow
	if err := d.Pool.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	out := make([]*integration.Record, len(rows))
	for i := range rows {
		out[i] = rows[i].record()
	}
	return out, nil
}

// UpsertIntegration runs fn against the current row inside a transaction.
// On PostgreSQL the row is locked with SELECT ... FOR UPDATE; a brand-new
// key is inserted with ON CONFLICT DO NOTHING and the whole cycle is retried
// if another writer created it first.
func (d *DB) UpsertIntegration(ctx context.Context, orgID string, typ integration.Type, fn RecordMutation) (*integration.Record, error) {
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		rec, err := d.upsertIntegrationOnce(ctx, orgID, typ, fn)
		if errors.Is(err, errInsertConflict) {
			continue
		}
		return rec, err
	}
	return nil, fmt.Errorf("upsert integration: %w", errInsertConflict)
}

func (d *DB) upsertIntegrationOnce(ctx context.Context, orgID string, typ integration.Type, fn RecordMutation) (*integration.Record, error) {
	tx, err := d.Pool.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	sb := d.Flavor.NewSelectBuilder()
	sb.Select(integrationColumns...).From(integrationsTable).Where(
		sb.Equal("organization_id", orgID),
		sb.Equal("integration_type", string(typ)),
	)
	if d.Flavor == sqlbuilder.PostgreSQL {
		sb.ForUpdate()
	}
	query, args := sb.Build()

	var row integrationRow
	exists := true
	if err := tx.GetContext(ctx, &row, query, args...); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lock integration: %w", err)
		}
		exists = false
	}

	now := time.Now().UTC()
	rec := integration.NewRecord(orgID, typ)
	rec.CreatedAt = now
	if exists {
		rec = row.record()
	}

	keep, err := fn(rec, exists)
	if err != nil {
		return nil, err
	}

	if !keep {
		if exists {
			if _, err := d.deleteIntegration(ctx, tx, orgID, typ); err != nil {
				return nil, err
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit upsert: %w", err)
		}
		return nil, nil
	}

	rec.OrganizationID, rec.Type = orgID, typ
	if rec.Configuration == nil {
		rec.Configuration = integration.Configuration{}
	}
	rec.UpdatedAt = now
	cfg := JSONB[integration.Configuration]{Data: rec.Configuration}

	if exists {
		ub := d.Flavor.NewUpdateBuilder()
		ub.Update(integrationsTable).Set(
			ub.Assign("is_enabled", rec.IsEnabled),
			ub.Assign("configuration", cfg),
			ub.Assign("updated_at", rec.UpdatedAt),
		).Where(
			ub.Equal("organization_id", orgID),
			ub.Equal("integration_type", string(typ)),
		)
		query, args := ub.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("update integration: %w", err)
		}
	} else {
		ib := d.Flavor.NewInsertBuilder()
		ib.InsertInto(integrationsTable).Cols(integrationColumns...).
			Values(orgID, string(typ), rec.IsEnabled, cfg, rec.CreatedAt, rec.UpdatedAt)
		ib.SQL("ON CONFLICT (organization_id, integration_type) DO NOTHING")
		query, args := ib.Build()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("insert integration: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, errInsertConflict
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return rec, nil
}

// DeleteIntegration removes the row for the key.
func (d *DB) DeleteIntegration(ctx context.Context, orgID string, typ integration.Type) error {
	n, err := d.deleteIntegration(ctx, d.Pool, orgID, typ)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (d *DB) deleteIntegration(ctx context.Context, ex execer, orgID string, typ integration.Type) (int64, error) {
	del := d.Flavor.NewDeleteBuilder()
	del.DeleteFrom(integrationsTable).Where(
		del.Equal("organization_id", orgID),
		del.Equal("integration_type", string(typ)),
	)
	query, args := del.Build()
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete integration: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DisableIntegration flips is_enabled to false without deleting the row.
func (d *DB) DisableIntegration(ctx context.Context, orgID string, typ integration.Type) error {
	ub := d.Flavor.NewUpdateBuilder()
	ub.Update(integrationsTable).Set(
		ub.Assign("is_enabled", false),
		ub.Assign("updated_at", time.Now().UTC()),
	).Where(
		ub.Equal("organization_id", orgID),
		ub.Equal("integration_type", string(typ)),
	)
	query, args := ub.Build()
	res, err := d.Pool.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("disable integration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
