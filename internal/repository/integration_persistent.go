package repository

import (
	"context"
	"errors"

	"github.com/soochol/salesconnect/internal/db"
	"github.com/soochol/salesconnect/internal/integration"
)

// PersistentIntegrationRepository stores integration records in SQL.
// Every store failure is returned to the caller.
type PersistentIntegrationRepository struct {
	db *db.DB
}

func NewPersistentIntegrationRepository(database *db.DB) *PersistentIntegrationRepository {
	return &PersistentIntegrationRepository{db: database}
}

func mapNotFound(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *PersistentIntegrationRepository) Find(ctx context.Context, orgID string, typ integration.Type, requireEnabled bool) (*integration.Record, error) {
	rec, err := r.db.GetIntegration(ctx, orgID, typ, requireEnabled)
	return rec, mapNotFound(err)
}

func (r *PersistentIntegrationRepository) Upsert(ctx context.Context, orgID string, typ integration.Type, mutate Mutation) (*integration.Record, error) {
	return r.db.UpsertIntegration(ctx, orgID, typ, func(rec *integration.Record, exists bool) (bool, error) {
		if err := mutate(rec, exists); err != nil {
			if errors.Is(err, ErrDropRecord) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	})
}

func (r *PersistentIntegrationRepository) Remove(ctx context.Context, orgID string, typ integration.Type) error {
	return mapNotFound(r.db.DeleteIntegration(ctx, orgID, typ))
}

func (r *PersistentIntegrationRepository) Disable(ctx context.Context, orgID string, typ integration.Type) error {
	return mapNotFound(r.db.DisableIntegration(ctx, orgID, typ))
}

func (r *PersistentIntegrationRepository) ListByOrganization(ctx context.Context, orgID string) ([]*integration.Record, error) {
	return r.db.ListIntegrations(ctx, orgID)
}

func (r *PersistentIntegrationRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
