package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/soochol/salesconnect/internal/integration"
	memstore "github.com/soochol/salesconnect/internal/repository/memory"
)

// MemoryIntegrationRepository is a thread-safe in-memory integration store.
type MemoryIntegrationRepository struct {
	store *memstore.Store[*integration.Record]
	now   func() time.Time
}

func NewMemoryIntegrationRepository() *MemoryIntegrationRepository {
	return &MemoryIntegrationRepository{
		store: memstore.New[*integration.Record](),
		now:   time.Now,
	}
}

func recordKey(orgID string, typ integration.Type) string {
	return orgID + "\x00" + string(typ)
}

func (r *MemoryIntegrationRepository) Find(ctx context.Context, orgID string, typ integration.Type, requireEnabled bool) (*integration.Record, error) {
	rec, err := r.store.Get(ctx, recordKey(orgID, typ))
	if errors.Is(err, memstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if requireEnabled && !rec.IsEnabled {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *MemoryIntegrationRepository) Upsert(ctx context.Context, orgID string, typ integration.Type, mutate Mutation) (*integration.Record, error) {
	stored, err := r.store.Mutate(ctx, recordKey(orgID, typ), func(cur *integration.Record, exists bool) (*integration.Record, bool, error) {
		now := r.now().UTC()
		rec := integration.NewRecord(orgID, typ)
		rec.CreatedAt = now
		if exists {
			rec = cur.Clone()
		}
		if err := mutate(rec, exists); err != nil {
			if errors.Is(err, ErrDropRecord) {
				return nil, false, nil
			}
			return nil, false, err
		}
		rec.OrganizationID, rec.Type = orgID, typ
		if rec.Configuration == nil {
			rec.Configuration = integration.Configuration{}
		}
		rec.UpdatedAt = now
		return rec, true, nil
	})
	if err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

func (r *MemoryIntegrationRepository) Remove(ctx context.Context, orgID string, typ integration.Type) error {
	err := r.store.Delete(ctx, recordKey(orgID, typ))
	if errors.Is(err, memstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *MemoryIntegrationRepository) Disable(ctx context.Context, orgID string, typ integration.Type) error {
	_, err := r.store.Mutate(ctx, recordKey(orgID, typ), func(cur *integration.Record, exists bool) (*integration.Record, bool, error) {
		if !exists {
			return nil, false, ErrNotFound
		}
		rec := cur.Clone()
		rec.IsEnabled = false
		rec.UpdatedAt = r.now().UTC()
		return rec, true, nil
	})
	return err
}

func (r *MemoryIntegrationRepository) ListByOrganization(ctx context.Context, orgID string) ([]*integration.Record, error) {
	recs, err := r.store.Filter(ctx, func(rec *integration.Record) bool {
		return rec.OrganizationID == orgID
	})
	if err != nil {
		return nil, err
	}
	out := make([]*integration.Record, len(recs))
	for i, rec := range recs {
		out[i] = rec.Clone()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (r *MemoryIntegrationRepository) Ping(context.Context) error {
	return nil
}
