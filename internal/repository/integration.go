package repository

import (
	"context"
	"errors"

	"github.com/soochol/salesconnect/internal/integration"
)

// ErrNotFound is returned when no record matches the requested key.
var ErrNotFound = errors.New("integration record not found")

// ErrDropRecord may be returned by a Mutation to delete the record
// instead of saving it.
var ErrDropRecord = errors.New("drop integration record")

// Mutation edits rec in place. exists is false when rec is a fresh record
// that Upsert will insert. Any other error aborts the upsert unchanged.
type Mutation func(rec *integration.Record, exists bool) error

// IntegrationRepository stores integration records keyed by
// (organization, integration type).
type IntegrationRepository interface {
	// Find returns the record for the key. With requireEnabled a disabled
	// record is reported as ErrNotFound.
	Find(ctx context.Context, orgID string, typ integration.Type, requireEnabled bool) (*integration.Record, error)
	// Upsert applies mutate to the current record (or a new one) as a single
	// atomic read-modify-write. It returns the stored record, or nil when the
	// mutation dropped it.
	Upsert(ctx context.Context, orgID string, typ integration.Type, mutate Mutation) (*integration.Record, error)
	Remove(ctx context.Context, orgID string, typ integration.Type) error
	Disable(ctx context.Context, orgID string, typ integration.Type) error
	ListByOrganization(ctx context.Context, orgID string) ([]*integration.Record, error)
	Ping(ctx context.Context) error
}
