package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/salesconnect/internal/audit"
	"github.com/soochol/salesconnect/internal/integration"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	d, err := New(ctx, DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate(ctx))
	return d
}

func setUser(userID, token string) RecordMutation {
	return func(rec *integration.Record, _ bool) (bool, error) {
		rec.Configuration = integration.SetTokenEntry(rec.Configuration, userID, integration.TokenEntry{AccessToken: token})
		rec.IsEnabled = true
		return true, nil
	}
}

func TestUpsertIntegration_CreateAndMerge(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	rec, err := d.UpsertIntegration(ctx, "o1", integration.TypeHubSpotUser, setUser("u1", "t1"))
	require.NoError(t, err)
	assert.True(t, rec.IsEnabled)

	_, err = d.UpsertIntegration(ctx, "o1", integration.TypeHubSpotUser, setUser("u2", "t2"))
	require.NoError(t, err)

	got, err := d.GetIntegration(ctx, "o1", integration.TypeHubSpotUser, true)
	require.NoError(t, err)
	assert.True(t, integration.IsConnected(got, "u1"))
	assert.True(t, integration.IsConnected(got, "u2"))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestUpsertIntegration_MutationErrorLeavesRowUnchanged(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	_, err := d.UpsertIntegration(ctx, "o1", integration.TypeOutlookUser, setUser("u1", "t1"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = d.UpsertIntegration(ctx, "o1", integration.TypeOutlookUser, func(rec *integration.Record, _ bool) (bool, error) {
		rec.Configuration = integration.Configuration{}
		return true, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := d.GetIntegration(ctx, "o1", integration.TypeOutlookUser, false)
	require.NoError(t, err)
	assert.True(t, integration.IsConnected(got, "u1"))
}

func TestUpsertIntegration_Drop(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	_, err := d.UpsertIntegration(ctx, "o1", integration.TypeOutlookUser, setUser("u1", "t1"))
	require.NoError(t, err)

	rec, err := d.UpsertIntegration(ctx, "o1", integration.TypeOutlookUser, func(*integration.Record, bool) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = d.GetIntegration(ctx, "o1", integration.TypeOutlookUser, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertIntegration_ConcurrentUsersKeepBothKeys(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	const users = 8
	var wg sync.WaitGroup
	errs := make(chan error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.UpsertIntegration(ctx, "o1", integration.TypeHubSpotUser, setUser(fmt.Sprintf("u%d", i), "t"))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := d.GetIntegration(ctx, "o1", integration.TypeHubSpotUser, true)
	require.NoError(t, err)
	assert.Len(t, got.Configuration, users)
}

func TestDisableIntegration(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	assert.ErrorIs(t, d.DisableIntegration(ctx, "o1", integration.TypeSalesforceOrg), ErrNotFound)

	_, err := d.UpsertIntegration(ctx, "o1", integration.TypeSalesforceOrg, func(rec *integration.Record, _ bool) (bool, error) {
		rec.Configuration = integration.MergeOrgFields(rec.Configuration, integration.TokenEntry{AccessToken: "org"})
		return true, nil
	})
	require.NoError(t, err)
	require.NoError(t, d.DisableIntegration(ctx, "o1", integration.TypeSalesforceOrg))

	_, err = d.GetIntegration(ctx, "o1", integration.TypeSalesforceOrg, true)
	assert.ErrorIs(t, err, ErrNotFound, "disabled rows are absent for enabled reads")

	got, err := d.GetIntegration(ctx, "o1", integration.TypeSalesforceOrg, false)
	require.NoError(t, err)
	assert.False(t, got.IsEnabled)
}

func TestDeleteAndListIntegrations(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	for _, typ := range []integration.Type{integration.TypeSalesforceUser, integration.TypeHubSpotUser} {
		_, err := d.UpsertIntegration(ctx, "o1", typ, setUser("u1", "t"))
		require.NoError(t, err)
	}
	_, err := d.UpsertIntegration(ctx, "o2", integration.TypeHubSpotUser, setUser("u9", "t"))
	require.NoError(t, err)

	list, err := d.ListIntegrations(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, integration.TypeHubSpotUser, list[0].Type)
	assert.Equal(t, integration.TypeSalesforceUser, list[1].Type)

	require.NoError(t, d.DeleteIntegration(ctx, "o1", integration.TypeHubSpotUser))
	assert.ErrorIs(t, d.DeleteIntegration(ctx, "o1", integration.TypeHubSpotUser), ErrNotFound)
}

func TestAuditEvents(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	old := audit.NewEvent("o1", audit.ActionConnected, audit.ResourceIntegration, "hubspot_user")
	old.Timestamp = time.Now().Add(-48 * time.Hour).UTC()
	fresh := audit.NewEvent("o1", audit.ActionDisconnected, audit.ResourceIntegration, "hubspot_user").
		WithUser("u1").
		WithDetails(map[string]any{"provider": "hubspot"})

	require.NoError(t, d.InsertAuditEvent(ctx, old))
	require.NoError(t, d.InsertAuditEvent(ctx, fresh))

	events, err := d.ListAuditEvents(ctx, "o1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, fresh.ID, events[0].ID)
	assert.Equal(t, "hubspot", events[0].Details["provider"])

	n, err := d.PruneAuditEvents(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), "mysql", "x")
	assert.Error(t, err)
}
