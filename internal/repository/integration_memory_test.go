package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/soochol/salesconnect/internal/integration"
)

func addUser(userID, token string) Mutation {
	return func(rec *integration.Record, _ bool) error {
		rec.Configuration = integration.SetTokenEntry(rec.Configuration, userID, integration.TokenEntry{AccessToken: token})
		return nil
	}
}

func TestMemoryIntegrationRepository_Lifecycle(t *testing.T) {
	repo := NewMemoryIntegrationRepository()
	ctx := context.Background()

	// Find on empty store.
	if _, err := repo.Find(ctx, "o1", integration.TypeHubSpotUser, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("find empty: got %v, want ErrNotFound", err)
	}

	// Upsert creates an enabled record.
	rec, err := repo.Upsert(ctx, "o1", integration.TypeHubSpotUser, addUser("u1", "t1"))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !rec.IsEnabled || rec.OrganizationID != "o1" || rec.Type != integration.TypeHubSpotUser {
		t.Fatalf("unexpected record: %+v", rec)
	}

	// Second user merges into the same record.
	if _, err := repo.Upsert(ctx, "o1", integration.TypeHubSpotUser, addUser("u2", "t2")); err != nil {
		t.Fatalf("upsert u2: %v", err)
	}
	got, err := repo.Find(ctx, "o1", integration.TypeHubSpotUser, true)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !integration.IsConnected(got, "u1") || !integration.IsConnected(got, "u2") {
		t.Fatalf("expected both users connected, got %v", got.Configuration)
	}

	// Returned records are copies.
	got.Configuration["u3"] = map[string]any{"access_token": "x"}
	again, _ := repo.Find(ctx, "o1", integration.TypeHubSpotUser, true)
	if integration.IsConnected(again, "u3") {
		t.Fatal("mutating a returned record leaked into the store")
	}

	// Disable hides it from enabled reads only.
	if err := repo.Disable(ctx, "o1", integration.TypeHubSpotUser); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := repo.Find(ctx, "o1", integration.TypeHubSpotUser, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("find disabled: got %v, want ErrNotFound", err)
	}
	if _, err := repo.Find(ctx, "o1", integration.TypeHubSpotUser, false); err != nil {
		t.Fatalf("find disabled without requireEnabled: %v", err)
	}

	// Remove.
	if err := repo.Remove(ctx, "o1", integration.TypeHubSpotUser); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := repo.Remove(ctx, "o1", integration.TypeHubSpotUser); !errors.Is(err, ErrNotFound) {
		t.Fatalf("remove twice: got %v, want ErrNotFound", err)
	}
	if err := repo.Disable(ctx, "o1", integration.TypeHubSpotUser); !errors.Is(err, ErrNotFound) {
		t.Fatalf("disable missing: got %v, want ErrNotFound", err)
	}
}

func TestMemoryIntegrationRepository_DropAndAbort(t *testing.T) {
	repo := NewMemoryIntegrationRepository()
	ctx := context.Background()
	repo.Upsert(ctx, "o1", integration.TypeOutlookUser, addUser("u1", "t1"))

	boom := errors.New("boom")
	_, err := repo.Upsert(ctx, "o1", integration.TypeOutlookUser, func(rec *integration.Record, _ bool) error {
		rec.Configuration = nil
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("abort: got %v", err)
	}
	if got, _ := repo.Find(ctx, "o1", integration.TypeOutlookUser, true); !integration.IsConnected(got, "u1") {
		t.Fatal("aborted mutation must not change the record")
	}

	rec, err := repo.Upsert(ctx, "o1", integration.TypeOutlookUser, func(*integration.Record, bool) error {
		return ErrDropRecord
	})
	if err != nil || rec != nil {
		t.Fatalf("drop: rec=%v err=%v", rec, err)
	}
	if _, err := repo.Find(ctx, "o1", integration.TypeOutlookUser, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("find after drop: got %v", err)
	}
}

func TestMemoryIntegrationRepository_ConcurrentUpserts(t *testing.T) {
	repo := NewMemoryIntegrationRepository()
	ctx := context.Background()

	const users = 50
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repo.Upsert(ctx, "o1", integration.TypeHubSpotUser, addUser(fmt.Sprintf("u%d", i), "t"))
		}(i)
	}
	wg.Wait()

	got, err := repo.Find(ctx, "o1", integration.TypeHubSpotUser, true)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got.Configuration) != users {
		t.Fatalf("expected %d user keys, got %d", users, len(got.Configuration))
	}
}

func TestMemoryIntegrationRepository_ListByOrganization(t *testing.T) {
	repo := NewMemoryIntegrationRepository()
	ctx := context.Background()
	repo.Upsert(ctx, "o1", integration.TypeSalesforceUser, addUser("u1", "t"))
	repo.Upsert(ctx, "o1", integration.TypeHubSpotUser, addUser("u1", "t"))
	repo.Upsert(ctx, "o2", integration.TypeHubSpotUser, addUser("u2", "t"))

	list, err := repo.ListByOrganization(ctx, "o1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Type != integration.TypeHubSpotUser {
		t.Fatalf("unexpected list: %+v", list)
	}
}
