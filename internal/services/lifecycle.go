package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soochol/salesconnect/internal/audit"
	"github.com/soochol/salesconnect/internal/crypto"
	"github.com/soochol/salesconnect/internal/integration"
	"github.com/soochol/salesconnect/internal/provider"
	"github.com/soochol/salesconnect/internal/repository"
	"github.com/soochol/salesconnect/internal/statetoken"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// Status is the connection state reported to a caller.
type Status struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

// Result is the outcome of a disconnect.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ProviderStatus is one row of ListStatuses.
type ProviderStatus struct {
	Provider    string           `json:"provider"`
	DisplayName string           `json:"display_name"`
	Type        integration.Type `json:"type"`
	Status
}

const msgNoUserCredentials = "integration exists but no credentials for this user"

var errStatePrincipal = errors.New("state was issued to a different principal")

// OperationRecorder counts lifecycle operations.
type OperationRecorder interface {
	RecordOperation(operation, provider, outcome string)
}

// LifecycleManager connects, inspects and disconnects provider integrations.
// It holds no per-request state and is safe for concurrent use.
type LifecycleManager struct {
	repo      repository.IntegrationRepository
	providers *provider.Registry
	sealer    *crypto.StateSealer
	audit     audit.Notifier
	metrics   OperationRecorder
}

// NewLifecycleManager creates a manager. sealer, notifier and metrics may be
// nil; without a sealer the state parameter is the plain "<user>:<org>" form.
func NewLifecycleManager(
	repo repository.IntegrationRepository,
	providers *provider.Registry,
	sealer *crypto.StateSealer,
	notifier audit.Notifier,
	metrics OperationRecorder,
) *LifecycleManager {
	return &LifecycleManager{
		repo:      repo,
		providers: providers,
		sealer:    sealer,
		audit:     notifier,
		metrics:   metrics,
	}
}

// InitiateConnect returns the provider authorization URL for typ. Nothing
// is written to the store.
func (m *LifecycleManager) InitiateConnect(ctx context.Context, caller integration.Caller, typ integration.Type) (string, error) {
	d, err := describe(typ)
	if err != nil {
		return "", err
	}
	orgID, err := integration.ResolveOrganization(caller, d)
	if err != nil {
		m.record("connect", d.Provider, err)
		return "", err
	}
	p, err := m.providers.Resolve(typ)
	if err != nil {
		m.record("connect", d.Provider, err)
		return "", err
	}
	state, err := m.encodeState(caller.UserID, orgID, typ)
	if err != nil {
		m.record("connect", d.Provider, err)
		return "", err
	}

	m.record("connect", d.Provider, nil)
	m.notify(ctx, audit.NewEvent(orgID, audit.ActionConnectInitiated, audit.ResourceIntegration, string(typ)).
		WithUser(caller.UserID).
		WithDetails(map[string]any{"provider": d.Provider}))
	return p.AuthCodeURL(state), nil
}

// CheckStatus reports whether the caller has usable credentials for typ.
// An absent record is a normal not-connected result, not an error.
func (m *LifecycleManager) CheckStatus(ctx context.Context, caller integration.Caller, typ integration.Type) (Status, error) {
	d, err := describe(typ)
	if err != nil {
		return Status{}, err
	}
	orgID, err := integration.ResolveOrganization(caller, d)
	if err != nil {
		m.record("status", d.Provider, err)
		return Status{}, err
	}
	prov, _ := integration.LookupProvider(d.Provider)

	rec, err := m.repo.Find(ctx, orgID, typ, true)
	if errors.Is(err, repository.ErrNotFound) {
		m.record("status", d.Provider, nil)
		return Status{Connected: false, Message: prov.DisplayName + " not connected"}, nil
	}
	if err != nil {
		m.record("status", d.Provider, err)
		return Status{}, integration.Upstream("find integration", err)
	}
	m.record("status", d.Provider, nil)

	var connected bool
	switch d.Scope {
	case integration.ScopePerUser:
		connected = integration.IsConnected(rec, caller.UserID)
	case integration.ScopeOrgWide:
		connected = integration.OrgConnected(rec)
	}
	if !connected {
		return Status{Connected: false, Message: msgNoUserCredentials}, nil
	}
	return Status{Connected: true, Message: prov.DisplayName + " connected"}, nil
}

// Disconnect removes the caller's credentials for every integration type of
// the named provider. Per-user types lose the caller's key (or the whole
// row); org-wide types are disabled. A missing record counts as cleaned up.
// It fails only when every attempt failed.
func (m *LifecycleManager) Disconnect(ctx context.Context, caller integration.Caller, providerName string) (Result, error) {
	prov, ok := integration.LookupProvider(providerName)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", integration.ErrUnknownProvider, providerName)
	}

	type attempt struct {
		desc  integration.Descriptor
		orgID string
	}
	attempts := make([]attempt, 0, len(prov.Types))
	for _, typ := range prov.Types {
		d, _ := integration.Describe(typ)
		orgID, err := integration.ResolveOrganization(caller, d)
		if err != nil {
			m.record("disconnect", prov.Name, err)
			return Result{}, err
		}
		attempts = append(attempts, attempt{desc: d, orgID: orgID})
	}

	errs := make([]error, len(attempts))
	var g errgroup.Group
	for i, a := range attempts {
		g.Go(func() error {
			errs[i] = m.cleanup(ctx, a.orgID, caller.UserID, a.desc)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for i, err := range errs {
		if err != nil {
			slog.Warn("disconnect attempt failed",
				"provider", prov.Name, "type", attempts[i].desc.Type, "org", attempts[i].orgID, "err", err)
			failed = append(failed, fmt.Errorf("%s: %w", attempts[i].desc.Type, err))
		}
	}
	if len(failed) == len(attempts) {
		m.record("disconnect", prov.Name, errors.New("all attempts failed"))
		return Result{Success: false, Message: "failed to disconnect " + prov.DisplayName},
			integration.Upstream("disconnect", errors.Join(failed...))
	}

	outcome := "success"
	if len(failed) > 0 {
		outcome = "partial"
	}
	if m.metrics != nil {
		m.metrics.RecordOperation("disconnect", prov.Name, outcome)
	}
	m.notify(ctx, audit.NewEvent(attempts[0].orgID, audit.ActionDisconnected, audit.ResourceIntegration, prov.Name).
		WithUser(caller.UserID).
		WithDetails(map[string]any{"provider": prov.Name, "outcome": outcome}))
	return Result{Success: true, Message: prov.DisplayName + " disconnected"}, nil
}

func (m *LifecycleManager) cleanup(ctx context.Context, orgID, userID string, d integration.Descriptor) error {
	var err error
	switch {
	case d.Scope == integration.ScopeOrgWide:
		err = m.repo.Disable(ctx, orgID, d.Type)
	case d.DeleteRowOnDisconnect:
		err = m.repo.Remove(ctx, orgID, d.Type)
	default:
		_, err = m.repo.Upsert(ctx, orgID, d.Type, func(rec *integration.Record, exists bool) error {
			if !exists {
				return repository.ErrDropRecord
			}
			rec.Configuration = integration.RemoveTokenEntry(rec.Configuration, userID)
			if len(rec.Configuration) == 0 {
				return repository.ErrDropRecord
			}
			return nil
		})
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// CompleteConnect stores the token delivered by a provider callback under
// the user and organization carried in state. caller is the authenticated
// principal finishing the flow; a state that fails to decode, or that names
// anyone else, is rejected as ErrMalformedState and nothing is written.
func (m *LifecycleManager) CompleteConnect(ctx context.Context, caller integration.Caller, typ integration.Type, state string, tok *oauth2.Token) (*integration.Record, error) {
	d, err := describe(typ)
	if err != nil {
		return nil, err
	}
	callerOrg, err := integration.ResolveOrganization(caller, d)
	if err != nil {
		m.record("callback", d.Provider, err)
		return nil, err
	}
	userID, orgID, err := m.decodeState(state, typ)
	if err == nil && (userID != caller.UserID || orgID != callerOrg) {
		err = errStatePrincipal
	}
	if err != nil {
		slog.Warn("oauth state rejected", "type", typ, "user", caller.UserID, "err", err)
		m.record("callback", d.Provider, err)
		m.notify(ctx, audit.NewEvent(callerOrg, audit.ActionStateRejected, audit.ResourceIntegration, string(typ)).
			WithUser(caller.UserID).
			WithDetails(map[string]any{"provider": d.Provider, "reason": err.Error()}))
		return nil, fmt.Errorf("%w: %v", integration.ErrMalformedState, err)
	}

	p, err := m.providers.Resolve(typ)
	if err != nil {
		m.record("callback", d.Provider, err)
		return nil, err
	}
	entry, err := p.TokenEntry(tok)
	if err != nil {
		m.record("callback", d.Provider, err)
		return nil, err
	}

	rec, err := m.repo.Upsert(ctx, orgID, typ, func(rec *integration.Record, _ bool) error {
		switch d.Scope {
		case integration.ScopePerUser:
			rec.Configuration = integration.SetTokenEntry(rec.Configuration, userID, entry)
		case integration.ScopeOrgWide:
			rec.Configuration = integration.MergeOrgFields(rec.Configuration, entry)
		}
		rec.IsEnabled = true
		return nil
	})
	if err != nil {
		m.record("callback", d.Provider, err)
		return nil, integration.Upstream("store integration", err)
	}

	m.record("callback", d.Provider, nil)
	m.notify(ctx, audit.NewEvent(orgID, audit.ActionConnected, audit.ResourceIntegration, string(typ)).
		WithUser(userID).
		WithDetails(map[string]any{"provider": d.Provider, "scope": d.Scope.String()}))
	return rec, nil
}

// ListStatuses checks every provider's connect type for the caller.
// Providers the caller cannot use for lack of an organization are reported
// as not connected.
func (m *LifecycleManager) ListStatuses(ctx context.Context, caller integration.Caller) ([]ProviderStatus, error) {
	if caller.UserID == "" {
		return nil, integration.ErrUnauthorized
	}
	provs := integration.Providers()
	out := make([]ProviderStatus, len(provs))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range provs {
		g.Go(func() error {
			st, err := m.CheckStatus(gctx, caller, p.ConnectType)
			if errors.Is(err, integration.ErrOrganizationUnresolved) {
				st, err = Status{Connected: false, Message: err.Error()}, nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", p.Name, err)
			}
			out[i] = ProviderStatus{Provider: p.Name, DisplayName: p.DisplayName, Type: p.ConnectType, Status: st}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *LifecycleManager) encodeState(userID, orgID string, typ integration.Type) (string, error) {
	state, err := statetoken.Encode(userID, orgID)
	if err != nil {
		return "", err
	}
	if m.sealer == nil {
		return state, nil
	}
	return m.sealer.Seal(state, string(typ))
}

func (m *LifecycleManager) decodeState(state string, typ integration.Type) (string, string, error) {
	if m.sealer != nil {
		plain, err := m.sealer.Open(state, string(typ))
		if err != nil {
			return "", "", err
		}
		state = plain
	}
	return statetoken.Decode(state)
}

func (m *LifecycleManager) notify(ctx context.Context, e audit.Event) {
	if m.audit == nil {
		return
	}
	m.audit.Notify(ctx, e)
}

func (m *LifecycleManager) record(op, prov string, err error) {
	if m.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.metrics.RecordOperation(op, prov, outcome)
}

func describe(typ integration.Type) (integration.Descriptor, error) {
	d, ok := integration.Describe(typ)
	if !ok {
		return integration.Descriptor{}, fmt.Errorf("%w: integration type %q", integration.ErrUnknownProvider, typ)
	}
	return d, nil
}
