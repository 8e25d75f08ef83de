package provider

import (
	"fmt"
	"sync"

	"github.com/soochol/salesconnect/internal/integration"
)

type Registry struct {
	mu        sync.RWMutex
	providers map[string]*OAuthProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*OAuthProvider)}
}

func (r *Registry) Register(p *OAuthProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (*OAuthProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Resolve returns the configured provider that owns an integration type.
func (r *Registry) Resolve(typ integration.Type) (*OAuthProvider, error) {
	d, ok := integration.Describe(typ)
	if !ok {
		return nil, fmt.Errorf("unknown integration type %q", typ)
	}
	p, ok := r.Get(d.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not configured", integration.ErrUnknownProvider, d.Provider)
	}
	return p, nil
}
