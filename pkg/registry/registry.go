// Package registry resolves which access point provider handles a target.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/ports"
)

// Registry manages the available providers.
// Providers are kept in registration order and resolved last-registered-first,
// so later registrations override earlier ones for the same access point.
type Registry struct {
	mu        sync.RWMutex
	providers []ports.Provider
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends a provider. Registering the same provider twice is a no-op.
func (r *Registry) Register(p ports.Provider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.providers {
		if sameProvider(existing, p) {
			return
		}
	}
	r.providers = append(r.providers, p)
}

// Resolve returns the provider for the access point on target.
// When no provider claims it, Resolve returns the no-op provider along with a
// *domain.ResolutionError, so callers can keep going with an inert binding.
func (r *Registry) Resolve(target any, name string) (ports.Provider, error) {
	r.mu.RLock()
	providers := r.providers
	r.mu.RUnlock()

	for i := len(providers) - 1; i >= 0; i-- {
		if providers[i].DoesSupport(target, name) {
			return providers[i], nil
		}
	}

	err := &domain.ResolutionError{Name: name, Target: target}
	r.logger.Warn("no access point provider", "ap", name, "target", fmt.Sprintf("%T", target), "err", err)
	return Noop, err
}

// Providers returns a snapshot of the registered providers in registration order.
func (r *Registry) Providers() []ports.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.providers)
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// sameProvider compares by identity. Non-comparable provider values (e.g. a
// struct holding a map) are never considered equal.
func sameProvider(a, b ports.Provider) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// Noop is the provider used when nothing else claims an access point.
// It supports everything, reads nil, ignores writes and cannot be monitored.
var Noop ports.Provider = noopProvider{}

type noopProvider struct{}

func (noopProvider) DoesSupport(any, string) bool { return true }

func (noopProvider) GetValue(context.Context, any, string) (any, error) { return nil, nil }

func (noopProvider) SetValue(context.Context, any, string, any) error { return nil }

func (noopProvider) DoesSupportMonitoring(any, string) bool { return false }
