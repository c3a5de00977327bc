package memory

import (
	"context"
	"fmt"

	"github.com/aretw0/knot/pkg/ports"
)

// Provider binds access points on *Entity targets. Plain map[string]any
// targets are supported too, but cannot be monitored.
type Provider struct {
	alwaysNotify bool
}

var (
	_ ports.Provider  = (*Provider)(nil)
	_ ports.Monitorer = (*Provider)(nil)
)

// Option configures the Provider.
type Option func(*Provider)

// WithAlwaysNotify makes every write signal watchers, even when the value is
// unchanged. Useful to exercise feedback handling.
func WithAlwaysNotify() Option {
	return func(p *Provider) {
		p.alwaysNotify = true
	}
}

// NewProvider creates an in-memory provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DoesSupport reports whether target is an Entity or a property map.
func (p *Provider) DoesSupport(target any, name string) bool {
	switch target.(type) {
	case *Entity, map[string]any:
		return name != ""
	}
	return false
}

// GetValue returns the property, or nil if unset.
func (p *Provider) GetValue(_ context.Context, target any, name string) (any, error) {
	switch t := target.(type) {
	case *Entity:
		v, _ := t.Get(name)
		return v, nil
	case map[string]any:
		return t[name], nil
	}
	return nil, fmt.Errorf("unsupported target %T", target)
}

// SetValue writes the property. Watchers are only signalled on actual change
// unless the provider was built WithAlwaysNotify.
func (p *Provider) SetValue(_ context.Context, target any, name string, value any) error {
	switch t := target.(type) {
	case *Entity:
		if t.store(name, value) || p.alwaysNotify {
			t.notify(name)
		}
		return nil
	case map[string]any:
		t[name] = value
		return nil
	}
	return fmt.Errorf("unsupported target %T", target)
}

// DoesSupportMonitoring is true for Entity targets only.
func (p *Provider) DoesSupportMonitoring(target any, name string) bool {
	_, ok := target.(*Entity)
	return ok && name != ""
}

// Monitor subscribes to changes of the property.
func (p *Provider) Monitor(_ context.Context, target any, name string, sub *ports.Subscription) error {
	e, ok := target.(*Entity)
	if !ok {
		return fmt.Errorf("cannot monitor target %T", target)
	}
	e.watch(name, sub)
	return nil
}

// StopMonitoring removes the subscription. Removing an unknown subscription is not an error.
func (p *Provider) StopMonitoring(_ context.Context, target any, name string, sub *ports.Subscription) error {
	e, ok := target.(*Entity)
	if !ok {
		return fmt.Errorf("cannot monitor target %T", target)
	}
	e.unwatch(name, sub)
	return nil
}
