package middleware

import (
	"context"
	"errors"

	"github.com/aretw0/knot/pkg/ports"
)

// ErrNotMonitorable is returned by Monitor when the wrapped provider cannot
// deliver change notifications.
var ErrNotMonitorable = errors.New("wrapped provider does not support monitoring")

// Middleware allows wrapping a Provider to add behavior around reads and writes.
type Middleware func(ports.Provider) ports.Provider

// Chain wraps p with mws. The first middleware is the outermost one.
func Chain(p ports.Provider, mws ...Middleware) ports.Provider {
	for i := len(mws) - 1; i >= 0; i-- {
		p = mws[i](p)
	}
	return p
}

// wrapped forwards everything to next. Middlewares embed it and override
// the calls they change, so monitoring always reaches the real provider.
type wrapped struct {
	next ports.Provider
}

var (
	_ ports.Provider  = wrapped{}
	_ ports.Monitorer = wrapped{}
)

func (w wrapped) DoesSupport(target any, name string) bool {
	return w.next.DoesSupport(target, name)
}

func (w wrapped) GetValue(ctx context.Context, target any, name string) (any, error) {
	return w.next.GetValue(ctx, target, name)
}

func (w wrapped) SetValue(ctx context.Context, target any, name string, value any) error {
	return w.next.SetValue(ctx, target, name, value)
}

func (w wrapped) DoesSupportMonitoring(target any, name string) bool {
	if _, ok := w.next.(ports.Monitorer); !ok {
		return false
	}
	return w.next.DoesSupportMonitoring(target, name)
}

func (w wrapped) Monitor(ctx context.Context, target any, name string, sub *ports.Subscription) error {
	mon, ok := w.next.(ports.Monitorer)
	if !ok {
		return ErrNotMonitorable
	}
	return mon.Monitor(ctx, target, name, sub)
}

func (w wrapped) StopMonitoring(ctx context.Context, target any, name string, sub *ports.Subscription) error {
	mon, ok := w.next.(ports.Monitorer)
	if !ok {
		return ErrNotMonitorable
	}
	return mon.StopMonitoring(ctx, target, name, sub)
}
