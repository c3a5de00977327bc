package ports

import "context"

// Provider reads and writes named access points on the targets it supports.
// Providers are expected to be stateless with respect to bindings: the engine
// may ask the same provider about many targets.
type Provider interface {
	// DoesSupport reports whether the provider handles the access point on the target.
	DoesSupport(target any, name string) bool

	// GetValue returns the current value of the access point.
	GetValue(ctx context.Context, target any, name string) (any, error)

	// SetValue writes the access point. Providers that support monitoring must not
	// signal a change when the write leaves the value unchanged.
	SetValue(ctx context.Context, target any, name string, value any) error

	// DoesSupportMonitoring reports whether changes of the access point can be observed.
	DoesSupportMonitoring(target any, name string) bool
}

// Monitorer is implemented by providers able to deliver change notifications.
type Monitorer interface {
	// Monitor registers sub to be notified whenever the access point changes.
	Monitor(ctx context.Context, target any, name string, sub *Subscription) error

	// StopMonitoring removes a subscription previously passed to Monitor.
	StopMonitoring(ctx context.Context, target any, name string, sub *Subscription) error
}

// ChangeFunc is invoked when a monitored access point changes.
type ChangeFunc func()

// Subscription is the handle a provider keeps for one change callback.
// Providers identify subscriptions by pointer, so the same handle passed to
// Monitor must be passed to StopMonitoring.
type Subscription struct {
	fn ChangeFunc
}

// NewSubscription wraps fn in a subscription handle.
func NewSubscription(fn ChangeFunc) *Subscription {
	return &Subscription{fn: fn}
}

// Notify runs the change callback synchronously on the caller's goroutine.
func (s *Subscription) Notify() {
	if s == nil || s.fn == nil {
		return
	}
	s.fn()
}
