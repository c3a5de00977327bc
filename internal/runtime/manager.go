package runtime

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/knot/internal/logging"
	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/ports"
	"github.com/aretw0/knot/pkg/registry"
	"github.com/aretw0/knot/pkg/symbols"
)

// Manager ties and unties knots. It owns no global state: the provider
// registry and the symbol table are injected.
type Manager struct {
	registry *registry.Registry
	symbols  *symbols.Table
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	mu    sync.RWMutex
	knots map[string]*Knot
	seq   atomic.Uint64
}

// Option configures the Manager.
type Option func(*Manager)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager resolving providers from reg and transforms from table.
func NewManager(reg *registry.Registry, table *symbols.Table, opts ...Option) *Manager {
	if reg == nil {
		reg = registry.NewRegistry()
	}
	if table == nil {
		table = symbols.NewTable()
	}
	m := &Manager{
		registry: reg,
		symbols:  table,
		logger:   logging.NewNop(),
		knots:    make(map[string]*Knot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tie binds left and right according to spec.
//
// Every transform reference is checked before anything is read or written. Access
// points no provider claims degrade to an inert binding and are reported through
// Knot.Warnings. If seeding the initial value fails, the knot is still returned
// tied together with the error.
func (m *Manager) Tie(ctx context.Context, left, right any, spec *domain.Spec) (*Knot, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := m.checkSymbols(spec); err != nil {
		m.logger.ErrorContext(ctx, "tie rejected", "spec", spec.Source, "err", err)
		return nil, err
	}

	k := &Knot{
		id:        uuid.NewString(),
		spec:      spec,
		left:      left,
		right:     right,
		createdAt: time.Now(),
		seq:       m.seq.Add(1),
		manager:   m,
	}
	logger := m.logger.With("knot_id", k.id)

	k.mu.Lock()
	defer k.mu.Unlock()

	var seedErr error
	switch {
	case spec.Left.Composite:
		seedErr = m.tieComposite(ctx, k, spec.Left, left, spec.Right, right, domain.LeftToRight)
	case spec.Right.Composite:
		seedErr = m.tieComposite(ctx, k, spec.Right, right, spec.Left, left, domain.RightToLeft)
	default:
		seedErr = m.tieSimple(ctx, k)
	}

	m.mu.Lock()
	m.knots[k.id] = k
	m.mu.Unlock()

	logger.InfoContext(ctx, "knot tied", "spec", k.Description(), "monitored", k.monitoredLocked(), "warnings", len(k.Warnings()))
	m.emitTie(ctx, k)

	if seedErr != nil {
		m.reportError(ctx, k, seedErr, true)
		return k, fmt.Errorf("seed initial value: %w", seedErr)
	}
	return k, nil
}

func (m *Manager) tieSimple(ctx context.Context, k *Knot) error {
	k.leftSide = m.resolve(ctx, k, k.left, k.spec.Left)
	k.rightSide = m.resolve(ctx, k, k.right, k.spec.Right)
	k.tied.Store(true)

	// The right side is the source of truth for the initial value.
	seedErr := k.schedule(ctx, pendingRightToLeft)

	m.monitor(ctx, k, k.leftSide, func() { k.onChange(domain.LeftToRight) })
	m.monitor(ctx, k, k.rightSide, func() { k.onChange(domain.RightToLeft) })
	return seedErr
}

func (m *Manager) tieComposite(ctx context.Context, k *Knot, composite *domain.AccessPoint, compositeTarget any, plain *domain.AccessPoint, plainTarget any, dir domain.Direction) error {
	k.composite = composite
	k.direction = dir
	k.plain = m.resolve(ctx, k, plainTarget, plain)
	for _, child := range composite.Children {
		k.children = append(k.children, m.resolve(ctx, k, compositeTarget, child))
	}
	k.tied.Store(true)

	// One callback shared by every child, so untie can detach it symmetrically.
	sub := ports.NewSubscription(k.onAggregateChange)
	for _, child := range k.children {
		m.subscribe(ctx, k, child, sub)
	}

	return k.schedule(ctx, pendingAggregate)
}

// Untie releases every subscription held by the knot. Subsequent changes on
// either target no longer propagate.
func (m *Manager) Untie(ctx context.Context, k *Knot) error {
	if k == nil {
		return domain.ErrNotTied
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.tied.CompareAndSwap(true, false) {
		return fmt.Errorf("untie %s: %w", k.id, domain.ErrNotTied)
	}

	var errs []error
	for _, s := range k.sides() {
		if err := m.unsubscribe(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	delete(m.knots, k.id)
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "knot untied", "knot_id", k.id, "spec", k.Description(), "propagations", k.Propagations())
	m.emitUntie(ctx, k)

	if err := errors.Join(errs...); err != nil {
		m.reportError(ctx, k, err, false)
		return fmt.Errorf("untie %s: %w", k.id, err)
	}
	return nil
}

// Get returns a tied knot by ID.
func (m *Manager) Get(id string) (*Knot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.knots[id]
	return k, ok
}

// Knots returns all tied knots, oldest first.
func (m *Manager) Knots() []*Knot {
	m.mu.RLock()
	knots := make([]*Knot, 0, len(m.knots))
	for _, k := range m.knots {
		knots = append(knots, k)
	}
	m.mu.RUnlock()

	slices.SortFunc(knots, func(a, b *Knot) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return knots
}

// Registry returns the provider registry used for resolution.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// Symbols returns the transform table.
func (m *Manager) Symbols() *symbols.Table { return m.symbols }

// checkSymbols resolves every transform the spec references.
func (m *Manager) checkSymbols(spec *domain.Spec) error {
	for _, ap := range []*domain.AccessPoint{spec.Left, spec.Right} {
		if err := m.checkAccessPoint(ap); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) checkAccessPoint(ap *domain.AccessPoint) error {
	if ap.Composite {
		for _, child := range ap.Children {
			if err := m.checkAccessPoint(child); err != nil {
				return err
			}
		}
		if !m.symbols.Has(ap.Aggregate) {
			return &domain.SymbolError{Symbol: ap.Aggregate, AccessPoint: label(ap)}
		}
		return nil
	}
	for _, name := range ap.Pipes {
		if !m.symbols.Has(name) {
			return &domain.SymbolError{Symbol: name, AccessPoint: ap.Name}
		}
	}
	return nil
}

func (m *Manager) resolve(ctx context.Context, k *Knot, target any, ap *domain.AccessPoint) *side {
	p, err := m.registry.Resolve(target, ap.Name)
	if err != nil {
		k.warn(err)
		m.reportError(ctx, k, err, false)
	}
	return &side{target: target, ap: ap, provider: p}
}

func (m *Manager) monitor(ctx context.Context, k *Knot, s *side, fn ports.ChangeFunc) {
	m.subscribe(ctx, k, s, ports.NewSubscription(fn))
}

func (m *Manager) subscribe(ctx context.Context, k *Knot, s *side, sub *ports.Subscription) {
	mon, ok := s.provider.(ports.Monitorer)
	if !ok || !s.provider.DoesSupportMonitoring(s.target, s.ap.Name) {
		return
	}
	if err := mon.Monitor(ctx, s.target, s.ap.Name, sub); err != nil {
		err = &domain.PropagationError{Stage: domain.StageMonitor, AccessPoint: s.ap.Name, Err: err}
		k.warn(err)
		m.reportError(ctx, k, err, false)
		return
	}
	s.sub = sub
}

func (m *Manager) unsubscribe(ctx context.Context, s *side) error {
	if s == nil || s.sub == nil {
		return nil
	}
	sub := s.sub
	s.sub = nil
	mon, ok := s.provider.(ports.Monitorer)
	if !ok {
		return nil
	}
	if err := mon.StopMonitoring(ctx, s.target, s.ap.Name, sub); err != nil {
		return &domain.PropagationError{Stage: domain.StageMonitor, AccessPoint: s.ap.Name, Err: err}
	}
	return nil
}

func (k *Knot) monitoredLocked() int {
	n := 0
	for _, s := range k.sides() {
		if s.sub != nil {
			n++
		}
	}
	return n
}
