package runtime

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/dsl"
	"github.com/aretw0/knot/pkg/ports"
)

// State is the lifecycle state of a knot.
type State string

const (
	StateUntied State = "untied"
	StateTied   State = "tied"
)

// side is one access point of a knot bound to its target and provider.
type side struct {
	target   any
	ap       *domain.AccessPoint
	provider ports.Provider
	// sub is set while the side is monitored.
	sub *ports.Subscription

	// written is the last value the knot wrote into this side, valid while
	// wrote is set. Only the holder of the knot's propagation guard touches them.
	written any
	wrote   bool
}

// Knot is a live binding between two targets created by Manager.Tie.
// Descriptors in the spec are never mutated, so one spec may back many knots.
type Knot struct {
	id        string
	spec      *domain.Spec
	left      any
	right     any
	createdAt time.Time
	seq       uint64

	// simple knots use leftSide and rightSide; composite knots use plain and children.
	leftSide  *side
	rightSide *side
	plain     *side
	children  []*side
	composite *domain.AccessPoint
	direction domain.Direction

	manager *Manager

	mu       sync.Mutex // serializes tie/untie
	tied     atomic.Bool
	inFlight atomic.Bool
	pending  atomic.Uint32

	suppressed   atomic.Uint64
	propagations atomic.Uint64

	warnMu   sync.Mutex
	warnings []error
}

// ID returns the unique knot identifier.
func (k *Knot) ID() string { return k.id }

// Spec returns the binding spec the knot was tied with.
func (k *Knot) Spec() *domain.Spec { return k.spec }

// Left returns the left target.
func (k *Knot) Left() any { return k.left }

// Right returns the right target.
func (k *Knot) Right() any { return k.right }

// CreatedAt returns when the knot was tied.
func (k *Knot) CreatedAt() time.Time { return k.createdAt }

// Description renders the spec in binding syntax.
func (k *Knot) Description() string { return dsl.Format(k.spec) }

// State returns the current lifecycle state.
func (k *Knot) State() State {
	if k.tied.Load() {
		return StateTied
	}
	return StateUntied
}

// Tied reports whether the knot is still propagating changes.
func (k *Knot) Tied() bool { return k.tied.Load() }

// Composite reports whether one side of the knot is composite.
func (k *Knot) Composite() bool { return k.composite != nil }

// Warnings returns the non-fatal issues found while tying, such as
// access points no provider claimed.
func (k *Knot) Warnings() []error {
	k.warnMu.Lock()
	defer k.warnMu.Unlock()
	return slices.Clone(k.warnings)
}

// Suppressed counts change notifications dropped as echoes of the knot's own writes.
func (k *Knot) Suppressed() uint64 { return k.suppressed.Load() }

// Propagations counts values successfully written across the knot.
func (k *Knot) Propagations() uint64 { return k.propagations.Load() }

// Monitored returns the number of live provider subscriptions held by the knot.
func (k *Knot) Monitored() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.monitoredLocked()
}

func (k *Knot) sides() []*side {
	if k.composite != nil {
		return append([]*side{k.plain}, k.children...)
	}
	return []*side{k.leftSide, k.rightSide}
}

func (k *Knot) warn(err error) {
	k.warnMu.Lock()
	k.warnings = append(k.warnings, err)
	k.warnMu.Unlock()
}

func (k *Knot) event(typ domain.EventType) domain.KnotEvent {
	return domain.KnotEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      typ,
			KnotID:    k.id,
		},
		Left:  k.left,
		Right: k.right,
		Spec:  k.spec,
	}
}
