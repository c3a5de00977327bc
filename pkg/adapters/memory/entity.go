package memory

import (
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/aretw0/knot/pkg/ports"
)

// Entity is an observable property bag. Safe for concurrent use.
// Change callbacks run on the goroutine performing the write, after the
// entity lock has been released.
type Entity struct {
	name string

	mu       sync.RWMutex
	props    map[string]any
	watchers map[string][]*ports.Subscription
}

// NewEntity creates an entity seeded with props.
func NewEntity(name string, props map[string]any) *Entity {
	e := &Entity{
		name:     name,
		props:    make(map[string]any, len(props)),
		watchers: make(map[string][]*ports.Subscription),
	}
	maps.Copy(e.props, props)
	return e
}

// Name returns the label the entity was created with.
func (e *Entity) Name() string { return e.name }

// Get returns a property value.
func (e *Entity) Get(prop string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.props[prop]
	return v, ok
}

// Set writes a property and notifies its watchers if the value changed.
func (e *Entity) Set(prop string, value any) bool {
	changed := e.store(prop, value)
	if changed {
		e.notify(prop)
	}
	return changed
}

// Snapshot returns a copy of all properties.
func (e *Entity) Snapshot() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.props)
}

// Watchers returns the number of subscriptions on a property.
func (e *Entity) Watchers(prop string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.watchers[prop])
}

func (e *Entity) store(prop string, value any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, ok := e.props[prop]
	if ok && reflect.DeepEqual(old, value) {
		return false
	}
	e.props[prop] = value
	return true
}

func (e *Entity) notify(prop string) {
	e.mu.RLock()
	subs := slices.Clone(e.watchers[prop])
	e.mu.RUnlock()

	for _, sub := range subs {
		sub.Notify()
	}
}

func (e *Entity) watch(prop string, sub *ports.Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if slices.Contains(e.watchers[prop], sub) {
		return
	}
	e.watchers[prop] = append(e.watchers[prop], sub)
}

func (e *Entity) unwatch(prop string, sub *ports.Subscription) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.watchers[prop]
	i := slices.Index(subs, sub)
	if i < 0 {
		return false
	}
	subs = slices.Delete(subs, i, i+1)
	if len(subs) == 0 {
		delete(e.watchers, prop)
	} else {
		e.watchers[prop] = subs
	}
	return true
}
