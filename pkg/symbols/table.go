// Package symbols resolves transform references used in binding specifications.
//
// A transform reference in binding text ("text>trim:name") is an opaque name. The
// Table maps it to a Transform. Inline transform blocks are registered under
// generated names carrying InlinePrefix, so they can never collide with names
// declared by the host.
package symbols

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aretw0/knot/pkg/domain"
)

// InlinePrefix is reserved for transforms generated from inline blocks.
const InlinePrefix = "__knot_global."

var (
	// ErrReservedName is returned when registering a name under InlinePrefix.
	ErrReservedName = errors.New("symbol name uses reserved prefix")
	// ErrInvalidSymbol is returned for empty names or nil transforms.
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// Transform converts a value. ap is the access point the transform is applied for,
// so a transform may inspect the descriptor; most ignore it. Aggregate transforms
// receive the children's values as a []any.
type Transform func(ap *domain.AccessPoint, value any) (any, error)

// Func adapts a plain value function to a Transform.
func Func(fn func(value any) any) Transform {
	return func(_ *domain.AccessPoint, value any) (any, error) {
		return fn(value), nil
	}
}

// Table maps transform references to callables.
// Entries are never removed. Safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Transform
	seq     atomic.Uint64
}

// NewTable creates a new empty table.
func NewTable() *Table {
	return &Table{
		entries: make(map[string]Transform),
	}
}

// Register adds a named transform. If the name exists, it is overwritten.
func (t *Table) Register(name string, fn Transform) error {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, name)
	}
	if strings.HasPrefix(name, InlinePrefix) {
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[name] = fn
	return nil
}

// RegisterFunc registers a plain value function.
func (t *Table) RegisterFunc(name string, fn func(value any) any) error {
	if fn == nil {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, name)
	}
	return t.Register(name, Func(fn))
}

// RegisterInline stores fn under a freshly generated reserved name and returns it.
func (t *Table) RegisterInline(fn Transform) string {
	name := InlinePrefix + strconv.FormatUint(t.seq.Add(1), 10)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[name] = fn
	return name
}

// Lookup returns the transform registered under name.
func (t *Table) Lookup(name string) (Transform, bool) {
	t.mu.RLock()
	fn, ok := t.entries[name]
	t.mu.RUnlock()

	if !ok || fn == nil {
		return nil, false
	}
	return fn, true
}

// Resolve is Lookup returning a *domain.SymbolError for unknown names.
func (t *Table) Resolve(name string) (Transform, error) {
	fn, ok := t.Lookup(name)
	if !ok {
		return nil, &domain.SymbolError{Symbol: name}
	}
	return fn, nil
}

// Has reports whether name is registered.
func (t *Table) Has(name string) bool {
	_, ok := t.Lookup(name)
	return ok
}

// Names returns all registered names in lexical order.
func (t *Table) Names() []string {
	t.mu.RLock()
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	t.mu.RUnlock()

	sort.Strings(names)
	return names
}

var (
	defaultTable *Table
	defaultOnce  sync.Once
)

// Default returns a process-wide table preloaded with the builtins.
// It exists for top-level convenience; engines take an explicit table.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable = NewTable()
		RegisterBuiltins(defaultTable)
	})
	return defaultTable
}
