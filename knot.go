package knot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/knot/internal/logging"
	"github.com/aretw0/knot/internal/runtime"
	"github.com/aretw0/knot/pkg/adapters/memory"
	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/dsl"
	"github.com/aretw0/knot/pkg/ports"
	"github.com/aretw0/knot/pkg/registry"
	"github.com/aretw0/knot/pkg/symbols"
)

// Knot is a live binding between two targets.
type Knot = runtime.Knot

// Engine is the high-level entry point for the Knot library.
// It owns a provider registry and a symbol table and ties bindings between them.
type Engine struct {
	registry  *registry.Registry
	symbols   *symbols.Table
	evaluator ports.Evaluator
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	builtins  bool

	manager *runtime.Manager
	parser  *dsl.Parser
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRegistry shares an existing provider registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// WithSymbols shares an existing symbol table. Builtins are not added to it.
func WithSymbols(table *symbols.Table) Option {
	return func(e *Engine) {
		e.symbols = table
	}
}

// WithEvaluator enables inline transform blocks in binding text.
func WithEvaluator(eval ports.Evaluator) Option {
	return func(e *Engine) {
		e.evaluator = eval
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithBuiltins controls whether the engine's own symbol table is preloaded
// with the builtin transforms (default true).
func WithBuiltins(enabled bool) Option {
	return func(e *Engine) {
		e.builtins = enabled
	}
}

// New initializes a new Engine.
func New(opts ...Option) *Engine {
	eng := &Engine{builtins: true}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.registry == nil {
		eng.registry = registry.NewRegistry(registry.WithLogger(eng.logger))
	}
	if eng.symbols == nil {
		eng.symbols = symbols.NewTable()
		if eng.builtins {
			symbols.RegisterBuiltins(eng.symbols)
		}
	}

	parserOpts := []dsl.Option{dsl.WithLogger(eng.logger)}
	if eng.evaluator != nil {
		parserOpts = append(parserOpts, dsl.WithEvaluator(eng.evaluator))
	}
	eng.parser = dsl.NewParser(eng.symbols, parserOpts...)
	eng.manager = runtime.NewManager(eng.registry, eng.symbols,
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(eng.hooks),
	)
	return eng
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns a process-wide engine using the default symbol table and an
// in-memory provider. Nothing in the library depends on it.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEngine = New(WithSymbols(symbols.Default()))
		defaultEngine.Register(memory.NewProvider())
	})
	return defaultEngine
}

// Register adds a provider. Later registrations take precedence.
func (e *Engine) Register(p ports.Provider) {
	e.registry.Register(p)
}

// RegisterTransform adds a named transform usable in pipes and aggregates.
func (e *Engine) RegisterTransform(name string, fn symbols.Transform) error {
	return e.symbols.Register(name, fn)
}

// Parse converts binding text into specs. Invalid clauses are reported in the
// result without affecting the others.
func (e *Engine) Parse(input string) *dsl.Result {
	return e.parser.Parse(input)
}

// Tie binds left and right according to spec.
func (e *Engine) Tie(ctx context.Context, left, right any, spec *domain.Spec) (*Knot, error) {
	return e.manager.Tie(ctx, left, right, spec)
}

// Untie releases a knot.
func (e *Engine) Untie(ctx context.Context, k *Knot) error {
	return e.manager.Untie(ctx, k)
}

// Bind parses input and ties every valid clause between left and right.
// It returns the knots that were tied along with every parse and tie issue.
func (e *Engine) Bind(ctx context.Context, left, right any, input string) ([]*Knot, error) {
	res := e.parser.Parse(input)
	errs := slices.Clone(res.Issues)

	knots := make([]*Knot, 0, len(res.Specs))
	for _, spec := range res.Specs {
		k, err := e.manager.Tie(ctx, left, right, spec)
		if k != nil {
			knots = append(knots, k)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("tie %q: %w", spec.Source, err))
		}
	}
	return knots, errors.Join(errs...)
}

// UntieAll releases every given knot, continuing past failures.
func (e *Engine) UntieAll(ctx context.Context, knots ...*Knot) error {
	var errs []error
	for _, k := range knots {
		if err := e.manager.Untie(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Knots returns every tied knot, oldest first.
func (e *Engine) Knots() []*Knot {
	return e.manager.Knots()
}

// Knot returns a tied knot by ID.
func (e *Engine) Knot(id string) (*Knot, bool) {
	return e.manager.Get(id)
}

// Registry returns the provider registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Symbols returns the transform table.
func (e *Engine) Symbols() *symbols.Table {
	return e.symbols
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}
