package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/knot"
	"github.com/aretw0/knot/internal/compiler"
	"github.com/aretw0/knot/internal/config"
	"github.com/aretw0/knot/internal/validator"
	"github.com/aretw0/knot/pkg/adapters/lua"
	redisadapter "github.com/aretw0/knot/pkg/adapters/redis"
	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/observability"
	"github.com/aretw0/knot/pkg/persistence/middleware"
	"github.com/aretw0/knot/pkg/registry"
	"github.com/aretw0/knot/pkg/symbols"
)

// Runtime holds what outlives a bindings reload: the Redis provider, the
// evaluator and every observer. Each load of the bindings file gets its own
// engine and symbol table through a Session.
type Runtime struct {
	Registry  *registry.Registry
	Redis     *redisadapter.Provider
	Evaluator *lua.Evaluator
	Recorder  *observability.Recorder
	Metrics   *prometheus.Registry
	Tracer    *observability.TracerProvider

	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	session     atomic.Pointer[Session]
	inspectAddr string
}

// createRuntime wires the Redis provider and the observers from cfg.
func createRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger, debug bool) (*Runtime, error) {
	var mws []middleware.Middleware
	if len(cfg.Redis.Mask) > 0 {
		mask, err := middleware.NewPIIMiddleware(cfg.Redis.Mask)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mask)
	}
	key, err := cfg.Redis.Key()
	if err != nil {
		return nil, err
	}
	if key != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}

	tracer, err := observability.NewTracerProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("error initializing tracing: %w", err)
	}

	metrics := prometheus.NewRegistry()
	m, err := observability.NewMetrics(metrics)
	if err != nil {
		return nil, fmt.Errorf("error initializing metrics: %w", err)
	}

	recorder := observability.NewRecorder()
	hooks := []domain.LifecycleHooks{
		recorder.Hooks(),
		m.Hooks(),
		observability.NewTracing(tracer.Tracer()).Hooks(),
	}
	if debug {
		hooks = append(hooks, createDebugHooks(logger))
	}

	provider := redisadapter.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
		redisadapter.WithPrefix(cfg.Redis.Prefix),
		redisadapter.WithLogger(logger),
	)
	reg := registry.NewRegistry(registry.WithLogger(logger))
	reg.Register(middleware.Chain(provider, mws...))

	return &Runtime{
		Registry:  reg,
		Redis:     provider,
		Evaluator: lua.New(lua.WithLogger(logger)),
		Recorder:  recorder,
		Metrics:   metrics,
		Tracer:    tracer,
		hooks:     observability.Combine(hooks...),
		logger:    logger,
	}, nil
}

// compile reads the bindings file into a fresh engine. Plan issues and
// validation problems are logged; only an unreadable file is an error.
func (rt *Runtime) compile(path string) (*knot.Engine, *compiler.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading bindings: %w", err)
	}

	table := symbols.NewTable()
	symbols.RegisterBuiltins(table)

	plan, err := compiler.NewParser(table,
		compiler.WithEvaluator(rt.Evaluator),
		compiler.WithLogger(rt.logger),
	).Parse(data)
	if err != nil {
		return nil, nil, err
	}
	if err := validator.ValidatePlan(plan, table); err != nil {
		rt.logger.Warn("Bindings file has problems", "path", path, "err", err)
	}

	engine := knot.New(
		knot.WithRegistry(rt.Registry),
		knot.WithSymbols(table),
		knot.WithEvaluator(rt.Evaluator),
		knot.WithLifecycleHooks(rt.hooks),
		knot.WithLogger(rt.logger),
	)
	return engine, plan, nil
}

// Knot returns a knot of the current session.
func (rt *Runtime) Knot(id string) (*knot.Knot, bool) {
	s := rt.session.Load()
	if s == nil {
		return nil, false
	}
	return s.Engine.Knot(id)
}

// InspectAddr is the address the inspector listens on, if it was started.
func (rt *Runtime) InspectAddr() string {
	return rt.inspectAddr
}

// Session returns the bindings currently tied, or nil.
func (rt *Runtime) Session() *Session {
	return rt.session.Load()
}

// Close unties the current session and releases every resource.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if s := rt.session.Swap(nil); s != nil {
		errs = append(errs, s.Close(ctx))
	}
	errs = append(errs, rt.Redis.Close())
	errs = append(errs, rt.Tracer.Shutdown(ctx))
	rt.Recorder.Close()
	return errors.Join(errs...)
}
