// Package lua compiles inline transform snippets written in Lua.
//
// A snippet sees the incoming value as the global "value" and returns the
// transformed value:
//
//	text : count > {return value and 10 or 1}
//
// A bare expression is accepted as well ("value * 2"). Snippets run in a
// sandbox with the base, table, string and math libraries only.
package lua

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/aretw0/knot/internal/logging"
	"github.com/aretw0/knot/pkg/ports"
)

// DefaultTimeout bounds a single snippet run.
const DefaultTimeout = time.Second

// Evaluator implements ports.Evaluator on top of gopher-lua. Compiled chunks
// are cached by source text, so identical snippets are compiled once.
// Safe for concurrent use: every run borrows its own Lua state from a pool.
type Evaluator struct {
	cache   *gocache.Cache
	states  sync.Pool
	timeout time.Duration
	logger  *slog.Logger
}

var _ ports.Evaluator = (*Evaluator)(nil)

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithTimeout bounds each snippet run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

// WithLogger sets the logger used for compile diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates a Lua evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		cache:   gocache.New(gocache.NoExpiration, 0),
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
	}
	e.states.New = func() any { return newSandbox() }
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile turns a snippet into a callable.
func (e *Evaluator) Compile(code string) (ports.CompiledFunc, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("empty lua snippet")
	}

	proto, err := e.proto(code)
	if err != nil {
		return nil, err
	}
	return func(value any) (any, error) {
		return e.run(proto, value)
	}, nil
}

// Len returns the number of cached chunks.
func (e *Evaluator) Len() int {
	return e.cache.ItemCount()
}

func (e *Evaluator) proto(code string) (*lua.FunctionProto, error) {
	if cached, ok := e.cache.Get(code); ok {
		if proto, ok := cached.(*lua.FunctionProto); ok {
			return proto, nil
		}
	}

	// Try the snippet as an expression first, then as a chunk body.
	proto, err := compile("return " + code)
	if err != nil {
		var bodyErr error
		proto, bodyErr = compile(code)
		if bodyErr != nil {
			e.logger.Debug("lua compile failed", "snippet", code, "err", bodyErr)
			return nil, fmt.Errorf("compile lua snippet: %w", bodyErr)
		}
	}

	e.cache.Set(code, proto, gocache.NoExpiration)
	return proto, nil
}

func compile(src string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(src), "<inline>")
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, "<inline>")
}

func (e *Evaluator) run(proto *lua.FunctionProto, value any) (any, error) {
	L := e.states.Get().(*lua.LState)
	defer func() {
		L.SetTop(0)
		e.states.Put(L)
	}()

	if e.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		L.SetContext(ctx)
		defer L.RemoveContext()
	}

	L.SetGlobal("value", toLua(L, value))
	defer L.SetGlobal("value", lua.LNil)

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return nil, fmt.Errorf("run lua snippet: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return fromLua(ret), nil
}

func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	libs := []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}
