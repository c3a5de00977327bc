package runtime_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/knot/internal/runtime"
	"github.com/aretw0/knot/pkg/adapters/memory"
	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/dsl"
	"github.com/aretw0/knot/pkg/registry"
	"github.com/aretw0/knot/pkg/symbols"
)

type fixture struct {
	manager *runtime.Manager
	table   *symbols.Table
	reg     *registry.Registry
}

func newFixture(t *testing.T, opts ...runtime.Option) *fixture {
	t.Helper()
	table := symbols.NewTable()
	symbols.RegisterBuiltins(table)

	reg := registry.NewRegistry()
	reg.Register(memory.NewProvider())

	return &fixture{
		manager: runtime.NewManager(reg, table, opts...),
		table:   table,
		reg:     reg,
	}
}

func spec(t *testing.T, input string) *domain.Spec {
	t.Helper()
	res := dsl.NewParser(symbols.NewTable()).Parse(input)
	require.NoError(t, res.Err())
	require.Len(t, res.Specs, 1)
	return res.Specs[0]
}

func value(e *memory.Entity, prop string) any {
	v, _ := e.Get(prop)
	return v
}

func TestTie_Simple(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	form := memory.NewEntity("form", map[string]any{"text": "stale"})
	user := memory.NewEntity("user", map[string]any{"name": "ada"})

	k, err := f.manager.Tie(ctx, form, user, spec(t, "text : name"))
	require.NoError(t, err)
	assert.True(t, k.Tied())
	assert.Equal(t, runtime.StateTied, k.State())
	assert.Empty(t, k.Warnings())
	assert.Equal(t, 2, k.Monitored())

	t.Run("Initial Value Comes From Right", func(t *testing.T) {
		assert.Equal(t, "ada", value(form, "text"))
	})

	t.Run("Right To Left", func(t *testing.T) {
		user.Set("name", "grace")
		assert.Equal(t, "grace", value(form, "text"))
	})

	t.Run("Left To Right", func(t *testing.T) {
		form.Set("text", "linus")
		assert.Equal(t, "linus", value(user, "name"))
	})

	t.Run("Value Written Earlier Still Propagates", func(t *testing.T) {
		user.Set("name", "x")
		assert.Equal(t, "x", value(form, "text"))
		user.Set("name", "linus")
		assert.Equal(t, "linus", value(form, "text"))
	})
}

func TestTie_PipesApplyOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	form := memory.NewEntity("form", nil)
	user := memory.NewEntity("user", map[string]any{"name": "  ada "})

	_, err := f.manager.Tie(ctx, form, user, spec(t, "text : name > trim > toUpper"))
	require.NoError(t, err)
	assert.Equal(t, "ADA", value(form, "text"))

	user.Set("name", " grace")
	assert.Equal(t, "GRACE", value(form, "text"))
}

func TestTie_Composite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	var calls [][]any
	require.NoError(t, f.table.Register("collect", func(_ *domain.AccessPoint, v any) (any, error) {
		values := v.([]any)
		mu.Lock()
		calls = append(calls, append([]any(nil), values...))
		mu.Unlock()
		return symbols.Truthy(values[0]) && symbols.Truthy(values[1]), nil
	}))

	button := memory.NewEntity("button", nil)
	session := memory.NewEntity("session", map[string]any{"isLogged": true, "userId": 0})

	k, err := f.manager.Tie(ctx, button, session,
		spec(t, "isEnabled : (isLogged & userId > trueWhenNot0) > collect"))
	require.NoError(t, err)
	assert.True(t, k.Composite())
	assert.Equal(t, 2, k.Monitored(), "plain side is not monitored for composites")

	require.Len(t, calls, 1, "seeded once on tie")
	assert.Equal(t, []any{true, false}, calls[0])
	assert.Equal(t, false, value(button, "isEnabled"))

	session.Set("userId", 42)
	require.Len(t, calls, 2)
	assert.Equal(t, []any{true, true}, calls[1], "aggregate sees every child in declared order")
	assert.Equal(t, true, value(button, "isEnabled"))

	session.Set("isLogged", false)
	require.Len(t, calls, 3)
	assert.Equal(t, []any{false, true}, calls[2])
	assert.Equal(t, false, value(button, "isEnabled"))

	require.NoError(t, f.manager.Untie(ctx, k))
	assert.Zero(t, session.Watchers("isLogged"))
	assert.Zero(t, session.Watchers("userId"))

	session.Set("isLogged", true)
	assert.Len(t, calls, 3)
}

func TestTie_CompositeOnLeft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	names := memory.NewEntity("names", map[string]any{"first": "Ada", "last": "Lovelace"})
	label := memory.NewEntity("label", nil)

	var dirs []domain.Direction
	f.manager = runtime.NewManager(f.reg, f.table, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnChange: func(_ context.Context, e *domain.ChangeEvent) { dirs = append(dirs, e.Direction) },
	}))

	_, err := f.manager.Tie(ctx, names, label, spec(t, "(first & last) > join : text"))
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", value(label, "text"))
	assert.Equal(t, []domain.Direction{domain.LeftToRight}, dirs)
}

func TestTie_UnresolvedProviderIsInert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	form := memory.NewEntity("form", map[string]any{"text": "kept"})

	var reported []error
	f.manager = runtime.NewManager(f.reg, f.table, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnError: func(_ context.Context, e *domain.ErrorEvent) { reported = append(reported, e.Err) },
	}))

	k, err := f.manager.Tie(ctx, form, "no provider claims strings", spec(t, "text : name"))
	require.NoError(t, err)
	assert.True(t, k.Tied())

	require.Len(t, k.Warnings(), 1)
	assert.ErrorIs(t, k.Warnings()[0], domain.ErrNoProvider)
	var resErr *domain.ResolutionError
	require.ErrorAs(t, k.Warnings()[0], &resErr)
	assert.Equal(t, "name", resErr.Name)
	require.Len(t, reported, 1)

	// The inert side reads nil, which is what the left side receives.
	assert.Nil(t, value(form, "text"))

	form.Set("text", "ignored")
	require.NoError(t, f.manager.Untie(ctx, k))
}

func TestTie_UnknownSymbolFailsBeforeWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	form := memory.NewEntity("form", map[string]any{"text": "untouched"})
	user := memory.NewEntity("user", map[string]any{"name": "ada"})

	cases := []string{
		"text : name > validateName",
		"text > nope : name",
		"text : (name & age > nope) > join",
		"text : (name & age) > nope",
	}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			k, err := f.manager.Tie(ctx, form, user, spec(t, input))
			assert.Nil(t, k)
			assert.ErrorIs(t, err, domain.ErrUnknownSymbol)

			var symErr *domain.SymbolError
			require.ErrorAs(t, err, &symErr)
			assert.NotEmpty(t, symErr.Symbol)

			assert.Equal(t, "untouched", value(form, "text"))
			assert.Zero(t, form.Watchers("text"))
			assert.Zero(t, user.Watchers("name"))
		})
	}
	assert.Empty(t, f.manager.Knots())
}

func TestTie_CompositeConflict(t *testing.T) {
	f := newFixture(t)
	bad := &domain.Spec{
		Left:  &domain.AccessPoint{Composite: true, Aggregate: "join", Children: []*domain.AccessPoint{{Name: "a"}}},
		Right: &domain.AccessPoint{Composite: true, Aggregate: "join", Children: []*domain.AccessPoint{{Name: "b"}}},
	}
	_, err := f.manager.Tie(context.Background(), memory.NewEntity("l", nil), memory.NewEntity("r", nil), bad)
	assert.ErrorIs(t, err, domain.ErrCompositeConflict)

	_, err = f.manager.Tie(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrSyntax)
}

func TestUntie(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	form := memory.NewEntity("form", nil)
	user := memory.NewEntity("user", map[string]any{"name": "ada"})

	k, err := f.manager.Tie(ctx, form, user, spec(t, "text : name"))
	require.NoError(t, err)
	_, ok := f.manager.Get(k.ID())
	require.True(t, ok)

	require.NoError(t, f.manager.Untie(ctx, k))
	assert.False(t, k.Tied())
	assert.Equal(t, runtime.StateUntied, k.State())
	assert.Zero(t, k.Monitored())
	assert.Zero(t, form.Watchers("text"))
	assert.Zero(t, user.Watchers("name"))

	_, ok = f.manager.Get(k.ID())
	assert.False(t, ok)

	user.Set("name", "grace")
	assert.Equal(t, "ada", value(form, "text"), "no propagation after untie")
	form.Set("text", "linus")
	assert.Equal(t, "grace", value(user, "name"))

	err = f.manager.Untie(ctx, k)
	assert.ErrorIs(t, err, domain.ErrNotTied)
	assert.ErrorIs(t, f.manager.Untie(ctx, nil), domain.ErrNotTied)
}

func TestTie_WriteReceiveOnlySide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	form := memory.NewEntity("form", nil)
	plain := map[string]any{"name": "ada"}

	k, err := f.manager.Tie(ctx, form, plain, spec(t, "text : name"))
	require.NoError(t, err)
	assert.Equal(t, 1, k.Monitored())
	assert.Equal(t, "ada", value(form, "text"))

	form.Set("text", "grace")
	assert.Equal(t, "grace", plain["name"])

	require.NoError(t, f.manager.Untie(ctx, k), "sides never monitored are skipped")
}

func TestTie_TerminatesUnderUnconditionalNotify(t *testing.T) {
	table := symbols.NewTable()
	symbols.RegisterBuiltins(table)
	reg := registry.NewRegistry()
	reg.Register(memory.NewProvider(memory.WithAlwaysNotify()))
	m := runtime.NewManager(reg, table)
	ctx := context.Background()

	form := memory.NewEntity("form", nil)
	user := memory.NewEntity("user", map[string]any{"name": "ada"})

	k, err := m.Tie(ctx, form, user, spec(t, "text > toUpper : name > toLower"))
	require.NoError(t, err)
	assert.Equal(t, "ada", value(form, "text"))

	writes := k.Propagations()
	form.Set("text", "Grace")

	assert.Equal(t, "GRACE", value(user, "name"))
	assert.Equal(t, writes+1, k.Propagations(), "the echo is dropped, not bounced")
	assert.Positive(t, k.Suppressed())

	require.NoError(t, m.Untie(ctx, k))
}

func TestTie_CompositeChangeDuringAggregateIsNotLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var blocking atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, f.table.Register("sum", func(_ *domain.AccessPoint, v any) (any, error) {
		if blocking.CompareAndSwap(true, false) {
			close(entered)
			<-release
		}
		total := 0
		for _, x := range v.([]any) {
			n, _ := x.(int)
			total += n
		}
		return total, nil
	}))

	session := memory.NewEntity("session", map[string]any{"a": 1, "b": 1})
	form := memory.NewEntity("form", nil)
	k, err := f.manager.Tie(ctx, form, session, spec(t, "total : (a & b) > sum"))
	require.NoError(t, err)
	assert.Equal(t, 2, value(form, "total"))

	blocking.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		session.Set("a", 2)
	}()
	<-entered

	// Lands while the aggregate for a is still running.
	session.Set("b", 5)
	close(release)
	<-done

	assert.Equal(t, 7, value(form, "total"))
	assert.Zero(t, k.Suppressed())
	require.NoError(t, f.manager.Untie(ctx, k))
}

func TestTie_ConcurrentEditsConverge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var blocking atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, f.table.Register("hold", func(_ *domain.AccessPoint, v any) (any, error) {
		if blocking.CompareAndSwap(true, false) {
			close(entered)
			<-release
		}
		return v, nil
	}))

	form := memory.NewEntity("form", nil)
	user := memory.NewEntity("user", map[string]any{"name": "ada"})
	k, err := f.manager.Tie(ctx, form, user, spec(t, "text : name > hold"))
	require.NoError(t, err)

	blocking.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		user.Set("name", "grace")
	}()
	<-entered

	form.Set("text", "linus")
	close(release)
	<-done

	// The running propagation writes last; both sides agree afterwards.
	assert.Equal(t, "grace", value(form, "text"))
	assert.Equal(t, "grace", value(user, "name"))
	require.NoError(t, f.manager.Untie(ctx, k))
}

func TestTie_SeedFailureKeepsKnot(t *testing.T) {
	f := newFixture(t)
	f.reg.Register(&failingProvider{err: errors.New("device unplugged")})
	ctx := context.Background()
	form := memory.NewEntity("form", nil)

	k, err := f.manager.Tie(ctx, form, failingTarget{}, spec(t, "text : level"))
	require.Error(t, err)
	require.NotNil(t, k)
	assert.True(t, k.Tied())

	var propErr *domain.PropagationError
	require.ErrorAs(t, err, &propErr)
	assert.Equal(t, domain.StageRead, propErr.Stage)
	assert.Equal(t, domain.RightToLeft, propErr.Direction)
	assert.Equal(t, "level", propErr.AccessPoint)
	assert.Contains(t, err.Error(), "device unplugged")

	require.NoError(t, f.manager.Untie(ctx, k))
}

func TestTie_TransformErrorShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.table.Register("reject", func(_ *domain.AccessPoint, v any) (any, error) {
		if s, _ := v.(string); strings.HasPrefix(s, "bad") {
			return nil, errors.New("rejected")
		}
		return v, nil
	}))

	var errs []*domain.ErrorEvent
	m := runtime.NewManager(f.reg, f.table, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnError: func(_ context.Context, e *domain.ErrorEvent) { errs = append(errs, e) },
	}))

	form := memory.NewEntity("form", nil)
	user := memory.NewEntity("user", map[string]any{"name": "ok"})
	k, err := m.Tie(ctx, form, user, spec(t, "text : name > reject"))
	require.NoError(t, err)

	user.Set("name", "bad value")
	assert.Equal(t, "ok", value(form, "text"), "failed transform writes nothing")
	require.Len(t, errs, 1)
	assert.False(t, errs[0].Fatal)
	assert.Equal(t, k.ID(), errs[0].KnotID)

	var propErr *domain.PropagationError
	require.ErrorAs(t, errs[0].Err, &propErr)
	assert.Equal(t, domain.StageTransform, propErr.Stage)
	assert.Equal(t, "reject", propErr.Symbol)
}

func TestManager_Hooks(t *testing.T) {
	var mu sync.Mutex
	var events []domain.EventType
	record := func(typ domain.EventType) {
		mu.Lock()
		events = append(events, typ)
		mu.Unlock()
	}
	f := newFixture(t, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnTie:    func(_ context.Context, e *domain.KnotEvent) { record(e.Type) },
		OnUntie:  func(_ context.Context, e *domain.KnotEvent) { record(e.Type) },
		OnChange: func(_ context.Context, e *domain.ChangeEvent) { record(e.Type) },
	}))
	ctx := context.Background()

	k, err := f.manager.Tie(ctx, memory.NewEntity("l", nil), memory.NewEntity("r", map[string]any{"v": 1}), spec(t, "v : v"))
	require.NoError(t, err)
	require.NoError(t, f.manager.Untie(ctx, k))

	assert.Equal(t, []domain.EventType{domain.EventChange, domain.EventTie, domain.EventUntie}, events)
}

func TestManager_Knots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := spec(t, "v : v")

	var ids []string
	for i := 0; i < 3; i++ {
		k, err := f.manager.Tie(ctx, memory.NewEntity("l", nil), memory.NewEntity("r", nil), s)
		require.NoError(t, err)
		ids = append(ids, k.ID())
	}

	knots := f.manager.Knots()
	require.Len(t, knots, 3)
	for i, k := range knots {
		assert.Equal(t, ids[i], k.ID())
		assert.Same(t, s, k.Spec(), "one spec backs many knots")
		assert.Equal(t, "v : v", k.Description())
	}
}

type failingTarget struct{}

type failingProvider struct{ err error }

func (p *failingProvider) DoesSupport(target any, _ string) bool {
	_, ok := target.(failingTarget)
	return ok
}

func (p *failingProvider) GetValue(context.Context, any, string) (any, error) {
	return nil, p.err
}

func (p *failingProvider) SetValue(context.Context, any, string, any) error { return p.err }

func (p *failingProvider) DoesSupportMonitoring(any, string) bool { return false }
