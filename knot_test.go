package knot_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/knot"
	"github.com/aretw0/knot/pkg/adapters/memory"
	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/ports"
	"github.com/aretw0/knot/pkg/symbols"
)

func newEngine(opts ...knot.Option) *knot.Engine {
	eng := knot.New(opts...)
	eng.Register(memory.NewProvider())
	return eng
}

func TestEngine_Bind(t *testing.T) {
	eng := newEngine()
	ctx := context.Background()

	form := memory.NewEntity("form", nil)
	user := memory.NewEntity("user", map[string]any{"name": " ada ", "age": 36})

	knots, err := eng.Bind(ctx, form, user, "text : name > trim > toUpper; isAdult : age > trueWhenNot0;")
	require.NoError(t, err)
	require.Len(t, knots, 2)
	assert.Len(t, eng.Knots(), 2)

	text, _ := form.Get("text")
	assert.Equal(t, "ADA", text)
	adult, _ := form.Get("isAdult")
	assert.Equal(t, true, adult)

	user.Set("age", 0)
	adult, _ = form.Get("isAdult")
	assert.Equal(t, false, adult)

	require.NoError(t, eng.UntieAll(ctx, knots...))
	assert.Empty(t, eng.Knots())
	assert.ErrorIs(t, eng.UntieAll(ctx, knots...), domain.ErrNotTied)
}

func TestEngine_BindReportsEveryIssue(t *testing.T) {
	eng := newEngine()
	ctx := context.Background()

	form := memory.NewEntity("form", nil)
	user := memory.NewEntity("user", map[string]any{"name": "ada"})

	knots, err := eng.Bind(ctx, form, user, "text : name; broken; (a&b)>p:(c&d)>q; label : name > missing")
	require.Len(t, knots, 1)
	require.Error(t, err)

	assert.ErrorIs(t, err, domain.ErrSyntax)
	assert.ErrorIs(t, err, domain.ErrCompositeConflict)
	assert.ErrorIs(t, err, domain.ErrUnknownSymbol)

	_, ok := eng.Knot(knots[0].ID())
	assert.True(t, ok)
}

func TestEngine_InlineTransforms(t *testing.T) {
	double := ports.EvaluatorFunc(func(code string) (ports.CompiledFunc, error) {
		if code != "value * 2" {
			return nil, errors.New("unsupported")
		}
		return func(v any) (any, error) { return v.(int) * 2, nil }, nil
	})

	t.Run("Disabled By Default", func(t *testing.T) {
		res := newEngine().Parse("a : b > {value * 2}")
		assert.ErrorIs(t, res.Err(), domain.ErrSyntax)
	})

	t.Run("With Evaluator", func(t *testing.T) {
		eng := newEngine(knot.WithEvaluator(double))
		left := memory.NewEntity("l", nil)
		right := memory.NewEntity("r", map[string]any{"b": 21})

		_, err := eng.Bind(context.Background(), left, right, "a : b > {value * 2}")
		require.NoError(t, err)
		v, _ := left.Get("a")
		assert.Equal(t, 42, v)
	})
}

func TestEngine_Options(t *testing.T) {
	t.Run("Builtins Can Be Disabled", func(t *testing.T) {
		eng := knot.New(knot.WithBuiltins(false))
		assert.Empty(t, eng.Symbols().Names())
	})

	t.Run("Shared Symbols", func(t *testing.T) {
		table := symbols.NewTable()
		require.NoError(t, table.RegisterFunc("shout", func(v any) any { return v.(string) + "!" }))
		eng := newEngine(knot.WithSymbols(table))
		assert.Same(t, table, eng.Symbols())

		left := memory.NewEntity("l", nil)
		_, err := eng.Bind(context.Background(), left, memory.NewEntity("r", map[string]any{"b": "hey"}), "a : b > shout")
		require.NoError(t, err)
		v, _ := left.Get("a")
		assert.Equal(t, "hey!", v)
	})

	t.Run("Hooks", func(t *testing.T) {
		var ties, changes int
		eng := newEngine(knot.WithLifecycleHooks(domain.LifecycleHooks{
			OnTie:    func(context.Context, *domain.KnotEvent) { ties++ },
			OnChange: func(context.Context, *domain.ChangeEvent) { changes++ },
		}))
		_, err := eng.Bind(context.Background(), memory.NewEntity("l", nil), memory.NewEntity("r", map[string]any{"b": 1}), "a : b")
		require.NoError(t, err)
		assert.Equal(t, 1, ties)
		assert.Equal(t, 1, changes)
	})

	t.Run("Custom Transform", func(t *testing.T) {
		eng := newEngine()
		require.NoError(t, eng.RegisterTransform("len", func(_ *domain.AccessPoint, v any) (any, error) {
			return len(v.(string)), nil
		}))
		assert.ErrorIs(t, eng.RegisterTransform(symbols.InlinePrefix+"x", symbols.Func(func(v any) any { return v })), symbols.ErrReservedName)
	})
}

func TestDefault(t *testing.T) {
	eng := knot.Default()
	assert.Same(t, eng, knot.Default())
	assert.Same(t, symbols.Default(), eng.Symbols())
	assert.Equal(t, 1, eng.Registry().Len())
}
