package symbols

import (
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/knot/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_RegisterAndLookup(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.RegisterFunc("double", func(v any) any { return v.(int) * 2 }))

	fn, ok := table.Lookup("double")
	require.True(t, ok)

	out, err := fn(nil, 21)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	_, ok = table.Lookup("missing")
	assert.False(t, ok)
}

func TestTable_RegisterRejectsInvalidNames(t *testing.T) {
	table := NewTable()

	err := table.RegisterFunc(InlinePrefix+"1", func(v any) any { return v })
	assert.ErrorIs(t, err, ErrReservedName)

	err = table.Register("  ", Func(func(v any) any { return v }))
	assert.ErrorIs(t, err, ErrInvalidSymbol)

	err = table.Register("nilFn", nil)
	assert.ErrorIs(t, err, ErrInvalidSymbol)
	assert.False(t, table.Has("nilFn"))
}

func TestTable_RegisterInline(t *testing.T) {
	table := NewTable()

	first := table.RegisterInline(Func(func(v any) any { return "a" }))
	second := table.RegisterInline(Func(func(v any) any { return "b" }))

	assert.True(t, strings.HasPrefix(first, InlinePrefix))
	assert.True(t, strings.HasPrefix(second, InlinePrefix))
	assert.NotEqual(t, first, second)

	fn, ok := table.Lookup(second)
	require.True(t, ok)
	out, err := fn(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", out)
}

func TestTable_ResolveUnknown(t *testing.T) {
	table := NewTable()

	_, err := table.Resolve("nope")
	require.Error(t, err)

	var symErr *domain.SymbolError
	require.ErrorAs(t, err, &symErr)
	assert.Equal(t, "nope", symErr.Symbol)
	assert.ErrorIs(t, err, domain.ErrUnknownSymbol)
}

func TestTable_TransformSeesAccessPoint(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Register("apName", func(ap *domain.AccessPoint, _ any) (any, error) {
		return ap.Name, nil
	}))

	fn, err := table.Resolve("apName")
	require.NoError(t, err)

	out, err := fn(&domain.AccessPoint{Name: "userId"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "userId", out)
}

func TestTable_ConcurrentReads(t *testing.T) {
	table := NewTable()
	RegisterBuiltins(table)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, ok := table.Lookup("trim")
				assert.True(t, ok)
				table.RegisterInline(Func(func(v any) any { return v }))
			}
		}()
	}
	wg.Wait()

	inline := 0
	for _, name := range table.Names() {
		if strings.HasPrefix(name, InlinePrefix) {
			inline++
		}
	}
	assert.Equal(t, 1600, inline)
}

func TestDefault_HasBuiltins(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.True(t, Default().Has("trueWhenAllTrue"))
}
