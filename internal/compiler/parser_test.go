package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/knot/pkg/adapters/lua"
	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/symbols"
)

const document = `
transforms:
  clamp: "if value > 10 then return 10 end return value"
  double: "value * 2"
bindings:
  - left: form:signup
    right: model:user
    spec: "text>trim:name; isEnabled:(isLogged & userId>trueWhenNot0)>trueWhenAllTrue"
  - name: counter
    left: form:signup
    right: model:stats
    spec: "count : total > clamp > double"
`

func TestParser_Parse(t *testing.T) {
	table := symbols.NewTable()
	symbols.RegisterBuiltins(table)

	plan, err := NewParser(table, WithEvaluator(lua.New())).Parse([]byte(document))
	require.NoError(t, err)
	require.NoError(t, plan.Err())

	assert.Equal(t, []string{"clamp", "double"}, plan.Transforms)
	require.Len(t, plan.Bindings, 2)
	assert.Equal(t, 3, plan.Specs())

	first := plan.Bindings[0]
	assert.Equal(t, "form:signup", first.Left)
	assert.Equal(t, "model:user", first.Right)
	assert.Equal(t, "form:signup <-> model:user", first.Label())
	require.Len(t, first.Specs, 2)
	assert.True(t, first.Specs[1].Right.Composite)

	counter := plan.Bindings[1]
	assert.Equal(t, "counter", counter.Label())
	assert.Equal(t, []string{"clamp", "double"}, counter.Specs[0].Right.Pipes)

	t.Run("Transforms Are Registered", func(t *testing.T) {
		clamp, err := table.Resolve("clamp")
		require.NoError(t, err)
		v, err := clamp(nil, 42)
		require.NoError(t, err)
		assert.Equal(t, 10, v)

		double, err := table.Resolve("double")
		require.NoError(t, err)
		v, err = double(nil, 4)
		require.NoError(t, err)
		assert.Equal(t, 8, v)
	})
}

func TestParser_Issues(t *testing.T) {
	table := symbols.NewTable()
	plan, err := NewParser(table, WithEvaluator(lua.New())).Parse([]byte(`
transforms:
  broken: "return ("
bindings:
  - left: a
    spec: "text : name"
  - left: a
    right: b
    spec: "ok : fine; (a&b)>p : (c&d)>q"
  - left: a
    right: b
    spec: " ; "
`))
	require.NoError(t, err)
	require.Len(t, plan.Issues, 4)

	assert.Contains(t, plan.Issues[0].Error(), `transform "broken"`)
	assert.Contains(t, plan.Issues[1].Error(), "left and right are required")
	assert.True(t, errors.Is(plan.Issues[2], domain.ErrCompositeConflict))
	assert.Contains(t, plan.Issues[3].Error(), "no clauses")

	assert.False(t, table.Has("broken"))
	require.Len(t, plan.Bindings, 2, "entries without entities are skipped")
	assert.Len(t, plan.Bindings[0].Specs, 1, "valid clauses survive")
	assert.Error(t, plan.Err())
}

func TestParser_NoEvaluator(t *testing.T) {
	plan, err := NewParser(symbols.NewTable()).Parse([]byte(`
transforms:
  clamp: "return value"
bindings: []
`))
	require.NoError(t, err)
	require.Len(t, plan.Issues, 1)
	assert.ErrorIs(t, plan.Issues[0], ErrNoEvaluator)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte("bindings: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse")

	_, err = Decode([]byte("bindngs: []"))
	assert.ErrorContains(t, err, "failed to decode")

	file, err := Decode([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, file.Bindings)
}
