package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeBindings(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bindings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestParseCommand(t *testing.T) {
	out, err := execute(t, "parse", "-o", "json", "text>trim:name; isEnabled:(isLogged & userId>trueWhenNot0)>trueWhenAllTrue")
	require.NoError(t, err)

	var got parseOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Specs, 2)
	assert.Equal(t, []string{"trim"}, got.Specs[0].Left.Pipes)
	assert.True(t, got.Specs[1].Right.Composite)
	assert.Empty(t, got.Issues)

	t.Run("Dropped Clause Fails", func(t *testing.T) {
		out, err := execute(t, "parse", "-o", "yaml", "a:b; (a&b)>p : (c&d)>q")
		assert.ErrorContains(t, err, "1 clause(s) dropped")
		assert.Contains(t, out, "issues:")
		assert.Contains(t, out, "name: a")
	})

	t.Run("Table", func(t *testing.T) {
		out, err := execute(t, "parse", "-o", "table", "text:name")
		require.NoError(t, err)
		assert.Contains(t, out, "| 0 | `text` | `name` | simple |")
	})

	t.Run("Unknown Output", func(t *testing.T) {
		_, err := execute(t, "parse", "-o", "xml", "text:name")
		assert.ErrorContains(t, err, "unknown output")
	})
}

func TestValidateCommand(t *testing.T) {
	valid := writeBindings(t, `
transforms:
  clamp: "if value > 10 then return 10 end return value"
bindings:
  - left: form
    right: model
    spec: "count : total > clamp"
`)
	out, err := execute(t, "validate", valid)
	require.NoError(t, err)
	assert.Contains(t, out, "Bindings are valid!")

	invalid := writeBindings(t, `
bindings:
  - left: form
    right: model
    spec: "count : total > missing"
`)
	_, err = execute(t, "validate", invalid)
	assert.ErrorContains(t, err, "validation failed")
}

func TestGraphCommand(t *testing.T) {
	path := writeBindings(t, `
bindings:
  - left: form
    right: model
    spec: "text : name"
`)
	out, err := execute(t, "graph", path)
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR")
	assert.Contains(t, out, `form <-- "text : name" --> model`)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "knot version dev\n", out)
}
