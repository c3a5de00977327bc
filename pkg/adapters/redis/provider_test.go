package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/knot/internal/runtime"
	"github.com/aretw0/knot/pkg/adapters/redis"
	"github.com/aretw0/knot/pkg/dsl"
	"github.com/aretw0/knot/pkg/ports"
	"github.com/aretw0/knot/pkg/registry"
	"github.com/aretw0/knot/pkg/symbols"
)

func newProvider(t *testing.T, opts ...redis.Option) (*redis.Provider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	p := redis.NewFromClient(client, opts...)
	t.Cleanup(func() { _ = p.Close() })
	return p, mr
}

func TestRedisProvider_Contract(t *testing.T) {
	p, _ := newProvider(t)
	n := 0
	ports.RunProviderContract(t, p, func() any {
		n++
		return redis.Key("entity:" + string(rune('a'+n)))
	}, "text")
}

func TestRedisProvider_Encoding(t *testing.T) {
	ctx := context.Background()
	p, mr := newProvider(t, redis.WithPrefix("app:"))
	k := redis.Key("user:1")

	require.NoError(t, p.SetValue(ctx, k, "name", "ada"))
	require.NoError(t, p.SetValue(ctx, k, "age", 36))
	require.NoError(t, p.SetValue(ctx, k, "tags", []string{"a", "b"}))

	assert.Equal(t, `"ada"`, mr.HGet("app:user:1", "name"))

	age, err := p.GetValue(ctx, k, "age")
	require.NoError(t, err)
	assert.Equal(t, float64(36), age)

	missing, err := p.GetValue(ctx, k, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	snap, err := p.Snapshot(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ada", "age": float64(36), "tags": []any{"a", "b"}}, snap)

	mr.HSet("app:user:1", "broken", "{not json")
	_, err = p.GetValue(ctx, k, "broken")
	assert.Error(t, err)
}

func TestRedisProvider_Support(t *testing.T) {
	p, _ := newProvider(t)
	assert.True(t, p.DoesSupport(redis.Key("k"), "f"))
	assert.False(t, p.DoesSupport("k", "f"), "plain strings are not keys")
	assert.False(t, p.DoesSupport(redis.Key(""), "f"))

	_, err := p.GetValue(context.Background(), 1, "f")
	assert.Error(t, err)
}

func TestRedisProvider_Tie(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)

	table := symbols.NewTable()
	symbols.RegisterBuiltins(table)
	reg := registry.NewRegistry()
	reg.Register(p)
	m := runtime.NewManager(reg, table)

	form, user := redis.Key("form:signup"), redis.Key("model:user")
	require.NoError(t, p.SetValue(ctx, user, "name", "  ada "))

	res := dsl.NewParser(table).Parse("text : name > trim")
	require.NoError(t, res.Err())

	k, err := m.Tie(ctx, form, user, res.Specs[0])
	require.NoError(t, err)
	assert.Equal(t, 2, p.Monitors())

	read := func(key redis.Key, field string) any {
		v, _ := p.GetValue(ctx, key, field)
		return v
	}
	assert.Equal(t, "ada", read(form, "text"))

	require.NoError(t, p.SetValue(ctx, user, "name", " grace"))
	assert.Eventually(t, func() bool { return read(form, "text") == "grace" }, 2*time.Second, 10*time.Millisecond)

	// The write to text comes back on the monitor goroutine and is recognized
	// as the knot's own, so the untrimmed source is left alone.
	assert.Eventually(t, func() bool { return k.Suppressed() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, " grace", read(user, "name"))

	require.NoError(t, p.SetValue(ctx, form, "text", "linus"))
	assert.Eventually(t, func() bool { return read(user, "name") == "linus" }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Untie(ctx, k))
	assert.Zero(t, p.Monitors())

	require.NoError(t, p.SetValue(ctx, user, "name", "after"))
	assert.Never(t, func() bool { return read(form, "text") == "after" }, 200*time.Millisecond, 10*time.Millisecond)
}
