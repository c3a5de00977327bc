package ports

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contractWait  = 2 * time.Second
	contractTick  = 10 * time.Millisecond
	contractQuiet = 150 * time.Millisecond
)

// RunProviderContract runs a suite of tests to verify that a Provider implementation
// adheres to the defined interface contract. newTarget must return a fresh target on
// every call, on which name is a supported access point.
// Notifications may be delivered asynchronously; the suite waits for them.
func RunProviderContract(t *testing.T, provider Provider, newTarget func() any, name string) {
	ctx := context.Background()

	t.Run("Supports Target", func(t *testing.T) {
		assert.True(t, provider.DoesSupport(newTarget(), name), "provider should claim the access point")
	})

	t.Run("Set and Get", func(t *testing.T) {
		target := newTarget()
		require.NoError(t, provider.SetValue(ctx, target, name, "hello"))

		got, err := provider.GetValue(ctx, target, name)
		require.NoError(t, err)
		assert.Equal(t, "hello", got)

		require.NoError(t, provider.SetValue(ctx, target, name, "world"))
		got, err = provider.GetValue(ctx, target, name)
		require.NoError(t, err)
		assert.Equal(t, "world", got)
	})

	monitorer, ok := provider.(Monitorer)
	if !ok || !provider.DoesSupportMonitoring(newTarget(), name) {
		return
	}

	t.Run("Monitor Notifies On Change", func(t *testing.T) {
		target := newTarget()
		require.NoError(t, provider.SetValue(ctx, target, name, "initial"))

		var calls atomic.Int32
		sub := NewSubscription(func() { calls.Add(1) })
		require.NoError(t, monitorer.Monitor(ctx, target, name, sub))
		defer func() { _ = monitorer.StopMonitoring(ctx, target, name, sub) }()

		require.NoError(t, provider.SetValue(ctx, target, name, "changed"))
		assert.Eventually(t, func() bool { return calls.Load() == 1 }, contractWait, contractTick)
	})

	t.Run("Unchanged Write Is Silent", func(t *testing.T) {
		target := newTarget()
		require.NoError(t, provider.SetValue(ctx, target, name, "same"))

		var calls atomic.Int32
		sub := NewSubscription(func() { calls.Add(1) })
		require.NoError(t, monitorer.Monitor(ctx, target, name, sub))
		defer func() { _ = monitorer.StopMonitoring(ctx, target, name, sub) }()

		require.NoError(t, provider.SetValue(ctx, target, name, "same"))
		assert.Never(t, func() bool { return calls.Load() > 0 }, contractQuiet, contractTick)
	})

	t.Run("StopMonitoring Detaches", func(t *testing.T) {
		target := newTarget()
		var calls atomic.Int32
		sub := NewSubscription(func() { calls.Add(1) })
		require.NoError(t, monitorer.Monitor(ctx, target, name, sub))
		require.NoError(t, monitorer.StopMonitoring(ctx, target, name, sub))

		require.NoError(t, provider.SetValue(ctx, target, name, "after-stop"))
		assert.Never(t, func() bool { return calls.Load() > 0 }, contractQuiet, contractTick)
	})
}
