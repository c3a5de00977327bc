package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/knot"
	"github.com/aretw0/knot/pkg/adapters/memory"
	"github.com/aretw0/knot/pkg/persistence/middleware"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(memory.NewProvider())
	entity := memory.NewEntity("vault", nil)

	require.NoError(t, secure.SetValue(ctx, entity, "secret", "my-secret-sauce"))

	// The backing entity only ever sees the envelope
	raw, _ := entity.Get("secret")
	require.IsType(t, "", raw)
	assert.True(t, strings.HasPrefix(raw.(string), middleware.EnvelopePrefix))
	assert.NotContains(t, raw, "my-secret-sauce")

	got, err := secure.GetValue(ctx, entity, "secret")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", got)

	missing, err := secure.GetValue(ctx, entity, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEncryptionMiddleware_UnchangedWriteIsSkipped(t *testing.T) {
	ctx := context.Background()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(memory.NewProvider())
	entity := memory.NewEntity("vault", nil)

	require.NoError(t, secure.SetValue(ctx, entity, "n", 36))
	first, _ := entity.Get("n")

	require.NoError(t, secure.SetValue(ctx, entity, "n", 36))
	second, _ := entity.Get("n")
	assert.Equal(t, first, second, "same plaintext keeps the same envelope")

	require.NoError(t, secure.SetValue(ctx, entity, "n", 37))
	third, _ := entity.Get("n")
	assert.NotEqual(t, first, third)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	entity := memory.NewEntity("vault", nil)

	secureOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(memory.NewProvider())
	require.NoError(t, secureOld.SetValue(ctx, entity, "data", "encrypted-with-old-key"))

	secureNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(memory.NewProvider())

	got, err := secureNew.GetValue(ctx, entity, "data")
	require.NoError(t, err)
	assert.Equal(t, "encrypted-with-old-key", got)

	require.NoError(t, secureNew.SetValue(ctx, entity, "data", "encrypted-with-new-key"))

	_, err = secureOld.GetValue(ctx, entity, "data")
	assert.Error(t, err, "old key alone cannot read new-key envelopes")
}

func TestEncryptionMiddleware_PlaintextRejected(t *testing.T) {
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(memory.NewProvider())
	entity := memory.NewEntity("vault", map[string]any{"legacy": "plain"})

	_, err := secure.GetValue(context.Background(), entity, "legacy")
	assert.ErrorIs(t, err, middleware.ErrNotEncrypted)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}

func TestEncryptionMiddleware_Tie(t *testing.T) {
	ctx := context.Background()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(memory.NewProvider())

	eng := knot.New()
	eng.Register(secure)

	form := memory.NewEntity("form", nil)
	user := memory.NewEntity("user", nil)
	require.NoError(t, secure.SetValue(ctx, user, "name", "ada"))

	knots, err := eng.Bind(ctx, form, user, "text : name > toUpper")
	require.NoError(t, err)
	require.Len(t, knots, 1)
	assert.Equal(t, 2, knots[0].Monitored(), "monitoring reaches the wrapped provider")

	got, err := secure.GetValue(ctx, form, "text")
	require.NoError(t, err)
	assert.Equal(t, "ADA", got)

	require.NoError(t, secure.SetValue(ctx, user, "name", "grace"))
	got, err = secure.GetValue(ctx, form, "text")
	require.NoError(t, err)
	assert.Equal(t, "GRACE", got)

	raw, _ := form.Get("text")
	assert.NotContains(t, raw, "GRACE")
}
