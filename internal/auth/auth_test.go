package auth

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestStatic(t *testing.T) {
	ctx := context.Background()

	token, err := Static("abc").Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = Static("  ").Token(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())

	_, err := store.Token(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, store.Save("session-token"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	token, err := store.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "session-token", token)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	_, err = store.Token(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	assert.ErrorIs(t, store.Save(""), ErrNoToken)
}

type failingSource struct{}

func (failingSource) Token(context.Context) (string, error) {
	return "", errors.New("keychain locked")
}

func TestFirst(t *testing.T) {
	ctx := context.Background()

	t.Run("prefers earlier sources", func(t *testing.T) {
		token, err := First(Static("flag"), Static("file")).Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "flag", token)
	})

	t.Run("skips empty sources", func(t *testing.T) {
		token, err := First(Static(""), nil, Static("file")).Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "file", token)
	})

	t.Run("reports no token", func(t *testing.T) {
		_, err := First(Static("")).Token(ctx)
		assert.ErrorIs(t, err, ErrNoToken)
	})

	t.Run("propagates real failures", func(t *testing.T) {
		_, err := First(failingSource{}, Static("file")).Token(ctx)
		assert.ErrorContains(t, err, "keychain locked")
	})

	t.Run("clears clearable sources", func(t *testing.T) {
		file := NewFileStore(t.TempDir())
		require.NoError(t, file.Save("tok"))

		src := First(Static("flag"), file)
		clearer, ok := src.(interface{ Clear() error })
		require.True(t, ok)
		require.NoError(t, clearer.Clear())

		_, err := file.Token(ctx)
		assert.ErrorIs(t, err, ErrNoToken)
	})
}

func TestExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("expired jwt", func(t *testing.T) {
		token := signed(t, jwt.MapClaims{"sub": "1", "exp": now.Add(-time.Minute).Unix()})
		assert.True(t, Expired(token, now))
	})

	t.Run("valid jwt", func(t *testing.T) {
		token := signed(t, jwt.MapClaims{"sub": "1", "exp": now.Add(time.Hour).Unix()})
		assert.False(t, Expired(token, now))
	})

	t.Run("jwt without exp", func(t *testing.T) {
		token := signed(t, jwt.MapClaims{"sub": "1"})
		assert.False(t, Expired(token, now))
	})

	t.Run("opaque token", func(t *testing.T) {
		assert.False(t, Expired("opaque-session-token", now))
	})
}
