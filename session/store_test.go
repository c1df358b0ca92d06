package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentflow/lifecycle"
)

func sample() *Session {
	return &Session{Token: "tok", User: &User{ID: "u-1", Username: "tina", Role: lifecycle.RoleTenant}}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)

	require.NoError(t, store.Save(ctx, sample()))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, "u-1", got.User.ID)
	assert.Equal(t, lifecycle.RoleTenant, got.User.Role)

	require.NoError(t, store.Clear(ctx))
	cleared, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cleared)

	// Clearing twice is not an error.
	require.NoError(t, store.Clear(ctx))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)
	exerciseStore(t, store)

	require.NoError(t, store.Save(context.Background(), sample()))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), StorageKey)
}

func TestFileStoreIgnoresForeignKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"key":"auth_token","session":{"token":"stale"}}`), 0o600))

	got, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "test:", time.Hour)
	exerciseStore(t, store)

	require.NoError(t, store.Save(context.Background(), sample()))
	assert.True(t, mr.Exists("test:"+StorageKey))
	assert.Equal(t, time.Hour, mr.TTL("test:"+StorageKey))

	mr.FastForward(2 * time.Hour)
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}
