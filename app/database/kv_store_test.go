package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSQLiteKV(t *testing.T) {
	ctx := context.Background()
	local := NewLocalDB(filepath.Join(t.TempDir(), "local.db"), zaptest.NewLogger(t))
	require.NoError(t, local.Init(ctx))
	t.Cleanup(func() { local.Close() })

	kv, err := NewSQLiteKV(local.DB())
	require.NoError(t, err)

	_, found, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kv.Set(ctx, "k", []byte("v1")))
	require.NoError(t, kv.Set(ctx, "k", []byte("v2")))

	value, found, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v2", string(value))
}

func TestSQLiteKVBacksFileStore(t *testing.T) {
	ctx := context.Background()
	local := NewLocalDB(filepath.Join(t.TempDir(), "local.db"), zaptest.NewLogger(t))
	require.NoError(t, local.Init(ctx))
	t.Cleanup(func() { local.Close() })

	kv, err := NewSQLiteKV(local.DB())
	require.NoError(t, err)
	store := NewFileStore("", "", kv, zaptest.NewLogger(t))

	require.True(t, store.Write(ctx, "routes", []product{{ID: "r1", Name: "North"}}).Success)
	items, ok := store.Read(ctx, "routes")
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestRedisKV(t *testing.T) {
	addr := os.Getenv("DISTROAPP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set DISTROAPP_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	kv := NewRedisKV(addr, "", 0)
	t.Cleanup(func() { kv.Close() })
	require.NoError(t, kv.Ping(ctx))

	key := "distroapp:test:" + t.Name()
	require.NoError(t, kv.Set(ctx, key, []byte(`[]`)))

	value, found, err := kv.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[]", string(value))
}
