package database

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func TestFileStoreWriteRead(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	store := NewFileStore(dir, "", nil, zaptest.NewLogger(t))
	require.True(t, store.HasFileChannel())

	result := store.Write(ctx, "products", []product{{ID: "1", Name: "Test", Price: 10}})
	require.True(t, result.Success, result.Error)

	raw, err := os.ReadFile(filepath.Join(dir, "products.json"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "\n  {"), "expected pretty-printed output")

	items, ok := store.Read(ctx, "products")
	require.True(t, ok)
	require.Len(t, items, 1)

	var p product
	require.NoError(t, json.Unmarshal(items[0], &p))
	assert.Equal(t, "Test", p.Name)
}

func TestFileStoreReadFailuresAreSilent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir, "", nil, zaptest.NewLogger(t))

	_, ok := store.Read(ctx, "routes")
	assert.False(t, ok, "missing file")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes.json"), []byte("{not json"), 0644))
	_, ok = store.Read(ctx, "routes")
	assert.False(t, ok, "corrupt file")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes.json"), []byte(`{"id":"1"}`), 0644))
	_, ok = store.Read(ctx, "routes")
	assert.False(t, ok, "object instead of list")

	_, ok = store.Read(ctx, "../secrets")
	assert.False(t, ok, "path traversal")
}

func TestFileStoreEmptyListIsData(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir(), "", nil, zaptest.NewLogger(t))

	require.True(t, store.Write(ctx, "customers", []product{}).Success)
	items, ok := store.Read(ctx, "customers")
	assert.True(t, ok)
	assert.Empty(t, items)
}

type memoryKV struct {
	values map[string][]byte
	err    error
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value []byte) error {
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

func (m *memoryKV) Close() error { return nil }

func TestFileStoreKeyValueFallback(t *testing.T) {
	ctx := context.Background()
	kv := &memoryKV{values: map[string][]byte{}}
	store := NewFileStore("", "", kv, zaptest.NewLogger(t))
	assert.False(t, store.HasFileChannel())

	result := store.Write(ctx, "employees", []product{{ID: "e1", Name: "Ali"}})
	require.True(t, result.Success)
	assert.Contains(t, kv.values, "distroapp:employees")

	items, ok := store.Read(ctx, "employees")
	require.True(t, ok)
	assert.Len(t, items, 1)

	kv.err = assert.AnError
	result = store.Write(ctx, "employees", []product{})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)

	_, ok = store.Read(ctx, "employees")
	assert.False(t, ok)
}

func TestFileStoreWithoutAnyMedium(t *testing.T) {
	store := NewFileStore("", "", nil, nil)

	result := store.Write(context.Background(), "products", []product{})
	assert.False(t, result.Success)

	_, ok := store.Read(context.Background(), "products")
	assert.False(t, ok)
}

func TestFileStoreBackups(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	backupsDir := filepath.Join(root, "backups")
	store := NewFileStore(dataDir, backupsDir, nil, zaptest.NewLogger(t))

	require.True(t, store.Write(ctx, "products", []product{{ID: "1", Name: "Before"}}).Success)
	require.True(t, store.Write(ctx, "routes", []product{{ID: "r1", Name: "North"}}).Success)

	backup, err := store.CreateBackup("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(backup.Name, "manual-"))
	assert.Equal(t, 2, backup.Files)

	require.True(t, store.Write(ctx, "products", []product{{ID: "1", Name: "After"}}).Success)

	require.NoError(t, store.RestoreBackup(backup.Name))

	items, ok := store.Read(ctx, "products")
	require.True(t, ok)
	var p product
	require.NoError(t, json.Unmarshal(items[0], &p))
	assert.Equal(t, "Before", p.Name)

	backups, err := store.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 2)

	names := []string{backups[0].Name, backups[1].Name}
	var sawPreRestore bool
	for _, n := range names {
		if strings.HasPrefix(n, "pre-restore-") {
			sawPreRestore = true
		}
	}
	assert.True(t, sawPreRestore)

	assert.Error(t, store.RestoreBackup("does-not-exist"))
}

func TestFileStoreBackupsNeedFiles(t *testing.T) {
	store := NewFileStore("", "", &memoryKV{values: map[string][]byte{}}, nil)

	_, err := store.CreateBackup("manual")
	assert.ErrorIs(t, err, ErrNoFileChannel)
	assert.ErrorIs(t, store.RestoreBackup("x"), ErrNoFileChannel)
}
