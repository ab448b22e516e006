package auth

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refresh-tokens.toml")
	fs, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, fs.Load(context.Background()))
	return fs, path
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	fs, _ := newTestFileStore(t)

	infos, err := fs.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)

	_, ok, err := fs.Active(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreAddPreservesInsertionOrder(t *testing.T) {
	fs, path := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, fs.Add(ctx, "6281111111111", "rt-1"))
	require.NoError(t, fs.Add(ctx, "6282222222222", "rt-2"))
	require.NoError(t, fs.Add(ctx, "6283333333333", "rt-3"))

	// Re-saving an existing number must not move it.
	require.NoError(t, fs.Add(ctx, "6281111111111", "rt-1b"))

	infos, err := fs.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "6281111111111", infos[0].PhoneNumber)
	assert.Equal(t, "rt-1b", infos[0].RefreshToken)
	assert.Equal(t, "6282222222222", infos[1].PhoneNumber)
	assert.Equal(t, "6283333333333", infos[2].PhoneNumber)

	// Order survives a reload from disk.
	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, reloaded.Load(ctx))
	again, err := reloaded.List(ctx)
	require.NoError(t, err)
	require.Len(t, again, 3)
	for i := range infos {
		assert.Equal(t, infos[i].PhoneNumber, again[i].PhoneNumber)
	}
}

func TestFileStoreSetActive(t *testing.T) {
	fs, _ := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, fs.Add(ctx, "6281111111111", "rt-1"))
	require.NoError(t, fs.Add(ctx, "6282222222222", "rt-2"))

	require.NoError(t, fs.SetActive(ctx, "6282222222222"))
	acc, ok, err := fs.Active(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "6282222222222", acc.PhoneNumber)
	assert.Equal(t, "rt-2", acc.RefreshToken)
}

func TestFileStoreSetActiveUnknownLeavesPointer(t *testing.T) {
	fs, _ := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, fs.Add(ctx, "6281111111111", "rt-1"))
	require.NoError(t, fs.SetActive(ctx, "6281111111111"))

	err := fs.SetActive(ctx, "6289999999999")
	require.ErrorIs(t, err, ErrAccountNotFound)

	acc, ok, err := fs.Active(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "6281111111111", acc.PhoneNumber)
}

func TestFileStorePersistsAtomically(t *testing.T) {
	fs, path := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, fs.Add(ctx, "6281111111111", "rt-1"))
	require.NoError(t, fs.SetActive(ctx, "6281111111111"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var schema fileSchema
	require.NoError(t, toml.Unmarshal(raw, &schema))
	assert.Equal(t, currentSchemaVer, schema.Version)
	assert.Equal(t, "6281111111111", schema.Active)
	require.Len(t, schema.Accounts, 1)
	assert.Equal(t, "rt-1", schema.Accounts[0].RefreshToken)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreLoadClearsDanglingActive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh-tokens.toml")
	schema := fileSchema{
		Version: currentSchemaVer,
		Active:  "6289999999999",
		Accounts: []accountSchema{
			{PhoneNumber: "6281111111111", RefreshToken: "rt-1"},
		},
	}
	raw, err := toml.Marshal(schema)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	fs, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, fs.Load(context.Background()))

	_, ok, err := fs.Active(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreRejectsUnknownSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh-tokens.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 99\n"), 0o600))

	fs, err := NewFileStore(path)
	require.NoError(t, err)
	err = fs.Load(context.Background())
	require.ErrorIs(t, err, ErrSchemaVersion)
}

func TestFileStoreConcurrentAdd(t *testing.T) {
	fs, _ := newTestFileStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, fs.Add(ctx, "6281111111111", "rt-1"))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, fs.Add(ctx, "6282222222222", "rt-2"))
	}()
	wg.Wait()

	infos, err := fs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}
