package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *LocalStore {
	t.Helper()

	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestNewLocalStore(t *testing.T) {
	tests := []struct {
		name        string
		basePath    string
		shouldError bool
	}{
		{
			name:        "valid path",
			basePath:    t.TempDir(),
			shouldError: false,
		},
		{
			name:        "non-existent nested path",
			basePath:    filepath.Join(t.TempDir(), "nested", "path"),
			shouldError: false,
		},
		{
			name:        "file instead of directory",
			basePath:    createTempFile(t),
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewLocalStore(tt.basePath)

			if tt.shouldError {
				assert.Error(t, err)
				assert.Nil(t, store)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, store)

				info, err := os.Stat(tt.basePath)
				assert.NoError(t, err)
				assert.True(t, info.IsDir())
			}
		})
	}
}

func TestLocalStore_Append(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	n, err := store.Append(ctx, "staging/u1.webm", strings.NewReader("hello "))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	n, err = store.Append(ctx, "staging/u1.webm", strings.NewReader("world"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	data, err := store.ReadFile(ctx, "staging/u1.webm")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	info, err := store.Stat(ctx, "staging/u1.webm")
	require.NoError(t, err)
	assert.Equal(t, int64(11), info.Size)
}

func TestLocalStore_Truncate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "staging/u1.webm", strings.NewReader("hello world"))
	require.NoError(t, err)

	err = store.Truncate(ctx, "staging/u1.webm", 5)
	require.NoError(t, err)

	data, err := store.ReadFile(ctx, "staging/u1.webm")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalStore_WriteExclusive(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WriteExclusive(ctx, "staging/u1.owner", []byte("tokenhash"))
	require.NoError(t, err)

	// A second create must not overwrite the original contents.
	err = store.WriteExclusive(ctx, "staging/u1.owner", []byte("other"))
	require.NoError(t, err)

	data, err := store.ReadFile(ctx, "staging/u1.owner")
	require.NoError(t, err)
	assert.Equal(t, "tokenhash", string(data))
}

func TestLocalStore_Rename(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "staging/u1.webm", strings.NewReader("content"))
	require.NoError(t, err)

	err = store.Rename(ctx, "staging/u1.webm", "recordings/final.webm")
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "staging/u1.webm")
	require.NoError(t, err)
	assert.False(t, exists)

	data, err := store.ReadFile(ctx, "recordings/final.webm")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestLocalStore_Rename_MissingSource(t *testing.T) {
	store := setupTestStore(t)

	err := store.Rename(context.Background(), "staging/nope.webm", "recordings/final.webm")
	assert.Error(t, err)
}

func TestLocalStore_Delete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "staging/u1.webm", strings.NewReader("content"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "staging/u1.webm"))

	exists, err := store.Exists(ctx, "staging/u1.webm")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting again is not an error.
	assert.NoError(t, store.Delete(ctx, "staging/u1.webm"))
}

func TestLocalStore_List(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "staging/u1.webm", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = store.Append(ctx, "staging/u2.mp4", strings.NewReader("b"))
	require.NoError(t, err)
	_, err = store.Append(ctx, "recordings/done.webm", strings.NewReader("c"))
	require.NoError(t, err)

	paths, err := store.List(ctx, "staging")
	require.NoError(t, err)
	sort.Strings(paths)
	assert.Equal(t, []string{
		filepath.Join("staging", "u1.webm"),
		filepath.Join("staging", "u2.mp4"),
	}, paths)
}

func TestLocalStore_List_MissingPrefix(t *testing.T) {
	store := setupTestStore(t)

	paths, err := store.List(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLocalStore_ContextCancellation(t *testing.T) {
	store := setupTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Append(ctx, "staging/u1.webm", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)

	err = store.Delete(ctx, "staging/u1.webm")
	assert.ErrorIs(t, err, context.Canceled)
}

func createTempFile(t *testing.T) string {
	t.Helper()

	file, err := os.CreateTemp(t.TempDir(), "not-a-dir")
	require.NoError(t, err)
	require.NoError(t, file.Close())
	return file.Name()
}
