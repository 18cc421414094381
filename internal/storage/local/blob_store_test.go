// Package local_test tests the durable crawl files.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/storage/local"
)

func TestNewSnapshotStore(t *testing.T) {
	t.Parallel()

	t.Run("creates missing directory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "archive", "nested")
		store, err := local.NewSnapshotStore(local.SnapshotConfig{BaseDir: dir})
		require.NoError(t, err)
		assert.NotNil(t, store)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("missing base dir", func(t *testing.T) {
		t.Parallel()
		_, err := local.NewSnapshotStore(local.SnapshotConfig{})
		assert.Error(t, err)
	})

	t.Run("base dir is a file", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.NewSnapshotStore(local.SnapshotConfig{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestSnapshotStorePutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.NewSnapshotStore(local.SnapshotConfig{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "run-1/records.csv", "text/csv", strings.NewReader("url\n"))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "run-1", "records.csv"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "run-1", "records.csv"))
	require.NoError(t, err)
	assert.Equal(t, "url\n", string(data))

	_, err = store.PutObject(context.Background(), "../escape.txt", "", strings.NewReader("x"))
	assert.Error(t, err)

	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	assert.Error(t, err)
}
