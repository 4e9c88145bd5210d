package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSStorePutGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	body := []byte("chr1\t12345\tA\tG")
	require.NoError(t, store.Put(ctx, "inputs", "user-1/job-1~sample.vcf", body))

	got, err := store.Get(ctx, "inputs", "user-1/job-1~sample.vcf")
	require.NoError(t, err)
	require.Equal(t, body, got)
}

func TestFSStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, "inputs", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFSStoreExists(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "results", "r.vcf")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.Put(ctx, "results", "r.vcf", []byte("x")))

	exists, err = store.Exists(ctx, "results", "r.vcf")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestFSStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "results", "r.vcf", []byte("x")))
	require.NoError(t, store.Delete(ctx, "results", "r.vcf"))

	exists, err := store.Exists(ctx, "results", "r.vcf")
	require.NoError(t, err)
	require.False(t, exists)

	// Deleting an absent object is a no-op
	require.NoError(t, store.Delete(ctx, "results", "r.vcf"))
}

func TestFSStoreDownload(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	body := []byte("##fileformat=VCFv4.2")
	require.NoError(t, store.Put(ctx, "inputs", "sample.vcf", body))

	path := filepath.Join(t.TempDir(), "sample.vcf")
	require.NoError(t, store.Download(ctx, "inputs", "sample.vcf", path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, body, got)

	err = store.Download(ctx, "inputs", "missing", path)
	require.ErrorIs(t, err, ErrNotFound)
}
