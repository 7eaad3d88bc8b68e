package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/statsearch/internal/config"
)

func TestLocalStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "index")
	s := NewLocalStore(dir)

	require.NoError(t, s.Put(ctx, "vectors.f32", []byte{1, 2, 3, 4}))
	got, err := s.Get(ctx, "vectors.f32")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	require.NoError(t, s.Put(ctx, "vectors.f32", []byte{9}))
	got, err = s.Get(ctx, "vectors.f32")
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, s.Delete(ctx, "vectors.f32"))
	_, err = s.Get(ctx, "vectors.f32")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, s.Delete(ctx, "vectors.f32"), "deleting a missing artifact is not an error")
}

func TestLocalStore_GetMissing(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	_, err := s.Get(context.Background(), "ids.i64")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewLocalStore(t.TempDir())
	assert.ErrorIs(t, s.Put(ctx, "x", []byte("y")), context.Canceled)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	data := []byte("abc")
	require.NoError(t, m.Put(ctx, "a", data))
	data[0] = 'z'

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	assert.Equal(t, []string{"a"}, m.Names())

	m.FailPut = func(name string) error { return errors.New("disk full") }
	assert.Error(t, m.Put(ctx, "b", data))

	require.NoError(t, m.Delete(ctx, "a"))
	_, err = m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, &config.Config{
		Storage:   config.StorageConfig{ArtifactDir: dir},
		Artifacts: config.ArtifactConfig{Backend: config.BackendLocal},
	})
	require.NoError(t, err)
	local, ok := s.(*LocalStore)
	require.True(t, ok)
	assert.Equal(t, dir, local.Root())

	s, err = Open(ctx, &config.Config{Artifacts: config.ArtifactConfig{
		Backend: config.BackendMinIO, Endpoint: "localhost:9000", Bucket: "idx", Prefix: "statsearch",
		AccessKey: "minioadmin", SecretKey: "minioadmin",
	}})
	require.NoError(t, err)
	mstore, ok := s.(*MinIOStore)
	require.True(t, ok)
	assert.Equal(t, "statsearch/ids.i64", mstore.key("ids.i64"))

	_, err = Open(ctx, &config.Config{Artifacts: config.ArtifactConfig{Backend: "ftp"}})
	assert.Error(t, err)
}

func TestLocalStore_NestedNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewLocalStore(dir)

	require.NoError(t, s.Put(ctx, "build-1/vectors.f32", []byte{1, 2}))
	require.NoError(t, s.Put(ctx, "build-1/ids.i64", []byte{3}))
	assert.FileExists(t, filepath.Join(dir, "build-1", "vectors.f32"))

	got, err := s.Get(ctx, "build-1/vectors.f32")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, got)

	require.NoError(t, s.Delete(ctx, "build-1/vectors.f32"))
	assert.DirExists(t, filepath.Join(dir, "build-1"), "directory still holds ids.i64")
	require.NoError(t, s.Delete(ctx, "build-1/ids.i64"))
	assert.NoDirExists(t, filepath.Join(dir, "build-1"))
	assert.DirExists(t, dir)
}
