package keystore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "slot")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "slot", "0x01"))
	v, err := s.Get(ctx, "slot")
	require.NoError(t, err)
	require.Equal(t, "0x01", v)

	require.NoError(t, s.Set(ctx, "slot", "0x02"))
	v, err = s.Get(ctx, "slot")
	require.NoError(t, err)
	require.Equal(t, "0x02", v)

	require.NoError(t, s.Delete(ctx, "slot"))
	_, err = s.Get(ctx, "slot")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete(ctx, "slot"))

	require.Error(t, s.Set(ctx, " ", "x"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "keys.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	require.NoError(t, s.Set(context.Background(), "a", "b"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	v, err := reopened.Get(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, "b", v)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "a")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	s, err := OpenRedis("redis://"+addr+"/0", "walletctl-test:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	for _, uri := range []string{"", "memory:", "file:" + filepath.Join(dir, "k.json"), "sqlite:" + filepath.Join(dir, "k.db")} {
		s, err := Open(uri)
		require.NoError(t, err, uri)
		exerciseStore(t, s)
		require.NoError(t, Close(s))
	}

	_, err := Open("etcd://localhost")
	require.Error(t, err)
}
