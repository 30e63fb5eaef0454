package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"polykit/internal/store"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := store.New(t.TempDir(), 1024, ".zst")
	require.NoError(t, err)

	key := "deadbeefdeadbeefdeadbeefdeadbeef"
	payload := []byte("compressed-bytes")
	meta := store.Metadata{Hash: key, Size: int64(len(payload)), CreatedAt: 1700000000, CacheKeyHash: "abc123"}

	require.False(t, s.Has(key))
	require.NoError(t, s.Store(key, payload, meta))
	require.True(t, s.Has(key))

	got, err := s.Read(key)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	gotMeta, err := s.ReadMetadata(key)
	require.NoError(t, err)
	require.Equal(t, meta, *gotMeta)
}

func TestStoreRejectsDuplicateKey(t *testing.T) {
	s, err := store.New(t.TempDir(), 0, ".zst")
	require.NoError(t, err)

	key := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	require.NoError(t, s.Store(key, []byte("first"), store.Metadata{}))
	err = s.Store(key, []byte("second"), store.Metadata{})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	got, err := s.Read(key)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), got)
}

func TestStoreRejectsNonHexKey(t *testing.T) {
	s, err := store.New(t.TempDir(), 0, ".zst")
	require.NoError(t, err)
	require.Error(t, s.Store("not-hex!!", []byte("x"), store.Metadata{}))
}

func TestStoreRejectsOversizedPayload(t *testing.T) {
	s, err := store.New(t.TempDir(), 4, ".zst")
	require.NoError(t, err)
	err = s.Store("bb00bb00bb00bb00bb00bb00bb00bb00", []byte("too big"), store.Metadata{})
	require.Error(t, err)
}

func TestReadMissingKeyReturnsNotFound(t *testing.T) {
	s, err := store.New(t.TempDir(), 0, ".zst")
	require.NoError(t, err)
	_, err = s.Read("cc00cc00cc00cc00cc00cc00cc00cc00")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCleanupTempRemovesStaleFiles(t *testing.T) {
	root := t.TempDir()
	s, err := store.New(root, 0, ".zst")
	require.NoError(t, err)

	stale := filepath.Join(root, "tmp", "stale-upload.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	require.NoError(t, s.CleanupTemp())

	_, statErr := os.Stat(stale)
	require.Error(t, statErr)
}
