package taskcache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"polykit/internal/taskcache"
)

func TestPutGetRoundTrip(t *testing.T) {
	c, err := taskcache.New(t.TempDir())
	require.NoError(t, err)

	key := "1234567812345678123456781234567812345678123456781234567812345678"
	result := taskcache.Result{PackageName: "web", TaskName: "build", Success: true, Stdout: "done", Stderr: ""}

	require.NoError(t, c.Put(key, result))
	require.True(t, c.Has(key))

	got, err := c.Get(key)
	require.NoError(t, err)
	require.Equal(t, result, *got)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	c, err := taskcache.New(t.TempDir())
	require.NoError(t, err)
	_, err = c.Get("aabbccddaabbccddaabbccddaabbccddaabbccddaabbccddaabbccddaabbccdd")
	require.ErrorIs(t, err, taskcache.ErrNotFound)
}

func TestPutIsIdempotentForSameKey(t *testing.T) {
	c, err := taskcache.New(t.TempDir())
	require.NoError(t, err)

	key := "eeffeeffeeffeeffeeffeeffeeffeeffeeffeeffeeffeeffeeffeeffeeffeeff"
	require.NoError(t, c.Put(key, taskcache.Result{Success: true}))
	require.NoError(t, c.Put(key, taskcache.Result{Success: false}))

	got, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, got.Success)
}
