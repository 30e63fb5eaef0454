package remotecache_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"polykit/internal/remotecache"
)

func TestFilesystemBackendRoundTrip(t *testing.T) {
	b, err := remotecache.NewFilesystemBackend(t.TempDir(), 0)
	require.NoError(t, err)

	ctx := context.Background()
	key := "abcd1234abcd1234abcd1234abcd1234"

	has, err := b.Has(ctx, key)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, b.Put(ctx, key, []byte("payload-bytes")))

	has, err = b.Has(ctx, key)
	require.NoError(t, err)
	require.True(t, has)

	got, err := b.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("payload-bytes"), got)
}

func TestFilesystemBackendPutWritesNoSidecar(t *testing.T) {
	dir := t.TempDir()
	b, err := remotecache.NewFilesystemBackend(dir, 0)
	require.NoError(t, err)

	key := "abcd1234abcd1234abcd1234abcd1234"
	require.NoError(t, b.Put(context.Background(), key, []byte("payload-bytes")))

	var sawPayload bool
	err = filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".json") {
			t.Fatalf("unexpected sidecar file written: %s", path)
		}
		if strings.HasSuffix(path, key+".zst") {
			sawPayload = true
		}
		return nil
	})
	require.NoError(t, err)
	require.True(t, sawPayload, "expected payload file to exist")
}

func TestFilesystemBackendGetMissingReturnsNotFound(t *testing.T) {
	b, err := remotecache.NewFilesystemBackend(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = b.Get(context.Background(), "ff00ff00ff00ff00ff00ff00ff00ff00")
	require.ErrorIs(t, err, remotecache.ErrNotFound)
}

func TestHTTPBackendPutGetHas(t *testing.T) {
	stored := map[string][]byte{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[len("/v1/artifacts/"):]
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			stored[key] = body
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			data, ok := stored[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data)
		case http.MethodHead:
			if _, ok := stored[key]; ok {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		}
	}))
	defer srv.Close()

	b := remotecache.NewHTTPBackend(srv.URL, "test-token", 5*time.Second, nil)
	ctx := context.Background()

	key := "11112222333344445555666677778888"
	has, err := b.Has(ctx, key)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, b.Put(ctx, key, []byte("bundle")))

	has, err = b.Has(ctx, key)
	require.NoError(t, err)
	require.True(t, has)

	got, err := b.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("bundle"), got)
}

func TestHTTPBackendGetMissingReturnsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := remotecache.NewHTTPBackend(srv.URL, "", 5*time.Second, nil)
	_, err := b.Get(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	require.ErrorIs(t, err, remotecache.ErrNotFound)
}
