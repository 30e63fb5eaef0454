package cacheserver_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"polykit/internal/artifact"
	"polykit/internal/cacheserver"
	"polykit/internal/store"
)

func newTestServer(t *testing.T, maxSize int64) *httptest.Server {
	t.Helper()
	s, err := store.New(t.TempDir(), maxSize, ".zst")
	require.NoError(t, err)
	srv := cacheserver.New(s, maxSize, nil)
	return httptest.NewServer(srv.Handler())
}

func buildArtifact(t *testing.T, cacheKeyHash string) *artifact.Artifact {
	t.Helper()
	a, err := artifact.New("pkg", "build", "make build", cacheKeyHash, map[string][]byte{
		"out.bin": []byte("hello"),
	}, 1700000000)
	require.NoError(t, err)
	return a
}

func TestPutGetHeadRoundTrip(t *testing.T) {
	key := "aa00aa00aa00aa00aa00aa00aa00aa00"
	a := buildArtifact(t, key)
	srv := newTestServer(t, 0)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/artifacts/"+key, bytes.NewReader(a.Compressed))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Head(srv.URL + "/v1/artifacts/" + key)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, key, resp.Header.Get("X-Artifact-Hash"))

	resp, err = http.Get(srv.URL + "/v1/artifacts/" + key)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/zstd", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, a.Compressed, body)
}

func TestPutRejectsMismatchedKey(t *testing.T) {
	a := buildArtifact(t, "aabbccddeeaabbccddeeaabbccddeeaa")
	srv := newTestServer(t, 0)
	defer srv.Close()

	mismatchedKey := "ffffffffffffffffffffffffffffffff"
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/artifacts/"+mismatchedKey, bytes.NewReader(a.Compressed))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPutRejectsDuplicateKey(t *testing.T) {
	key := "bb11bb11bb11bb11bb11bb11bb11bb11"
	a := buildArtifact(t, key)
	srv := newTestServer(t, 0)
	defer srv.Close()

	for i, expected := range []int{http.StatusCreated, http.StatusConflict} {
		req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/artifacts/"+key, bytes.NewReader(a.Compressed))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equalf(t, expected, resp.StatusCode, "attempt %d", i)
	}
}

func TestPutRejectsOversizedBody(t *testing.T) {
	key := "cc22cc22cc22cc22cc22cc22cc22cc22"
	a := buildArtifact(t, key)
	srv := newTestServer(t, 4)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/artifacts/"+key, bytes.NewReader(a.Compressed))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestGetMissingReturns404(t *testing.T) {
	srv := newTestServer(t, 0)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/artifacts/dd33dd33dd33dd33dd33dd33dd33dd33")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
