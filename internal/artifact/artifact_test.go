package artifact_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"polykit/internal/artifact"
)

func TestRoundTripArtifact(t *testing.T) {
	outputs := map[string][]byte{
		"file1.txt":        []byte("content1"),
		"subdir/file2.txt": []byte("content2"),
	}

	a, err := artifact.New("test", "build", "make build", "deadbeef", outputs, 1700000000)
	require.NoError(t, err)
	require.Len(t, a.Manifest.Files, 2)

	parsed, err := artifact.FromCompressed(a.Compressed)
	require.NoError(t, err)
	require.Equal(t, a.Metadata, parsed.Metadata)
	require.Equal(t, a.Manifest.Files, parsed.Manifest.Files)

	require.NoError(t, (artifact.Verifier{}).Verify(parsed, ""))

	dest := t.TempDir()
	require.NoError(t, parsed.Extract(dest))

	got1, err := os.ReadFile(filepath.Join(dest, "file1.txt"))
	require.NoError(t, err)
	require.Equal(t, "content1", string(got1))

	got2, err := os.ReadFile(filepath.Join(dest, "subdir", "file2.txt"))
	require.NoError(t, err)
	require.Equal(t, "content2", string(got2))
}

func TestVerifyDetectsTamperedPayload(t *testing.T) {
	a, err := artifact.New("test", "build", "make build", "deadbeef", map[string][]byte{
		"out.bin": []byte("original"),
	}, 1700000000)
	require.NoError(t, err)

	tampered := append([]byte{}, a.Compressed...)
	tampered[len(tampered)-1] ^= 0xFF

	parsed, err := artifact.FromCompressed(tampered)
	if err != nil {
		return // corrupting the zstd frame itself is also an acceptable failure mode
	}
	require.Error(t, (artifact.Verifier{}).Verify(parsed, ""))
}
