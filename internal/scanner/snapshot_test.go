package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotValidStatsDirSuffixKeysOnTheirOwnPath(t *testing.T) {
	root := t.TempDir()
	pkgDir := filepath.Join(root, "pkgA")
	require.NoError(t, os.MkdirAll(pkgDir, 0o775))
	descriptorPath := filepath.Join(pkgDir, DescriptorFileName)
	require.NoError(t, os.WriteFile(descriptorPath, []byte("name = \"pkgA\"\n"), 0o644))

	fileInfo, err := os.Stat(descriptorPath)
	require.NoError(t, err)
	dirInfo, err := os.Stat(pkgDir)
	require.NoError(t, err)

	snap := &Snapshot{
		FormatVersion: snapshotFormatVersion,
		Mtimes: map[string]int64{
			"pkgA/" + DescriptorFileName: fileInfo.ModTime().Unix(),
			"pkgA" + dirSuffix:           dirInfo.ModTime().Unix(),
			packageCountKey:              1,
		},
	}

	require.True(t, snap.valid(root))
}

func TestSnapshotInvalidWhenDirMtimeChanges(t *testing.T) {
	root := t.TempDir()
	pkgDir := filepath.Join(root, "pkgA")
	require.NoError(t, os.MkdirAll(pkgDir, 0o775))
	descriptorPath := filepath.Join(pkgDir, DescriptorFileName)
	require.NoError(t, os.WriteFile(descriptorPath, []byte("name = \"pkgA\"\n"), 0o644))

	fileInfo, err := os.Stat(descriptorPath)
	require.NoError(t, err)

	snap := &Snapshot{
		FormatVersion: snapshotFormatVersion,
		Mtimes: map[string]int64{
			"pkgA/" + DescriptorFileName: fileInfo.ModTime().Unix(),
			"pkgA" + dirSuffix:           fileInfo.ModTime().Unix() - 1000,
			packageCountKey:              1,
		},
	}

	require.False(t, snap.valid(root))
}
