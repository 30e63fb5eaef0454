package scanner_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"polykit/internal/scanner"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o775))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestScanIgnoresRootWorkspaceDescriptor(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "polykit.toml"), "[workspace]\ncache_dir = \".polykit/cache\"\n")
	writeFile(t, filepath.Join(root, "pkgA", "polykit.toml"), "name = \"pkgA\"\nlanguage = \"go\"\n")

	s := scanner.New(root, t.TempDir(), 0, nil)
	pkgs, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	require.Equal(t, "pkgA", pkgs[0].Name)
}

func TestScanCacheHitOnSecondRun(t *testing.T) {
	root := t.TempDir()
	cacheDir := t.TempDir()
	writeFile(t, filepath.Join(root, "pkgA", "polykit.toml"), "name = \"pkgA\"\nlanguage = \"go\"\n")
	writeFile(t, filepath.Join(root, "pkgB", "polykit.toml"), "name = \"pkgB\"\nlanguage = \"go\"\n")

	s := scanner.New(root, cacheDir, 0, nil)
	first, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := s.Scan()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"pkgA", "pkgB"}, []string{second[0].Name, second[1].Name})
}

func TestScanCacheInvalidatedByDescriptorEdit(t *testing.T) {
	root := t.TempDir()
	cacheDir := t.TempDir()
	descriptorPath := filepath.Join(root, "pkgA", "polykit.toml")
	writeFile(t, descriptorPath, "name = \"pkgA\"\nlanguage = \"go\"\n")

	s := scanner.New(root, cacheDir, 0, nil)
	_, err := s.Scan()
	require.NoError(t, err)

	future := time.Now().Add(time.Minute)
	writeFile(t, descriptorPath, "name = \"pkgA\"\nlanguage = \"python\"\n")
	require.NoError(t, os.Chtimes(descriptorPath, future, future))

	pkgs, err := s.Scan()
	require.NoError(t, err)
	require.Equal(t, "python", string(pkgs[0].Language))
}
