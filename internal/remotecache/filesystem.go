package remotecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"polykit/internal/polyerr"
	"polykit/internal/store"
)

// FilesystemBackend treats a directory shared across machines (an NFS mount,
// a CI cache volume) as the remote tier, reusing the same sharded layout as
// the local store (spec.md §4.7) but skipping the per-entry metadata
// sidecar the local store writes for itself.
type FilesystemBackend struct {
	s *store.Store
}

// NewFilesystemBackend resolves root against the enclosing version-controlled
// repository root when one exists, so sibling worktrees sharing one cache
// mount converge on the same cache directory (spec.md §4.7): the directory
// actually used is <root>/remote/<sha256(repoRoot)[:16]>. When no enclosing
// repository is found, root/remote is used directly. Root resolution retries
// with bounded backoff since shared mounts can be slow to appear after a
// fresh checkout.
func NewFilesystemBackend(root string, maxArtifactSize int64) (*FilesystemBackend, error) {
	resolved, err := resolveSharedRoot(root)
	if err != nil {
		return nil, err
	}
	s, err := store.New(resolved, maxArtifactSize, ".zst")
	if err != nil {
		return nil, err
	}
	return &FilesystemBackend{s: s}, nil
}

func resolveSharedRoot(root string) (string, error) {
	var resolved string
	operation := func() error {
		abs, err := filepath.Abs(root)
		if err != nil {
			return err
		}
		if _, statErr := os.Stat(filepath.Dir(abs)); statErr != nil {
			return statErr
		}
		resolved = abs
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(operation, b); err != nil {
		return "", polyerr.Wrap(err, "resolving shared cache root "+root)
	}

	repoRoot, ok := findRepoRoot(resolved)
	if !ok {
		return filepath.Join(resolved, "remote"), nil
	}
	sum := sha256.Sum256([]byte(repoRoot))
	return filepath.Join(resolved, "remote", hex.EncodeToString(sum[:])[:16]), nil
}

// findRepoRoot asks git for the enclosing repository's git directory and
// returns its parent. Sibling worktrees each report their own private
// git-dir under the main checkout's .git/worktrees/, which is why this is a
// best-effort stabilizer rather than a guarantee; it matches the behavior of
// the reference implementation this backend is ported from.
func findRepoRoot(start string) (string, bool) {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = start
	out, err := cmd.Output()
	if err != nil {
		return "", false
	}
	gitDir := strings.TrimSpace(string(out))
	if gitDir == "" {
		return "", false
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(start, gitDir)
	}
	parent := filepath.Dir(gitDir)
	if parent == "" || parent == gitDir {
		return "", false
	}
	return parent, true
}

// Get fetches the compressed artifact bytes stored under key.
func (f *FilesystemBackend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := f.s.Read(key)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Put uploads compressed artifact bytes under key, without a metadata
// sidecar (spec.md §4.7: "Layout and atomicity as in §4.6 but without the
// sidecar").
func (f *FilesystemBackend) Put(_ context.Context, key string, compressed []byte) error {
	err := f.s.StoreNoSidecar(key, compressed)
	if err == store.ErrAlreadyExists {
		return nil
	}
	return err
}

// Has reports whether key exists.
func (f *FilesystemBackend) Has(_ context.Context, key string) (bool, error) {
	return f.s.Has(key), nil
}
