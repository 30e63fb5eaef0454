package scanner

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DataDog/zstd"

	"polykit/internal/descriptor"
	"polykit/internal/polyerr"
)

// snapshotFormatVersion guards against reading a snapshot written by an
// incompatible scanner revision.
const snapshotFormatVersion = 1

// Snapshot is the persisted, mtime-validated scan result, per spec.md §3/§6.
type Snapshot struct {
	FormatVersion int                `json:"format_version"`
	Packages      []*descriptor.Package `json:"packages"`
	Mtimes        map[string]int64   `json:"mtimes"`
}

// snapshotPath mirrors spec.md §6: "scan_<hex hash of workspace path>.bin".
func snapshotPath(cacheDir, workspaceRoot string) string {
	sum := sha256.Sum256([]byte(workspaceRoot))
	name := fmt.Sprintf("scan_%s.bin", hex.EncodeToString(sum[:])[:16])
	return filepath.Join(cacheDir, name)
}

// loadSnapshot reads and decompresses a persisted snapshot, if present.
func loadSnapshot(cacheDir, workspaceRoot string) (*Snapshot, error) {
	path := snapshotPath(cacheDir, workspaceRoot)
	compressed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, polyerr.Wrap(err, "reading scan snapshot")
	}
	raw, err := zstd.Decompress(nil, compressed)
	if err != nil {
		return nil, polyerr.Wrap(err, "decompressing scan snapshot")
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, polyerr.Wrap(err, "parsing scan snapshot")
	}
	return &snap, nil
}

// saveSnapshot compresses and persists a freshly computed snapshot.
func saveSnapshot(cacheDir, workspaceRoot string, snap *Snapshot) error {
	if err := os.MkdirAll(cacheDir, 0o775); err != nil {
		return polyerr.Wrap(err, "creating cache directory")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return polyerr.Wrap(err, "serializing scan snapshot")
	}
	compressed, err := zstd.Compress(nil, raw)
	if err != nil {
		return polyerr.Wrap(err, "compressing scan snapshot")
	}
	path := snapshotPath(cacheDir, workspaceRoot)
	return os.WriteFile(path, compressed, 0o644)
}

// packageCountKey and dirSuffix match spec.md §3's ScanSnapshot.mtimes
// conventions: every containing package directory is keyed with ".dir",
// and a synthetic ".package_count" entry records the descriptor count.
const (
	packageCountKey = ".package_count"
	dirSuffix       = ".dir"
)

// valid reports whether snap still matches the workspace on disk: format
// version matches, the recorded package count equals the number of
// descriptor entries in the snapshot, and every recorded mtime equals the
// file/directory's current mtime. It does not count the descriptors on
// disk; Scanner.tryScanCache compares the recorded count against a fresh
// walk.
func (snap *Snapshot) valid(workspaceRoot string) bool {
	if snap == nil || snap.FormatVersion != snapshotFormatVersion {
		return false
	}
	currentCount, err := countDescriptorsInMtimes(snap.Mtimes)
	if err != nil {
		return false
	}
	if recorded, ok := snap.Mtimes[packageCountKey]; !ok || recorded != int64(currentCount) {
		return false
	}
	for relPath, recordedMtime := range snap.Mtimes {
		if relPath == packageCountKey {
			continue
		}
		abs := filepath.Join(workspaceRoot, strings.TrimSuffix(relPath, dirSuffix))
		info, err := os.Stat(abs)
		if err != nil {
			return false
		}
		if info.ModTime().Unix() != recordedMtime {
			return false
		}
	}
	return true
}

// countDescriptorsInMtimes counts the non-".dir"/".package_count" entries,
// which are exactly the recorded polykit.toml files.
func countDescriptorsInMtimes(mtimes map[string]int64) (int, error) {
	count := 0
	for k := range mtimes {
		if k == packageCountKey {
			continue
		}
		if bytes.HasSuffix([]byte(k), []byte(dirSuffix)) {
			continue
		}
		count++
	}
	return count, nil
}
