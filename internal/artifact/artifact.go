// Package artifact implements the self-describing, compressed, verifiable
// output bundle produced by a task invocation (spec.md §4.5).
package artifact

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/DataDog/zstd"

	"polykit/internal/polyerr"
)

// FormatVersion is the current artifact wire-format version.
const FormatVersion = 1

// Metadata is metadata.json (spec.md §6).
type Metadata struct {
	PackageName     string `json:"package_name"`
	TaskName        string `json:"task_name"`
	Command         string `json:"command"`
	CacheKeyHash    string `json:"cache_key_hash"`
	CreatedAt       int64  `json:"created_at"`
	Version         int    `json:"version"`
}

// ManifestEntry names one output file's recorded content hash.
type ManifestEntry struct {
	Path string
	Hash string
}

// Manifest is manifest.json (spec.md §6): an ordered map of relative path
// to hex SHA-256, plus a total size.
type Manifest struct {
	Files     []ManifestEntry `json:"-"`
	TotalSize int64           `json:"total_size"`
}

type manifestWire struct {
	Files     map[string]string `json:"files"`
	TotalSize int64             `json:"total_size"`
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	files := make(map[string]string, len(m.Files))
	for _, e := range m.Files {
		files[e.Path] = e.Hash
	}
	return json.Marshal(manifestWire{Files: files, TotalSize: m.TotalSize})
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var wire manifestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.TotalSize = wire.TotalSize
	m.Files = make([]ManifestEntry, 0, len(wire.Files))
	for path, hash := range wire.Files {
		m.Files = append(m.Files, ManifestEntry{Path: path, Hash: hash})
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })
	return nil
}

// Artifact is the in-memory, parsed bundle. Compressed holds the original
// zstd-compressed tar bytes so repeated hashing/verification never needs to
// re-serialize.
type Artifact struct {
	Metadata   Metadata
	Manifest   Manifest
	Compressed []byte
}

// mtime is the fixed modification time baked into every tar entry so
// identical inputs always produce byte-identical tarballs.
var mtime = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// New builds an Artifact from a package/task/command/fingerprint hash and
// an ordered map of relative output path to file bytes (spec.md §4.5).
func New(pkgName, taskName, command, cacheKeyHash string, outputs map[string][]byte, now int64) (*Artifact, error) {
	paths := make([]string, 0, len(outputs))
	for p := range outputs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	manifest := Manifest{Files: make([]ManifestEntry, 0, len(paths))}
	for _, p := range paths {
		sum := sha256.Sum256(outputs[p])
		manifest.Files = append(manifest.Files, ManifestEntry{Path: p, Hash: hex.EncodeToString(sum[:])})
		manifest.TotalSize += int64(len(outputs[p]))
	}

	metadata := Metadata{
		PackageName:  pkgName,
		TaskName:     taskName,
		Command:      command,
		CacheKeyHash: cacheKeyHash,
		CreatedAt:    now,
		Version:      FormatVersion,
	}

	compressed, err := buildTar(metadata, manifest, outputs, paths)
	if err != nil {
		return nil, err
	}

	return &Artifact{Metadata: metadata, Manifest: manifest, Compressed: compressed}, nil
}

// buildTar emits metadata.json, then manifest.json, then each
// outputs/<path> entry in sorted order, and zstd-compresses the result.
func buildTar(metadata Metadata, manifest Manifest, outputs map[string][]byte, sortedPaths []string) ([]byte, error) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)

	metaBytes, err := json.Marshal(metadata)
	if err != nil {
		return nil, polyerr.Wrap(err, "encoding metadata.json")
	}
	if err := writeTarEntry(tw, "metadata.json", metaBytes); err != nil {
		return nil, err
	}

	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return nil, polyerr.Wrap(err, "encoding manifest.json")
	}
	if err := writeTarEntry(tw, "manifest.json", manifestBytes); err != nil {
		return nil, err
	}

	for _, p := range sortedPaths {
		if err := writeTarEntry(tw, "outputs/"+p, outputs[p]); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, polyerr.Wrap(err, "closing tar writer")
	}

	compressed, err := zstd.Compress(nil, tarBuf.Bytes())
	if err != nil {
		return nil, polyerr.Wrap(err, "compressing artifact")
	}
	return compressed, nil
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:       name,
		Mode:       0o644,
		Size:       int64(len(data)),
		Typeflag:   tar.TypeReg,
		ModTime:    mtime,
		AccessTime: mtime,
		ChangeTime: mtime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return polyerr.Wrap(err, "writing tar header for "+name)
	}
	if _, err := tw.Write(data); err != nil {
		return polyerr.Wrap(err, "writing tar body for "+name)
	}
	return nil
}

// FromCompressed decompresses and parses a previously-compressed artifact.
// Both metadata.json and manifest.json must be present.
func FromCompressed(compressed []byte) (*Artifact, error) {
	raw, err := zstd.Decompress(nil, compressed)
	if err != nil {
		return nil, polyerr.Wrap(err, "decompressing artifact")
	}

	var metadata *Metadata
	var manifest *Manifest
	tr := tar.NewReader(bytes.NewReader(raw))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, polyerr.Wrap(err, "reading artifact tar")
		}
		switch hdr.Name {
		case "metadata.json":
			data, readErr := io.ReadAll(tr)
			if readErr != nil {
				return nil, polyerr.Wrap(readErr, "reading metadata.json")
			}
			var m Metadata
			if jsonErr := json.Unmarshal(data, &m); jsonErr != nil {
				return nil, polyerr.Wrap(jsonErr, "parsing metadata.json")
			}
			metadata = &m
		case "manifest.json":
			data, readErr := io.ReadAll(tr)
			if readErr != nil {
				return nil, polyerr.Wrap(readErr, "reading manifest.json")
			}
			var m Manifest
			if jsonErr := json.Unmarshal(data, &m); jsonErr != nil {
				return nil, polyerr.Wrap(jsonErr, "parsing manifest.json")
			}
			manifest = &m
		}
	}
	if metadata == nil || manifest == nil {
		return nil, polyerr.Wrap(fmt.Errorf("missing metadata.json or manifest.json"), "parsing artifact")
	}
	return &Artifact{Metadata: *metadata, Manifest: *manifest, Compressed: compressed}, nil
}
