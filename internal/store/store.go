// Package store implements the sharded, atomic-write, immutable local
// artifact store (spec.md §4.6), reused both by the reference cache server
// and by the local task-result cache.
package store

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nightlyone/lockfile"

	"polykit/internal/polyerr"
)

// Metadata is the sidecar JSON written alongside each stored payload
// (spec.md §3 StorageMetadata).
type Metadata struct {
	Hash          string `json:"hash"`
	Size          int64  `json:"size"`
	CreatedAt     int64  `json:"created_at"`
	CacheKeyHash  string `json:"cache_key_hash"`
}

// ErrAlreadyExists is returned by Store when the key already has a payload
// on disk (spec.md §3: "write-once... subsequent writes... rejected with a
// conflict").
var ErrAlreadyExists = &polyerr.AdapterError{Component: "store", Message: "artifact already exists for this key"}

// ErrNotFound is returned by Read/ReadMetadata when the key has no payload.
var ErrNotFound = &polyerr.AdapterError{Component: "store", Message: "not found"}

// Store is a sharded, content-addressed, write-once directory tree.
// Layout: <root>/<K[0:2]>/<K[2:4]>/<K>.zst and <K>.json; <root>/tmp/ for
// in-flight uploads.
type Store struct {
	Root            string
	MaxArtifactSize int64
	// PayloadExt is the extension used for the payload file (".zst" for
	// artifacts, ".json" for task-result blobs); the sidecar metadata file
	// is always "<key>.json" alongside a non-JSON payload, or omitted
	// entirely when the payload itself is already JSON (task cache).
	PayloadExt string
}

// New constructs a Store rooted at dir, ensuring the directory tree exists.
func New(dir string, maxArtifactSize int64, payloadExt string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "tmp"), 0o775); err != nil {
		return nil, polyerr.Wrap(err, "creating store root")
	}
	return &Store{Root: dir, MaxArtifactSize: maxArtifactSize, PayloadExt: payloadExt}, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func (s *Store) shardDir(key string) string {
	if len(key) < 4 {
		return filepath.Join(s.Root, key)
	}
	return filepath.Join(s.Root, key[0:2], key[2:4])
}

func (s *Store) payloadPath(key string) string {
	return filepath.Join(s.shardDir(key), key+s.PayloadExt)
}

func (s *Store) metadataPath(key string) string {
	return filepath.Join(s.shardDir(key), key+".json")
}

// Has reports whether a payload exists for key.
func (s *Store) Has(key string) bool {
	_, err := os.Stat(s.payloadPath(key))
	return err == nil
}

// Store writes payload under key, along with a metadata sidecar. It rejects
// non-hex keys, oversized payloads, and keys that already have a stored
// payload (immutability).
func (s *Store) Store(key string, payload []byte, meta Metadata) error {
	return s.store(key, payload, &meta)
}

// StoreNoSidecar writes payload under key without a metadata sidecar file,
// for callers (the shared-filesystem remote cache backend) that reuse this
// layout for §4.6's store but skip §4.6's bookkeeping metadata.
func (s *Store) StoreNoSidecar(key string, payload []byte) error {
	return s.store(key, payload, nil)
}

func (s *Store) store(key string, payload []byte, meta *Metadata) error {
	if !isHex(key) {
		return &polyerr.AdapterError{Component: "store", Message: "key is not hex: " + key}
	}
	if s.MaxArtifactSize > 0 && int64(len(payload)) > s.MaxArtifactSize {
		return &polyerr.AdapterError{Component: "store", Message: "payload exceeds max artifact size"}
	}
	if s.Has(key) {
		return ErrAlreadyExists
	}

	tmpName := filepath.Join(s.Root, "tmp", uuid.NewString()+".tmp")
	if err := os.WriteFile(tmpName, payload, 0o644); err != nil {
		return polyerr.Wrap(err, "writing temp payload")
	}

	shard := s.shardDir(key)
	if err := os.MkdirAll(shard, 0o775); err != nil {
		_ = os.Remove(tmpName)
		return polyerr.Wrap(err, "creating shard directory")
	}

	dest := s.payloadPath(key)
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return polyerr.Wrap(err, "renaming payload into place")
	}

	if meta == nil || s.metadataPath(key) == dest {
		return nil
	}
	metaBytes, err := json.Marshal(meta)
	if err == nil {
		_ = os.WriteFile(s.metadataPath(key), metaBytes, 0o644) // best-effort, per spec.md §4.6
	}
	return nil
}

// Read returns the stored payload for key, or ErrNotFound.
func (s *Store) Read(key string) ([]byte, error) {
	data, err := os.ReadFile(s.payloadPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, polyerr.Wrap(err, "reading payload")
	}
	return data, nil
}

// ReadMetadata returns the sidecar metadata for key, or ErrNotFound.
func (s *Store) ReadMetadata(key string) (*Metadata, error) {
	data, err := os.ReadFile(s.metadataPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, polyerr.Wrap(err, "reading metadata")
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, polyerr.Wrap(err, "parsing metadata")
	}
	return &m, nil
}

// CleanupTemp removes every *.tmp file under <root>/tmp/, guarded by a
// process lockfile so concurrent orchestrator instances sharing one store
// root don't race the sweep.
func (s *Store) CleanupTemp() error {
	lockPath := filepath.Join(s.Root, "tmp", ".cleanup.lock")
	lock, err := lockfile.New(lockPath)
	if err != nil {
		return polyerr.Wrap(err, "constructing cleanup lockfile")
	}
	if err := lock.TryLock(); err != nil {
		// Another process is already cleaning up; not an error for us.
		return nil
	}
	defer lock.Unlock()

	tmpDir := filepath.Join(s.Root, "tmp")
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return polyerr.Wrap(err, "reading tmp directory")
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			_ = os.Remove(filepath.Join(tmpDir, e.Name()))
		}
	}
	return nil
}

// KeyFromHex extracts the hex digest portion of a file name produced by
// this store, used by callers that list a shard directory directly.
func KeyFromHex(filename, ext string) (string, bool) {
	if !strings.HasSuffix(filename, ext) {
		return "", false
	}
	key := strings.TrimSuffix(filename, ext)
	if !isHex(key) {
		return "", false
	}
	if _, err := hex.DecodeString(key); err != nil {
		return "", false
	}
	return key, true
}
