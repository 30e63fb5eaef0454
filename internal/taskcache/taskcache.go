// Package taskcache implements the local, fingerprint-keyed cache of full
// TaskResult tuples (spec.md §3 TaskResult, §4.3 steps 3/5), the first tier
// the executor consults after a remote-cache miss.
package taskcache

import (
	"encoding/json"

	"polykit/internal/store"
)

// Result mirrors the in-memory TaskResult record (spec.md §3); when cached
// locally its payload is this same tuple, not an output file tree.
type Result struct {
	PackageName string `json:"package_name"`
	TaskName    string `json:"task_name"`
	Success     bool   `json:"success"`
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
}

// ErrNotFound is returned by Get when no result is cached for the key.
var ErrNotFound = store.ErrNotFound

// Cache is a fingerprint-keyed, write-once store of TaskResult JSON blobs,
// reusing the same sharded, atomic-write store the artifact cache uses.
type Cache struct {
	s *store.Store
}

// New constructs a Cache rooted at dir.
func New(dir string) (*Cache, error) {
	s, err := store.New(dir, 0, ".json")
	if err != nil {
		return nil, err
	}
	return &Cache{s: s}, nil
}

// Get returns the cached TaskResult for fingerprint key, or ErrNotFound.
func (c *Cache) Get(key string) (*Result, error) {
	data, err := c.s.Read(key)
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Put stores result under fingerprint key. A prior successful result for the
// same key is never overwritten (spec.md §4.6 write-once discipline); a
// repeat Put for an already-cached key is treated as a no-op, not an error,
// since identical inputs always produce an identical result.
func (c *Cache) Put(key string, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	err = c.s.Store(key, data, store.Metadata{Hash: key, Size: int64(len(data))})
	if err == store.ErrAlreadyExists {
		return nil
	}
	return err
}

// Has reports whether a result is cached for key.
func (c *Cache) Has(key string) bool {
	return c.s.Has(key)
}
