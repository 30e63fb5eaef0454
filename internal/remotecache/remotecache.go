// Package remotecache implements the Backend contract for the remote,
// second-tier artifact cache (spec.md §4.7): an HTTP implementation talking
// to a cache server, and a filesystem implementation for shared-disk setups.
package remotecache

import (
	"context"

	"polykit/internal/polyerr"
)

// ErrNotFound is returned by Get when no artifact exists for key.
var ErrNotFound = &polyerr.AdapterError{Component: "remotecache", Message: "artifact not found"}

// Backend is the remote tier of the two-tier task output cache.
type Backend interface {
	// Get fetches the compressed artifact bytes stored under key.
	// Returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put uploads the compressed artifact bytes under key.
	Put(ctx context.Context, key string, compressed []byte) error
	// Has reports whether key exists without downloading the payload.
	Has(ctx context.Context, key string) (bool, error)
}
