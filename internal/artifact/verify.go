package artifact

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/DataDog/zstd"

	"polykit/internal/polyerr"
)

// Verifier checks the structural integrity of a parsed Artifact: an
// optional expected-hash comparison against the compressed bytes, followed
// by a re-scan of every outputs/<p> entry against the manifest. Kept as its
// own type, separate from parsing, so callers can parse once and verify
// against different expected hashes (e.g. a cache-server upload check vs.
// a consumer's post-download check).
type Verifier struct{}

// Verify checks artifact against expectedHash (when non-empty) and
// recomputes every output file's SHA-256 against the manifest.
func (Verifier) Verify(a *Artifact, expectedHash string) error {
	if expectedHash != "" {
		sum := sha256.Sum256(a.Compressed)
		if hex.EncodeToString(sum[:]) != expectedHash {
			return &polyerr.AdapterError{Component: "artifact", Message: "compressed-bytes hash mismatch"}
		}
	}

	raw, err := zstd.Decompress(nil, a.Compressed)
	if err != nil {
		return &polyerr.AdapterError{Component: "artifact", Message: "decompressing for verification", Cause: err}
	}

	expected := make(map[string]string, len(a.Manifest.Files))
	for _, e := range a.Manifest.Files {
		expected[e.Path] = e.Hash
	}

	seen := make(map[string]bool, len(expected))
	tr := tar.NewReader(bytes.NewReader(raw))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &polyerr.AdapterError{Component: "artifact", Message: "reading tar during verification", Cause: err}
		}
		rel, ok := strings.CutPrefix(hdr.Name, "outputs/")
		if !ok {
			continue
		}
		wantHash, ok := expected[rel]
		if !ok {
			return &polyerr.AdapterError{Component: "artifact", Message: fmt.Sprintf("output %q not present in manifest", rel)}
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return &polyerr.AdapterError{Component: "artifact", Message: "reading output " + rel, Cause: err}
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != wantHash {
			return &polyerr.AdapterError{Component: "artifact", Message: fmt.Sprintf("output %q hash mismatch", rel)}
		}
		seen[rel] = true
	}

	for path := range expected {
		if !seen[path] {
			return &polyerr.AdapterError{Component: "artifact", Message: fmt.Sprintf("manifest entry %q missing from payload", path)}
		}
	}
	return nil
}
