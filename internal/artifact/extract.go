package artifact

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/DataDog/zstd"

	"polykit/internal/polyerr"
)

// Extract decompresses the artifact and writes every outputs/<p> entry to
// dest/<p>, creating parent directories as needed. Metadata and manifest
// entries are skipped.
func (a *Artifact) Extract(dest string) error {
	raw, err := zstd.Decompress(nil, a.Compressed)
	if err != nil {
		return polyerr.Wrap(err, "decompressing artifact")
	}

	tr := tar.NewReader(bytes.NewReader(raw))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return polyerr.Wrap(err, "reading artifact tar")
		}
		rel, ok := strings.CutPrefix(hdr.Name, "outputs/")
		if !ok {
			continue // metadata.json / manifest.json
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o775); err != nil {
			return polyerr.Wrap(err, "creating output directory for "+rel)
		}
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return polyerr.Wrap(err, "creating output file "+rel)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return polyerr.Wrap(err, "writing output file "+rel)
		}
		if err := f.Close(); err != nil {
			return polyerr.Wrap(err, "closing output file "+rel)
		}
	}
	return nil
}
