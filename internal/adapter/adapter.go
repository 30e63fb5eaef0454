// Package adapter declares the contract a language-specific version-bump
// collaborator implements. No language adapters ship in this module;
// version detection/rewriting is explicitly out of scope (spec.md §1).
package adapter

// Adapter detects and manipulates a language's version marker file (e.g.
// package.json, pyproject.toml, Cargo.toml, go.mod) for a package at path.
type Adapter interface {
	// Detect reports whether this adapter's language owns path.
	Detect(path string) bool
	// ReadVersion returns the declared version string, or ok=false if the
	// file has none.
	ReadVersion(path string) (version string, ok bool)
	// WriteVersion rewrites the version marker at path to version.
	WriteVersion(path string, version string) error
}
