// Package changeset implements change detection (spec.md §4.9): mapping
// changed file paths onto package names and composing the full rebuild set
// via graph.Affected.
package changeset

import (
	"os/exec"
	"path/filepath"
	"strings"

	"polykit/internal/graph"
	"polykit/internal/polyerr"
	"polykit/internal/scanner"
)

// MapToPackages maps each changed file path (already relative to
// workspaceRoot, or made so below) to an owning package name by (a)
// stripping the workspace root prefix, (b) if a path component names
// polykit.toml, using its parent component; otherwise using the first path
// component (spec.md §4.9).
func MapToPackages(workspaceRoot string, changedFiles []string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, raw := range changedFiles {
		rel := raw
		if filepath.IsAbs(raw) {
			if r, err := filepath.Rel(workspaceRoot, raw); err == nil {
				rel = r
			}
		}
		rel = filepath.ToSlash(rel)
		rel = strings.TrimPrefix(rel, "./")

		parts := strings.Split(rel, "/")
		if len(parts) == 0 || parts[0] == "" {
			continue
		}

		var name string
		if parts[len(parts)-1] == scanner.DescriptorFileName && len(parts) >= 2 {
			name = parts[len(parts)-2]
		} else {
			name = parts[0]
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Affected maps changedFiles onto packages and returns the full rebuild set
// (the changed packages plus every transitive dependent), via g.Affected.
func Affected(g *graph.DependencyGraph, workspaceRoot string, changedFiles []string) []string {
	return g.Affected(MapToPackages(workspaceRoot, changedFiles))
}

// validBaseRef rejects control characters and a leading '-' (which git would
// otherwise interpret as a flag), per spec.md §4.9.
func validBaseRef(ref string) error {
	if ref == "" {
		return &polyerr.AdapterError{Component: "changeset", Message: "base ref is empty"}
	}
	if strings.HasPrefix(ref, "-") {
		return &polyerr.AdapterError{Component: "changeset", Message: "base ref must not start with '-'"}
	}
	for _, r := range ref {
		if r < 0x20 || r == 0x7f {
			return &polyerr.AdapterError{Component: "changeset", Message: "base ref contains a control character"}
		}
	}
	return nil
}

// ChangedFilesFromGit diffs the working tree against baseRef using a git
// subprocess, returning paths relative to the repository root.
func ChangedFilesFromGit(repoRoot, baseRef string) ([]string, error) {
	if err := validBaseRef(baseRef); err != nil {
		return nil, err
	}

	cmd := exec.Command("git", "diff", "--name-only", baseRef)
	cmd.Dir = repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, polyerr.Wrap(err, "running git diff against "+baseRef)
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
