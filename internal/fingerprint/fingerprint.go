// Package fingerprint computes the deterministic cache key (CacheKey) for a
// single task invocation, per spec.md §4.4.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"polykit/internal/polyerr"
)

// HashAlgo labels which hash algorithm produced InputFileHashes. Only
// HashAlgoSHA256 is wired today; the label exists so a faster tree-hash
// could be swapped in later without changing the wire shape (spec.md §4.4).
type HashAlgo string

const HashAlgoSHA256 HashAlgo = "sha256"

// CacheKey is the structured fingerprint record from spec.md §3.
type CacheKey struct {
	PackageID            string
	TaskName             string
	Command              string
	EnvVars              []EnvPair // sorted by key
	InputFileHashes       []FileHash // sorted by relative path
	HashAlgo              HashAlgo
	DependencyGraphHash   string
	ToolchainVersion      string
}

// EnvPair is one allowlisted environment variable and its value.
type EnvPair struct {
	Key   string
	Value string
}

// FileHash is one input file's relative path and content hash.
type FileHash struct {
	Path string
	Hash string
}

// Inputs bundles everything Compute needs besides the graph.
type Inputs struct {
	PackageName    string
	AbsPackagePath string
	TaskName       string
	Command        string
	// DirectDeps is the package's direct internal dependency names, in the
	// order the graph reports them; used to build DependencyGraphHash.
	DirectDeps []string
	// EnvAllowlist is the configured set of env var names eligible for the
	// fingerprint.
	EnvAllowlist []string
	// InputPatterns are glob patterns (relative to AbsPackagePath) whose
	// matches are hashed into InputFileHashes.
	InputPatterns []string
	// Language selects which toolchain `--version` command is probed.
	Language string
}

// toolchainProbe maps a language tag to the command/args used to detect its
// toolchain version (spec.md §4.4).
var toolchainProbe = map[string][]string{
	"js":     {"node", "--version"},
	"ts":     {"node", "--version"},
	"python": {"python3", "--version"},
	"go":     {"go", "version"},
	"rust":   {"rustc", "--version"},
}

// toolchainLabel maps a language tag to the public toolchain_version prefix,
// e.g. "rustc-1.75.0".
var toolchainLabel = map[string]string{
	"js":     "node",
	"ts":     "node",
	"python": "python3",
	"go":     "go",
	"rust":   "rustc",
}

// DetectToolchainVersion runs "{tool} --version" (or "go version") and
// returns "<label>-<version>", where version is taken from the first line of
// the output (see extractVersionNumber). Failure to detect is a hard error
// per spec.md §4.4: tasks that cannot be fingerprinted cannot be cached.
func DetectToolchainVersion(language string) (string, error) {
	probe, ok := toolchainProbe[language]
	if !ok {
		return "", &polyerr.AdapterError{Component: "fingerprint", Message: "unknown language: " + language}
	}
	cmd := exec.Command(probe[0], probe[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return "", &polyerr.AdapterError{Component: "fingerprint", Message: "detecting toolchain version", Cause: err}
	}
	firstLine := strings.SplitN(string(out), "\n", 2)[0]
	firstLine = strings.TrimSpace(firstLine)
	if firstLine == "" {
		return "", &polyerr.AdapterError{Component: "fingerprint", Message: "empty toolchain version output"}
	}
	label := toolchainLabel[language]
	version := extractVersionNumber(firstLine)
	return fmt.Sprintf("%s-%s", label, version), nil
}

// extractVersionNumber pulls the first whitespace-delimited token containing
// a digit out of a "--version" banner line, e.g.
// "go version go1.21.0 linux/amd64" -> "go1.21.0". When no token contains a
// digit, the last token is returned.
func extractVersionNumber(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return line
	}
	for _, f := range fields {
		if strings.ContainsAny(f, "0123456789") {
			return f
		}
	}
	return fields[len(fields)-1]
}

// dependencyGraphHash is hex SHA-256 of "{pkg}:{task}" followed by ":{dep}"
// for each direct dependency, in the order given (spec.md §4.4).
func dependencyGraphHash(pkgName, task string, directDeps []string) string {
	var buf bytes.Buffer
	buf.WriteString(pkgName)
	buf.WriteByte(':')
	buf.WriteString(task)
	for _, dep := range directDeps {
		buf.WriteByte(':')
		buf.WriteString(dep)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// packageID is "{name}-{hex8(sha256(absolutePath))}" (spec.md §4.4).
func packageID(name, absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return fmt.Sprintf("%s-%s", name, hex.EncodeToString(sum[:])[:8])
}

// collectEnvVars intersects the process environment with allowlist, sorted
// by key (spec.md §4.4, §8 scenario 6).
func collectEnvVars(allowlist []string) []EnvPair {
	pairs := make([]EnvPair, 0, len(allowlist))
	for _, key := range allowlist {
		if val, ok := os.LookupEnv(key); ok {
			pairs = append(pairs, EnvPair{Key: key, Value: val})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs
}

// hashInputFiles walks each configured glob pattern under root, hashing
// every matched file. Missing paths are silently omitted (spec.md §4.4).
func hashInputFiles(root string, patterns []string) ([]FileHash, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		compiled, err := glob.Compile(p, '/')
		if err != nil {
			return nil, polyerr.Wrap(err, "compiling input pattern "+p)
		}
		globs = append(globs, compiled)
	}

	var hashes []FileHash
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // missing paths are silently omitted
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		matched := false
		for _, g := range globs {
			if g.Match(rel) {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		sum := sha256.Sum256(data)
		hashes = append(hashes, FileHash{Path: rel, Hash: hex.EncodeToString(sum[:])})
		return nil
	})
	if err != nil {
		return nil, polyerr.Wrap(err, "walking input patterns")
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Path < hashes[j].Path })
	return hashes, nil
}

// Compute builds the CacheKey for one task invocation.
func Compute(in Inputs) (*CacheKey, error) {
	toolchainVersion, err := DetectToolchainVersion(in.Language)
	if err != nil {
		return nil, err
	}
	fileHashes, err := hashInputFiles(in.AbsPackagePath, in.InputPatterns)
	if err != nil {
		return nil, err
	}
	return &CacheKey{
		PackageID:           packageID(in.PackageName, in.AbsPackagePath),
		TaskName:            in.TaskName,
		Command:             in.Command,
		EnvVars:             collectEnvVars(in.EnvAllowlist),
		InputFileHashes:     fileHashes,
		HashAlgo:            HashAlgoSHA256,
		DependencyGraphHash: dependencyGraphHash(in.PackageName, in.TaskName, in.DirectDeps),
		ToolchainVersion:    toolchainVersion,
	}, nil
}

// canonical produces the deterministic byte serialization the public
// identifier hashes over: every field in a fixed order, with ordered
// sub-collections, so equal CacheKeys always serialize identically
// regardless of map/slice construction order upstream.
func (k *CacheKey) canonical() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "package_id=%s\n", k.PackageID)
	fmt.Fprintf(&buf, "task_name=%s\n", k.TaskName)
	fmt.Fprintf(&buf, "command=%s\n", k.Command)
	buf.WriteString("env_vars=[")
	for _, p := range k.EnvVars {
		fmt.Fprintf(&buf, "%s=%s,", p.Key, p.Value)
	}
	buf.WriteString("]\n")
	buf.WriteString("input_file_hashes=[")
	for _, f := range k.InputFileHashes {
		fmt.Fprintf(&buf, "%s=%s,", f.Path, f.Hash)
	}
	buf.WriteString("]\n")
	fmt.Fprintf(&buf, "hash_algo=%s\n", k.HashAlgo)
	fmt.Fprintf(&buf, "dependency_graph_hash=%s\n", k.DependencyGraphHash)
	fmt.Fprintf(&buf, "toolchain_version=%s\n", k.ToolchainVersion)
	return buf.Bytes()
}

// ID returns hex(SHA-256(canonical_serialisation(fingerprint))), the public
// cache key identifier.
func (k *CacheKey) ID() string {
	sum := sha256.Sum256(k.canonical())
	return hex.EncodeToString(sum[:])
}
