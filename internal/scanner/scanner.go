// Package scanner discovers polykit.toml package descriptors inside a
// workspace and maintains a persistent, mtime-validated scan cache so
// repeat invocations can skip re-reading every descriptor (spec.md §4.1).
package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/karrick/godirwalk"
	gitignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"polykit/internal/descriptor"
	"polykit/internal/polyerr"
)

// DescriptorFileName is the package descriptor file name, per spec.md §6.
const DescriptorFileName = "polykit.toml"

// IgnoreFileName is an optional root-level gitignore-syntax skip list
// honored while walking (a supplemented feature; see SPEC_FULL.md).
const IgnoreFileName = ".polykitignore"

// Scanner discovers packages under a workspace root.
type Scanner struct {
	WorkspaceRoot string
	CacheDir      string
	MaxDepth      int
	Logger        hclog.Logger
}

// New constructs a Scanner with the given bounded walk depth (default 2 per
// spec.md §4.1 when depth <= 0).
func New(workspaceRoot, cacheDir string, maxDepth int, logger hclog.Logger) *Scanner {
	if maxDepth <= 0 {
		maxDepth = 2
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Scanner{
		WorkspaceRoot: workspaceRoot,
		CacheDir:      cacheDir,
		MaxDepth:      maxDepth,
		Logger:        logger.Named("scanner"),
	}
}

// Scan returns the deterministically-sorted package list for the
// workspace, consulting (and then refreshing) the scan cache.
func (s *Scanner) Scan() ([]*descriptor.Package, error) {
	if cached, err := s.tryScanCache(); err != nil {
		return nil, err
	} else if cached != nil {
		s.Logger.Debug("scan cache hit")
		return cached, nil
	}

	descriptorPaths, mtimes, err := s.discoverDescriptorPaths()
	if err != nil {
		return nil, err
	}

	workspaceDescriptor, err := s.loadWorkspaceDescriptor()
	if err != nil {
		return nil, err
	}

	packages, err := s.parseAll(descriptorPaths, workspaceDescriptor)
	if err != nil {
		return nil, err
	}

	sort.Slice(packages, func(i, j int) bool { return packages[i].Name < packages[j].Name })

	mtimes[packageCountKey] = int64(len(descriptorPaths))
	snap := &Snapshot{FormatVersion: snapshotFormatVersion, Packages: packages, Mtimes: mtimes}
	if err := saveSnapshot(s.CacheDir, s.WorkspaceRoot, snap); err != nil {
		s.Logger.Warn("failed to persist scan cache", "error", err)
	}

	return packages, nil
}

// tryScanCache returns the cached package list iff the persisted snapshot
// is still valid and the number of polykit.toml files currently on disk
// equals its recorded package count, or nil (not an error) on a cache miss.
// Descriptors are walked but not re-read on a hit.
func (s *Scanner) tryScanCache() ([]*descriptor.Package, error) {
	snap, err := loadSnapshot(s.CacheDir, s.WorkspaceRoot)
	if err != nil {
		return nil, nil // corrupt snapshot is a miss, not a hard failure
	}
	if !snap.valid(s.WorkspaceRoot) {
		return nil, nil
	}
	current, _, err := s.discoverDescriptorPaths()
	if err != nil || int64(len(current)) != snap.Mtimes[packageCountKey] {
		return nil, nil
	}
	return snap.Packages, nil
}

// discoverDescriptorPaths walks the workspace to MaxDepth, returning every
// polykit.toml found (relative to the root) along with the mtimes map
// required by the scan snapshot (spec.md §3).
func (s *Scanner) discoverDescriptorPaths() ([]string, map[string]int64, error) {
	ignorer := s.loadIgnore()

	var mu sync.Mutex
	var descriptorPaths []string
	mtimes := make(map[string]int64)

	rootDepth := strings.Count(filepath.Clean(s.WorkspaceRoot), string(filepath.Separator))

	err := godirwalk.Walk(s.WorkspaceRoot, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			rel, relErr := filepath.Rel(s.WorkspaceRoot, osPathname)
			if relErr != nil {
				return relErr
			}
			if rel == "." {
				return nil
			}
			if ignorer != nil && ignorer.MatchesPath(rel) {
				if de.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			depth := strings.Count(filepath.Clean(osPathname), string(filepath.Separator)) - rootDepth
			if de.IsDir() {
				if depth > s.MaxDepth {
					return filepath.SkipDir
				}
				return nil
			}
			if de.Name() != DescriptorFileName {
				return nil
			}
			if filepath.Dir(rel) == "." {
				// The root-level descriptor is a workspace config (§6), not a
				// package descriptor; loadWorkspaceDescriptor reads it separately.
				return nil
			}
			info, statErr := os.Stat(osPathname)
			if statErr != nil {
				return statErr
			}
			dirRel := filepath.Dir(rel)
			dirInfo, dirStatErr := os.Stat(filepath.Dir(osPathname))
			if dirStatErr != nil {
				return dirStatErr
			}
			mu.Lock()
			descriptorPaths = append(descriptorPaths, rel)
			mtimes[rel] = info.ModTime().Unix()
			if dirRel != "." {
				mtimes[dirRel+dirSuffix] = dirInfo.ModTime().Unix()
			}
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		return nil, nil, polyerr.Wrap(err, "walking workspace")
	}
	return descriptorPaths, mtimes, nil
}

func (s *Scanner) loadIgnore() *gitignore.GitIgnore {
	path := filepath.Join(s.WorkspaceRoot, IgnoreFileName)
	ig, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return ig
}

func (s *Scanner) loadWorkspaceDescriptor() (*descriptor.Workspace, error) {
	path := filepath.Join(s.WorkspaceRoot, DescriptorFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, polyerr.Wrap(err, "reading root polykit.toml")
	}
	return descriptor.ParseWorkspace(data)
}

// parseAll parses every descriptor path in parallel (one errgroup goroutine
// per descriptor, with no concurrency limit), validating and constructing
// Packages.
func (s *Scanner) parseAll(relPaths []string, ws *descriptor.Workspace) ([]*descriptor.Package, error) {
	var mu sync.Mutex
	packages := make([]*descriptor.Package, 0, len(relPaths))
	seen := make(map[string]bool)

	g := &errgroup.Group{}
	for _, rel := range relPaths {
		rel := rel
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(s.WorkspaceRoot, rel))
			if err != nil {
				return polyerr.Wrap(err, "reading "+rel)
			}
			pkg, err := descriptor.Parse(data)
			if err != nil {
				return polyerr.Wrap(err, rel)
			}
			pkg.Path = filepath.ToSlash(filepath.Dir(rel))
			if pkg.Path == "." {
				pkg.Path = ""
			}
			descriptor.InjectWorkspaceTasks(pkg, ws)

			mu.Lock()
			defer mu.Unlock()
			if seen[pkg.Name] {
				return &polyerr.InvalidPackageNameError{Name: pkg.Name, Reason: "duplicate package name in workspace"}
			}
			seen[pkg.Name] = true
			packages = append(packages, pkg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Every dep must name a package present in this snapshot (spec.md §3).
	byName := make(map[string]bool, len(packages))
	for _, p := range packages {
		byName[p.Name] = true
	}
	for _, p := range packages {
		for _, dep := range p.Deps {
			if !byName[dep] {
				return nil, &polyerr.PackageNotFoundError{Name: dep}
			}
		}
	}

	return packages, nil
}
