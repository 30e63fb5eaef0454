// Package graph implements the dependency DAG over a workspace's packages:
// dense uint32-indexed adjacency, a cached topological order, level
// partitioning for parallelism, and dependents/affected-set queries
// (spec.md §4.2, §9).
package graph

import (
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set"

	"polykit/internal/descriptor"
	"polykit/internal/polyerr"
)

// DependencyGraph holds the packages of one workspace plus the edges
// between them, id-to-id over dense uint32 indices.
type DependencyGraph struct {
	packages []*descriptor.Package
	idOf     map[string]uint32
	// edges[i] holds the ids of i's internal dependencies (outgoing edges).
	edges [][]uint32
	// reverse[i] holds the ids of packages that directly depend on i.
	reverse [][]uint32

	topoOrder []uint32
	levels    [][]uint32 // levels[k] = ids at level k

	dependentsMemo sync.Map // id uint32 -> []uint32 (sorted)
}

// New builds a DependencyGraph from a package list. It fails with
// PackageNotFoundError if any dep names an unknown package, and with
// CircularDependencyError if the package graph is not a DAG.
func New(packages []*descriptor.Package) (*DependencyGraph, error) {
	g := &DependencyGraph{
		packages: packages,
		idOf:     make(map[string]uint32, len(packages)),
	}
	for i, p := range packages {
		g.idOf[p.Name] = uint32(i)
	}

	g.edges = make([][]uint32, len(packages))
	g.reverse = make([][]uint32, len(packages))
	for i, p := range packages {
		for _, depName := range p.Deps {
			depID, ok := g.idOf[depName]
			if !ok {
				return nil, &polyerr.PackageNotFoundError{Name: depName}
			}
			g.edges[i] = append(g.edges[i], depID)
			g.reverse[depID] = append(g.reverse[depID], uint32(i))
		}
	}

	order, err := g.computeTopoOrder()
	if err != nil {
		return nil, err
	}
	g.topoOrder = order
	g.levels = g.computeLevels()

	return g, nil
}

// Get returns the package with the given name, O(1).
func (g *DependencyGraph) Get(name string) (*descriptor.Package, bool) {
	id, ok := g.idOf[name]
	if !ok {
		return nil, false
	}
	return g.packages[id], true
}

// TopologicalOrder returns package names with dependencies appearing before
// dependents. Cached at construction.
func (g *DependencyGraph) TopologicalOrder() []string {
	names := make([]string, len(g.topoOrder))
	for i, id := range g.topoOrder {
		names[i] = g.packages[id].Name
	}
	return names
}

// computeTopoOrder performs a Kahn's-algorithm sort over the dependency
// edges (edges point from a package to its deps, so deps are "sources").
func (g *DependencyGraph) computeTopoOrder() ([]uint32, error) {
	n := len(g.packages)
	inDegree := make([]int, n) // number of deps not yet emitted
	for i := range g.edges {
		inDegree[i] = len(g.edges[i])
	}

	queue := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			queue = append(queue, uint32(i))
		}
	}
	sort.Slice(queue, func(i, j int) bool { return g.packages[queue[i]].Name < g.packages[queue[j]].Name })

	order := make([]uint32, 0, n)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		var unlocked []uint32
		for _, dependent := range g.reverse[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}
		sort.Slice(unlocked, func(i, j int) bool { return g.packages[unlocked[i]].Name < g.packages[unlocked[j]].Name })
		queue = append(queue, unlocked...)
		sort.Slice(queue, func(i, j int) bool { return g.packages[queue[i]].Name < g.packages[queue[j]].Name })
	}

	if len(order) != n {
		// Anything left off the order participates in a cycle.
		for i := 0; i < n; i++ {
			if inDegree[i] > 0 {
				return nil, &polyerr.CircularDependencyError{Package: g.packages[i].Name}
			}
		}
	}
	return order, nil
}

// computeLevels partitions packages such that level k contains every
// package whose longest path to a leaf (a package with no deps) is k.
// Packages with no outgoing edges are level 0.
func (g *DependencyGraph) computeLevels() [][]uint32 {
	n := len(g.packages)
	level := make([]int, n)
	maxLevel := 0
	// topoOrder has dependencies first, so by the time we reach a package
	// every one of its deps already has a final level.
	for _, id := range g.topoOrder {
		l := 0
		for _, dep := range g.edges[id] {
			if level[dep]+1 > l {
				l = level[dep] + 1
			}
		}
		level[id] = l
		if l > maxLevel {
			maxLevel = l
		}
	}
	levels := make([][]uint32, maxLevel+1)
	for id := 0; id < n; id++ {
		levels[level[id]] = append(levels[level[id]], uint32(id))
	}
	for _, ids := range levels {
		sort.Slice(ids, func(i, j int) bool { return g.packages[ids[i]].Name < g.packages[ids[j]].Name })
	}
	return levels
}

// DependencyLevels returns the level partition as package names.
func (g *DependencyGraph) DependencyLevels() [][]string {
	out := make([][]string, len(g.levels))
	for k, ids := range g.levels {
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = g.packages[id].Name
		}
		out[k] = names
	}
	return out
}

// Dependencies returns the direct internal deps of name.
func (g *DependencyGraph) Dependencies(name string) []string {
	id, ok := g.idOf[name]
	if !ok {
		return nil
	}
	return g.namesOf(g.edges[id])
}

// Dependents returns the packages that directly depend on name.
func (g *DependencyGraph) Dependents(name string) []string {
	id, ok := g.idOf[name]
	if !ok {
		return nil
	}
	return g.namesOf(g.reverse[id])
}

func (g *DependencyGraph) namesOf(ids []uint32) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = g.packages[id].Name
	}
	sort.Strings(names)
	return names
}

// AllDependents returns the transitive closure of packages that depend on
// name (via iterative DFS over the reverse edges), memoised per source id.
func (g *DependencyGraph) AllDependents(name string) []string {
	id, ok := g.idOf[name]
	if !ok {
		return nil
	}
	if cached, ok := g.dependentsMemo.Load(id); ok {
		return g.namesOf(cached.([]uint32))
	}

	visited := make(map[uint32]bool)
	stack := append([]uint32{}, g.reverse[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		stack = append(stack, g.reverse[cur]...)
	}

	ids := make([]uint32, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	g.dependentsMemo.Store(id, ids)
	return g.namesOf(ids)
}

// Affected returns the union of AllDependents(p) ∪ {p} for each changed
// package, as a deterministically ordered (sorted) slice.
func (g *DependencyGraph) Affected(changed []string) []string {
	result := mapset.NewThreadUnsafeSet()
	for _, name := range changed {
		if _, ok := g.idOf[name]; !ok {
			continue
		}
		result.Add(name)
		for _, dep := range g.AllDependents(name) {
			result.Add(dep)
		}
	}
	out := make([]string, 0, result.Cardinality())
	for v := range result.Iter() {
		out = append(out, v.(string))
	}
	sort.Strings(out)
	return out
}
