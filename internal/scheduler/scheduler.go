// Package scheduler implements level-parallel task execution over a
// dependency graph, with per-package task-subgraph ordering (spec.md §4.3).
package scheduler

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"polykit/internal/descriptor"
	"polykit/internal/graph"
)

// Outcome is what a single package-task invocation produced.
type Outcome struct {
	PackageName string
	TaskName    string
	Success     bool
	Stdout      string
	Stderr      string
	Err         error
}

// Executor runs one task of one package to completion. Implementations own
// the per-task execution pipeline (cache consult, spawn, cache publish) from
// spec.md §4.3; the scheduler only decides order and concurrency.
type Executor interface {
	RunTask(ctx context.Context, pkg *descriptor.Package, taskName string) (Outcome, error)
}

// Scheduler dispatches a task across a workspace's dependency graph.
type Scheduler struct {
	Graph       *graph.DependencyGraph
	Executor    Executor
	Parallelism int
	// StopOnError halts scheduling of further levels once any task in a
	// completed level failed. Already-dispatched peers within a level are
	// never cancelled regardless of this setting (spec.md §4.3).
	StopOnError bool
}

// New constructs a Scheduler with a sane default parallelism when n <= 0.
func New(g *graph.DependencyGraph, exec Executor, parallelism int) *Scheduler {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Scheduler{Graph: g, Executor: exec, Parallelism: parallelism}
}

// Run executes taskName across packages (nil/empty means every package in
// the graph), level by level, and returns every Outcome plus an aggregated
// error from any errored package. A task that ran and failed (Success false,
// Err nil) is reported only through its Outcome and adds no error.
func (s *Scheduler) Run(ctx context.Context, taskName string, packages []string) ([]Outcome, error) {
	if len(packages) == 1 {
		outcome := s.runPackageSubgraph(ctx, packages[0], taskName)
		if outcome.Err != nil {
			return []Outcome{outcome}, outcome.Err
		}
		return []Outcome{outcome}, nil
	}

	scope := toSet(packages)
	var (
		all     []Outcome
		allErrs *multierror.Error
		mu      sync.Mutex
	)

	for _, level := range s.Graph.DependencyLevels() {
		names := filterLevel(level, scope)
		if len(names) == 0 {
			continue
		}

		sem := semaphore.NewWeighted(int64(s.Parallelism))
		var wg sync.WaitGroup
		levelFailed := false

		for _, name := range names {
			name := name
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				allErrs = multierror.Append(allErrs, err)
				mu.Unlock()
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				outcome := s.runPackageSubgraph(ctx, name, taskName)
				mu.Lock()
				all = append(all, outcome)
				if outcome.Err != nil || !outcome.Success {
					levelFailed = true
					if outcome.Err != nil {
						allErrs = multierror.Append(allErrs, outcome.Err)
					}
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		if levelFailed && s.StopOnError {
			break
		}
	}

	return all, allErrs.ErrorOrNil()
}

// runPackageSubgraph executes taskName's prerequisite chain within pkg, in
// order, stopping at the first failing prerequisite (spec.md §4.3).
func (s *Scheduler) runPackageSubgraph(ctx context.Context, pkgName, taskName string) Outcome {
	pkg, ok := s.Graph.Get(pkgName)
	if !ok {
		return Outcome{PackageName: pkgName, TaskName: taskName}
	}

	order, err := taskSubgraphOrder(pkg, taskName)
	if err != nil {
		return Outcome{PackageName: pkgName, TaskName: taskName, Err: err}
	}

	var last Outcome
	for _, t := range order {
		outcome, err := s.Executor.RunTask(ctx, pkg, t.Name)
		if err != nil {
			outcome.Err = err
		}
		outcome.PackageName = pkgName
		outcome.TaskName = t.Name
		last = outcome
		if outcome.Err != nil || !outcome.Success {
			return last
		}
	}
	return last
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil // nil means "no filter": every package is in scope
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func filterLevel(level []string, scope map[string]bool) []string {
	if scope == nil {
		return level
	}
	out := make([]string, 0, len(level))
	for _, name := range level {
		if scope[name] {
			out = append(out, name)
		}
	}
	return out
}
