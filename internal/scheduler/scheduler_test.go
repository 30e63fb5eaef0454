package scheduler_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"polykit/internal/descriptor"
	"polykit/internal/graph"
	"polykit/internal/scheduler"
)

type recordingExecutor struct {
	mu    sync.Mutex
	order []string
	fail  map[string]bool
}

func (r *recordingExecutor) RunTask(_ context.Context, pkg *descriptor.Package, taskName string) (scheduler.Outcome, error) {
	r.mu.Lock()
	r.order = append(r.order, pkg.Name+":"+taskName)
	fail := r.fail[pkg.Name+":"+taskName]
	r.mu.Unlock()
	return scheduler.Outcome{Success: !fail, Stdout: "ok"}, nil
}

func pkg(name string, deps ...string) *descriptor.Package {
	return &descriptor.Package{
		Name: name,
		Deps: deps,
		Tasks: []descriptor.Task{
			{Name: "build"},
		},
	}
}

func TestDependencyCompletesBeforeDependent(t *testing.T) {
	g, err := graph.New([]*descriptor.Package{pkg("a", "b"), pkg("b")})
	require.NoError(t, err)

	exec := &recordingExecutor{fail: map[string]bool{}}
	s := scheduler.New(g, exec, 2)

	outcomes, err := s.Run(context.Background(), "build", nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	bIdx, aIdx := -1, -1
	for i, call := range exec.order {
		if call == "b:build" {
			bIdx = i
		}
		if call == "a:build" {
			aIdx = i
		}
	}
	require.GreaterOrEqual(t, bIdx, 0)
	require.GreaterOrEqual(t, aIdx, 0)
	require.Less(t, bIdx, aIdx)
}

func TestSinglePackageRunsSubgraphOnly(t *testing.T) {
	g, err := graph.New([]*descriptor.Package{pkg("a", "b"), pkg("b")})
	require.NoError(t, err)

	exec := &recordingExecutor{fail: map[string]bool{}}
	s := scheduler.New(g, exec, 2)

	outcomes, err := s.Run(context.Background(), "build", []string{"a"})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, []string{"a:build"}, exec.order)
}

func TestTaskSubgraphCycleDetected(t *testing.T) {
	p := &descriptor.Package{
		Name: "a",
		Tasks: []descriptor.Task{
			{Name: "build", DependsOn: []string{"lint"}},
			{Name: "lint", DependsOn: []string{"build"}},
		},
	}
	g, err := graph.New([]*descriptor.Package{p})
	require.NoError(t, err)

	exec := &recordingExecutor{fail: map[string]bool{}}
	s := scheduler.New(g, exec, 1)

	_, err = s.Run(context.Background(), "build", []string{"a"})
	require.Error(t, err)
}

func TestLevelFailureDoesNotCancelPeers(t *testing.T) {
	g, err := graph.New([]*descriptor.Package{pkg("a"), pkg("b")})
	require.NoError(t, err)

	exec := &recordingExecutor{fail: map[string]bool{"a:build": true}}
	s := scheduler.New(g, exec, 2)

	outcomes, err := s.Run(context.Background(), "build", nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	var sawB bool
	for _, o := range outcomes {
		if o.PackageName == "b" {
			sawB = true
			require.True(t, o.Success)
		}
	}
	require.True(t, sawB)
}
