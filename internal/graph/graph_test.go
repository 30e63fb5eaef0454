package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"polykit/internal/descriptor"
	"polykit/internal/graph"
)

func pkg(name string, deps ...string) *descriptor.Package {
	return &descriptor.Package{Name: name, Language: descriptor.LangGo, Deps: deps}
}

func TestThreePackageLine(t *testing.T) {
	g, err := graph.New([]*descriptor.Package{
		pkg("a"),
		pkg("b", "a"),
		pkg("c", "b"),
	})
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b", "c"}, g.TopologicalOrder())
	require.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, g.DependencyLevels())
	require.Equal(t, []string{"a", "b", "c"}, g.Affected([]string{"a"}))
}

func TestCycleDetected(t *testing.T) {
	_, err := graph.New([]*descriptor.Package{
		pkg("a", "b"),
		pkg("b", "a"),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "circular dependency")
}

func TestUnknownDependency(t *testing.T) {
	_, err := graph.New([]*descriptor.Package{pkg("a", "ghost")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestLevelsPartitionNoIntraLevelEdges(t *testing.T) {
	g, err := graph.New([]*descriptor.Package{
		pkg("base"),
		pkg("mid1", "base"),
		pkg("mid2", "base"),
		pkg("top", "mid1", "mid2"),
	})
	require.NoError(t, err)
	levels := g.DependencyLevels()
	require.Equal(t, []string{"base"}, levels[0])
	require.ElementsMatch(t, []string{"mid1", "mid2"}, levels[1])
	require.Equal(t, []string{"top"}, levels[2])
}

func TestDependentsAndAffected(t *testing.T) {
	g, err := graph.New([]*descriptor.Package{
		pkg("a"),
		pkg("b", "a"),
		pkg("c", "b"),
		pkg("d"),
	})
	require.NoError(t, err)

	require.Equal(t, []string{"b"}, g.Dependents("a"))
	require.Equal(t, []string{"b", "c"}, g.AllDependents("a"))
	require.Equal(t, []string{"a", "b", "c", "d"}, g.Affected([]string{"a", "d"}))
}
