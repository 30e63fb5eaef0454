package changeset_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"polykit/internal/changeset"
	"polykit/internal/descriptor"
	"polykit/internal/graph"
)

func TestMapToPackagesUsesFirstComponent(t *testing.T) {
	got := changeset.MapToPackages("/repo", []string{"packages/web/src/index.ts", "packages/api/polykit.toml"})
	require.ElementsMatch(t, []string{"packages", "api"}, got)
}

func TestMapToPackagesUsesDescriptorParent(t *testing.T) {
	got := changeset.MapToPackages("/repo", []string{"web/polykit.toml"})
	require.Equal(t, []string{"web"}, got)
}

func TestAffectedComposesWithGraph(t *testing.T) {
	g, err := graph.New([]*descriptor.Package{
		{Name: "a", Deps: []string{"b"}},
		{Name: "b"},
		{Name: "c"},
	})
	require.NoError(t, err)

	got := changeset.Affected(g, "/repo", []string{"b/src/lib.go"})
	require.Equal(t, []string{"a", "b"}, got)
}
