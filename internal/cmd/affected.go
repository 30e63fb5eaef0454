package cmd

import (
	"encoding/json"
	"fmt"

	"polykit/internal/changeset"
	"polykit/internal/graph"
)

func runAffected(g *graph.DependencyGraph, repoRoot, baseRef string) error {
	changedFiles, err := changeset.ChangedFilesFromGit(repoRoot, baseRef)
	if err != nil {
		return err
	}
	affected := changeset.Affected(g, repoRoot, changedFiles)
	out, err := json.MarshalIndent(affected, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
