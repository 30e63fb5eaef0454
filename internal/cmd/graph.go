package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"polykit/internal/graph"
	"polykit/internal/scanner"
)

func buildGraph(cmd *cobra.Command) (*graph.DependencyGraph, string, error) {
	repoRoot, err := repoRootFromFlags(cmd)
	if err != nil {
		return nil, "", err
	}
	helper, err := NewHelper(repoRoot)
	if err != nil {
		return nil, "", err
	}
	s := scanner.New(repoRoot, helper.Settings.CacheDir, 0, helper.Logger)
	packages, err := s.Scan()
	if err != nil {
		return nil, "", err
	}
	g, err := graph.New(packages)
	if err != nil {
		return nil, "", err
	}
	return g, repoRoot, nil
}

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency levels of the workspace as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := buildGraph(cmd)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(g.DependencyLevels(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	return cmd
}

func newAffectedCmd() *cobra.Command {
	var baseRef string
	cmd := &cobra.Command{
		Use:   "affected",
		Short: "Print the packages affected by changes since a base git ref",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, repoRoot, err := buildGraph(cmd)
			if err != nil {
				return err
			}
			return runAffected(g, repoRoot, baseRef)
		},
	}
	cmd.Flags().StringVar(&baseRef, "base", "HEAD~1", "git ref to diff against")
	return cmd
}
