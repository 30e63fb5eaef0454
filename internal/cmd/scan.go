package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"polykit/internal/scanner"
)

func newScanCmd() *cobra.Command {
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover packages in the workspace and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot, err := repoRootFromFlags(cmd)
			if err != nil {
				return err
			}
			helper, err := NewHelper(repoRoot)
			if err != nil {
				return err
			}

			spin := newScanSpinner()
			spin.start("scanning workspace")
			s := scanner.New(repoRoot, helper.Settings.CacheDir, maxDepth, helper.Logger)
			packages, err := s.Scan()
			spin.stop(fmt.Sprintf("found %d package(s)", len(packages)))
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(packages, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "bound how many directory levels below the workspace root are scanned")
	return cmd
}
