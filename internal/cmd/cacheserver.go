package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"polykit/internal/cacheserver"
	"polykit/internal/store"
)

func newCacheServerCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "cache-server",
		Short: "Run the reference remote artifact cache HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot, err := repoRootFromFlags(cmd)
			if err != nil {
				return err
			}
			helper, err := NewHelper(repoRoot)
			if err != nil {
				return err
			}

			s, err := store.New(helper.Settings.CacheDir, helper.Settings.MaxArtifactSize, ".zst")
			if err != nil {
				return err
			}
			srv := cacheserver.New(s, helper.Settings.MaxArtifactSize, helper.Logger)

			helper.Logger.Info("cache server listening", "addr", addr)
			fmt.Printf("listening on %s\n", addr)
			return http.ListenAndServe(addr, srv.Handler())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}
