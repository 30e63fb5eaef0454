package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"polykit/internal/executor"
	"polykit/internal/graph"
	"polykit/internal/remotecache"
	"polykit/internal/scanner"
	"polykit/internal/scheduler"
	"polykit/internal/taskcache"
)

func newRunCmd() *cobra.Command {
	var packages []string
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a task across the workspace with maximum safe parallelism",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskName := args[0]
			repoRoot, err := repoRootFromFlags(cmd)
			if err != nil {
				return err
			}
			helper, err := NewHelper(repoRoot)
			if err != nil {
				return err
			}

			s := scanner.New(repoRoot, helper.Settings.CacheDir, 0, helper.Logger)
			pkgs, err := s.Scan()
			if err != nil {
				return err
			}
			g, err := graph.New(pkgs)
			if err != nil {
				return err
			}

			tc, err := taskcache.New(helper.Settings.CacheDir)
			if err != nil {
				return err
			}

			var remote remotecache.Backend
			if helper.Settings.RemoteCacheURL != "" {
				remote = remotecache.NewHTTPBackend(helper.Settings.RemoteCacheURL, helper.Settings.RemoteCacheToken, 30*time.Second, helper.Logger)
			}

			exec := executor.New(executor.Options{
				WorkspaceRoot: repoRoot,
				EnvAllowlist:  helper.Settings.EnvAllowlist,
				StrictCommand: helper.Settings.StrictCommands,
				RemoteCache:   remote,
				TaskCache:     tc,
				Sink:          streamToStdout,
				Logger:        helper.Logger,
			})

			sched := scheduler.New(g, exec, helper.Settings.Parallelism)
			outcomes, runErr := sched.Run(context.Background(), taskName, packages)

			out, jsonErr := json.MarshalIndent(outcomes, "", "  ")
			if jsonErr != nil {
				return jsonErr
			}
			fmt.Println(string(out))
			return runErr
		},
	}
	cmd.Flags().StringSliceVar(&packages, "package", nil, "restrict the run to these packages (repeatable)")
	return cmd
}

func streamToStdout(packageName, line string, isStderr bool) {
	prefix := "stdout"
	if isStderr {
		prefix = "stderr"
	}
	fmt.Printf("%s [%s] %s\n", packageName, prefix, line)
}
