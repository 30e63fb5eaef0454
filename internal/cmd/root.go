// Package cmd holds the polykit cobra command tree: scan, run, graph,
// affected, and cache-server.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"polykit/internal/config"
)

// Helper bundles the process-wide state every subcommand needs: resolved
// settings, a logger, and the workspace root.
type Helper struct {
	RepoRoot string
	Settings *config.Settings
	Logger   hclog.Logger
}

// NewHelper loads settings rooted at repoRoot and builds a logger whose
// level is controlled by POLYKIT_LOG_LEVEL.
func NewHelper(repoRoot string) (*Helper, error) {
	settings, err := config.Load(repoRoot)
	if err != nil {
		return nil, err
	}
	level := hclog.LevelFromString(os.Getenv(config.EnvLogLevel))
	if level == hclog.NoLevel {
		level = hclog.Warn
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "polykit",
		Level: level,
	})
	return &Helper{RepoRoot: repoRoot, Settings: settings, Logger: logger}, nil
}

// scanSpinner wraps a spinner.Spinner, started only when stdout is a real
// terminal.
type scanSpinner struct {
	spin    *spinner.Spinner
	enabled bool
}

func newScanSpinner() *scanSpinner {
	s := spinner.New(spinner.CharSets[11], 125*time.Millisecond, spinner.WithHiddenCursor(true))
	s.Writer = os.Stderr
	s.Color("faint") //nolint:errcheck
	return &scanSpinner{spin: s, enabled: isatty.IsTerminal(os.Stdout.Fd()) && !color.NoColor}
}

func (s *scanSpinner) start(label string) {
	if !s.enabled {
		return
	}
	s.spin.Suffix = " " + label
	s.spin.Start()
}

func (s *scanSpinner) stop(label string) {
	if !s.enabled {
		return
	}
	s.spin.FinalMSG = label + "\n"
	s.spin.Stop()
}

// Execute builds the root command and runs it with os.Args.
func Execute(version string) int {
	root := &cobra.Command{
		Use:          "polykit",
		Short:        "Polyglot monorepo task orchestrator",
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.PersistentFlags().String("cwd", "", "working directory to treat as the workspace root")

	root.AddCommand(newScanCmd())
	root.AddCommand(newGraphCmd())
	root.AddCommand(newAffectedCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newCacheServerCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func repoRootFromFlags(cmd *cobra.Command) (string, error) {
	cwd, err := cmd.Flags().GetString("cwd")
	if err != nil {
		return "", err
	}
	if cwd != "" {
		return cwd, nil
	}
	return os.Getwd()
}
