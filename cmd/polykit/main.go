// Command polykit discovers packages in a polyglot monorepo, builds their
// dependency graph, and runs tasks across the workspace with a two-tier
// content-addressed cache.
package main

import (
	"os"

	"polykit/internal/cmd"
)

const version = "0.1.0"

func main() {
	os.Exit(cmd.Execute(version))
}
