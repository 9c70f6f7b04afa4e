// Command codectx is the CLI entry point for the indexing and hybrid
// search engine: index a project directory, then search it.
package main

import (
	"os"

	"github.com/codectx/codectx/cmd/codectx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
