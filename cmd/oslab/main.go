// Command oslab is the entry point for the OpenSearch operations lab toolkit.
// It provides a CLI interface (via Cobra) for index, pipeline, model, and
// agent management plus an optional HTTP demo server.
package main

import (
	"fmt"
	"os"

	"github.com/machzqcq/oslab-go/cmd/oslab/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
