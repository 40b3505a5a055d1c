// Command ragengine is the entry point for the document retrieval engine.
// It provides a CLI interface (via Cobra) and an HTTP server exposing
// ingestion and query endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/docuchat/ragengine/cmd/ragengine/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
