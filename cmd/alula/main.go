// Command alula is the entry point for the AlUla Collections assistant.
// It provides a CLI interface (via Cobra) for one-off questions and lookups,
// and an HTTP server for chat and image identification.
package main

import (
	"fmt"
	"os"

	"github.com/alula-collections/alula-go/cmd/alula/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
