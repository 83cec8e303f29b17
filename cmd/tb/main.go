// Package main is the entry point for the tb CLI.
package main

import (
	"fmt"
	"os"

	"github.com/anivar/termbrain-sub001/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tb: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}
