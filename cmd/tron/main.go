// Package main provides the entry point for the tron CLI.
package main

import (
	"fmt"
	"os"

	"github.com/tron-run/tron/cmd/tron/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
