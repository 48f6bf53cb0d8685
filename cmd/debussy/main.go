// Package main provides the entry point for the debussy CLI.
package main

import (
	"os"

	"github.com/debussylabs/debussy/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
