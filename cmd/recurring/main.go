// Package main is the entry point for the recurring CLI.
package main

import (
	"os"

	"github.com/jask/recurring/cmd/recurring/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
