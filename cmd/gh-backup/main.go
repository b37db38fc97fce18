// Package main provides the entry point for the gh-backup CLI.
package main

import (
	"os"

	"github.com/randalmurphal/gh-backup/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
