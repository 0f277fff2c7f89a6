// Package main is the entry point for the vocctl CLI binary.
package main

import (
	"os"

	cli "voc-dashboard/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
