package main

import (
	"os"

	"github.com/harun/luna/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
