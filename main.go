package main

import (
	"os"

	"github.com/ranswarm/ranswarm/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
