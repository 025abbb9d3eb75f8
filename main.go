package main

import (
	"os"

	"github.com/kyleking/lyre/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
