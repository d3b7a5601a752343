package main

import (
	"os"

	computercraftcmder "github.com/suremarc/computercraft/cmd/computercraft"
)

func main() {
	cmd := computercraftcmder.NewComputercraftCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
