package main

import (
	"os"

	"fsindex/internal/fsidxcli"
)

func main() {
	if err := fsidxcli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
