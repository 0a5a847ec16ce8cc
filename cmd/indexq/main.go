package main

import (
	"os"

	"github.com/G-Research/indexq/cmd/indexq/cmd"
	"github.com/G-Research/indexq/internal/common"
)

// Config is handled by cmd/params.go
func main() {
	common.ConfigureCommandLineLogging()
	root := cmd.RootCmd()
	if err := root.Execute(); err != nil {
		// Cobra has already printed the error
		os.Exit(1)
	}
}
