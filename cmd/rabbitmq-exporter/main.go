package main

import (
	"errors"
	"os"
)

const (
	exitFailure = 1
	exitStartup = 2
)

func main() {
	cmd := (&command{}).Cmd()
	cmd.AddCommand(versionCmd)
	cmd.AddCommand((&cpuwatchCommand{}).Cmd())

	if err := cmd.Execute(); err != nil {
		var startupErr *StartupError
		if errors.As(err, &startupErr) {
			os.Exit(exitStartup)
		}

		os.Exit(exitFailure)
	}
}
