package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// set via -ldflags at build time.
//
var (
	version = "dev"
	commit  = "dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the version of this CLI",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version, commit)
	},
}

func userAgent() string {
	return "rabbitmq-exporter/" + version
}
