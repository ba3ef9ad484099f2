package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set via -ldflags "-X main.version=..." at release build time.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kernelctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}
