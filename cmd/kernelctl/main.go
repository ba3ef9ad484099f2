// Command kernelctl is the kernel's own entry point: it starts the
// front-end request loop, or inspects/edits the on-disk configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "kernelctl",
	Short: "Run and administer the orchestration kernel",
}

func main() {
	viper.SetEnvPrefix("kernel")
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
