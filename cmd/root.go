package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set during build using ldflags
var Version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "packscan",
	Short:   "Scans projects for known-compromised package versions",
	Long:    `packscan is an incident-response CLI that scans npm, Maven/Gradle, and Python projects for dependency declarations, lockfile entries, and installed packages matching a list of known-compromised package versions.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
