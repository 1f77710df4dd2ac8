package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/dirsearch/internal/config"
	"github.com/kailas-cloud/dirsearch/internal/version"
)

var env string

var rootCmd = &cobra.Command{
	Use:           "dirsearch",
	Short:         "Multi-tenant hybrid directory search for agents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&env, "env", config.GetEnv(), "config environment (local, dev, prod)")
	rootCmd.AddCommand(serveCmd, mcpCmd, migrateCmd, resyncCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
