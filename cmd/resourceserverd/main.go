package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "resourceserverd",
		Short: "Resource server daemon and packaging tooling",
		Long: `resourceserverd compiles source asset descriptors into runtime
artifacts on demand, watching the source tree for changes and serving
connected clients over a websocket transport.`,
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(packageCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
