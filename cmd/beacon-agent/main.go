package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "beacon-agent",
	Short: "Beacon agent - emits signed heartbeats from a game server",
	Long: `The beacon agent runs alongside a game server process and
periodically submits Ed25519-signed heartbeats to a beacon ingest
endpoint. Keys are generated with "beacon-agent keygen"; the public
half is registered server-side with "beacon key add".`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Beacon agent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(runCmd)
}
