// Command sentinel is the ShortSentinel engine binary: it wires the Venue
// Adapters, Data Hub, Feature Pipeline, Scorer, Entry Trigger, Exit Manager,
// and Journal together behind a cobra CLI, following the teacher's
// cmd/cryptorun/main.go root-command + zerolog-init shape.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/shortsentinel/internal/logging"
)

const appName = "sentinel"

func main() {
	var debug bool
	var configPath string

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "ShortSentinel: cross-venue perpetual-futures short-signal engine",
		Version: "v1.0.0",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(debug)
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config overlay path")

	rootCmd.AddCommand(newRunCmd(&configPath))
	rootCmd.AddCommand(newStatusCmd(&configPath))
	rootCmd.AddCommand(newSymbolsCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("sentinel exited with error")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
