package main

import (
	"fmt"
	"os"

	"github.com/cuemby/fuzzmux/pkg/log"
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
	Use:   "fuzzmux",
	Short: "fuzzmux - a centralized event manager for multi-process fuzzing",
	Long: `fuzzmux wires independent fuzzer clients into a two-tier broker
topology: a centralized broker routing candidate inputs to a main
evaluator, and a main broker fanning accepted inputs back out to every
client.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fuzzmux version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Address to serve /metrics, /health, /ready on (disabled if empty)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(secondaryCmd)
	rootCmd.AddCommand(centralizedBrokerCmd)
	rootCmd.AddCommand(mainEvaluatorCmd)
	rootCmd.AddCommand(mainBrokerCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
