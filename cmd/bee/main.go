package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/bee/pkg/log"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds how long manager/tm HTTP servers wait for
// in-flight requests to drain on SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

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
	Use:   "bee",
	Short: "BEE - HPC workflow orchestration",
	Long: `BEE orchestrates multi-step computational workflows across HPC
scheduler backends (Slurm, LSF) and local execution, tracking task
dependencies and data flow as a graph.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"bee version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(managerCmd)
	rootCmd.AddCommand(tmCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
