package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/logger"
)

var (
	debug      bool
	verbose    bool
	jsonLogs   bool
	quiet      bool
	configPath string
	envFile    string
	version    = "v0.1.0"

	rootCmd = &cobra.Command{
		Use:   "xenopipe",
		Short: "Run the xenograft contamination removal pipeline",
		Long: `xenopipe runs bioinformatics workflows as a DAG of containerised tasks.

Each task is sized from the size of its inputs, retried with backoff when it
runs on preemptible capacity, and its outputs are handed to downstream tasks
in a stable order. The built-in xenograft workflow removes host (mouse) reads
from a patient-derived xenograft sample aligned to a chimeric reference.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup(verbose || debug, jsonLogs, quiet)
			if debug {
				logger.Op.Debug("Debug logging enabled")
			}
		},
	}
)

// Execute runs the root command and prints a failure the way workflow
// errors are meant to be read
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, wferrors.FormatForCLI(err))
	}
	return err
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default: .env in the working directory, if present)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(historyCmd)
}
