package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medparse/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "medparse",
	Short: "Medparse - medical document extraction and benchmarking",
	Long: `Medparse reads medical documents (lab reports, prescriptions, clinical
notes, scans and photos), extracts structured medical data, validates the
result against a confidence threshold and benchmarks lab values against
age, gender, disease and regional reference data.

Documents can be parsed one at a time, in parallel batches from a folder,
or over HTTP with the serve command.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("Medparse executed")

		fmt.Println("Welcome to Medparse!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
