package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"renkei/internal/logger"
)

var (
	verbose bool
	log     = logger.New()
)

var rootCmd = &cobra.Command{
	Use:   "renkei",
	Short: "Renkei - Control RENKEI PoE shade motors",
	Long: `Renkei is a command-line application for RENKEI PoE motorised shades.
It speaks the controller's newline-delimited JSON protocol over TCP and
includes an interactive dashboard, a live event watcher and a motor simulator.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel("debug")
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(cliCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(simCmd)
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
