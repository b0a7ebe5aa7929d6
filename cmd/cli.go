package cmd

import (
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"renkei/cmd/cli"
	"renkei/internal/logger"
	"renkei/internal/renkei"
)

var (
	cliHost   string
	cliPort   int
	debugFlag bool
	testFlag  bool
)

var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Start the interactive shade dashboard",
	Long: `Launch the interactive Terminal User Interface (TUI) for Renkei.
The dashboard shows live position, motion and connection state, and drives
the shade with single keystrokes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Set up logging based on debug or test flag
		if debugFlag || testFlag {
			logger.SetSilentMode(false) // Enable logging output
			if debugFlag {
				logger.SetLevel("debug")
			}
		} else {
			logger.SetSilentMode(true) // Keep logging silent
		}

		address := ""
		if cliHost != "" {
			address = net.JoinHostPort(cliHost, strconv.Itoa(cliPort))
		}

		log := logger.New()
		log.Info().
			Str("address", address).
			Bool("debug", debugFlag).
			Bool("test", testFlag).
			Msg("Starting Renkei dashboard")

		if err := cli.StartTUI(address, debugFlag, testFlag); err != nil {
			log.Error().Err(err).Msg("Failed to start TUI")
			return err
		}

		return nil
	},
}

func init() {
	cliCmd.Flags().StringVarP(&cliHost, "host", "H", "", "Motor controller host address")
	cliCmd.Flags().IntVarP(&cliPort, "port", "p", renkei.DefaultPort, "Motor controller TCP port")
	cliCmd.Flags().BoolVar(&debugFlag, "debug", false, "Enable debug logging inside the dashboard")
	cliCmd.Flags().BoolVar(&testFlag, "test", false, "Enable test mode (skip the motor stabilisation delay)")
}
