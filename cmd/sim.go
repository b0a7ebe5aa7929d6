package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"renkei/internal/logger"
	"renkei/internal/motorsim"
)

var (
	simListen   string
	simPosition int
	simTick     time.Duration
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a motor controller simulator",
	Long: `Start a simulated RENKEI PoE motor controller for development.
The simulator accepts the full command set and emits CURRENT_POS events
while the shade moves.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.SetSilentMode(false)

		server := motorsim.NewServer(simListen)
		server.SetTick(simTick)
		server.SetPosition(simPosition)

		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()

		fmt.Printf("Motor simulator listening on %s, press Ctrl+C to stop\n", server.Addr())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		stats := server.Stats()
		fmt.Printf("\nStopping simulator: served %d connections, %d commands, %d events\n",
			stats.Connections, stats.Commands, stats.Events)
		return nil
	},
}

func init() {
	simCmd.Flags().StringVarP(&simListen, "listen", "l", fmt.Sprintf(":%d", motorsim.DefaultListenPort), "Listen address")
	simCmd.Flags().IntVar(&simPosition, "position", 0, "Initial shade position (0-100% open)")
	simCmd.Flags().DurationVar(&simTick, "tick", 200*time.Millisecond, "Motion tick interval")
}
