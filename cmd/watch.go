package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"renkei/internal/renkei"
)

var (
	watchHost   string
	watchPort   int
	watchConfig string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live status and connection events from a motor",
	Long: `Connect to a motor controller and print every status update and
connection state change until interrupted. The connection self-heals, so
watch keeps reporting across motor reboots.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg *renkei.Config
		var err error

		switch {
		case watchConfig != "":
			cfg, err = renkei.LoadConfig(watchConfig)
		case watchHost != "":
			cfg, err = renkei.NewConfig(watchHost, watchPort)
		default:
			return fmt.Errorf("either --config or --host is required")
		}
		if err != nil {
			return err
		}

		client := renkei.NewRenkeiClient(cfg)

		statusHandle := client.OnStatus(func(snap renkei.Snapshot) {
			line, err := json.Marshal(snap)
			if err != nil {
				return
			}
			fmt.Printf("%s status %s\n", time.Now().Format(time.RFC3339), line)
		})
		connHandle := client.OnConnection(func(state renkei.ConnState) {
			fmt.Printf("%s connection %s\n", time.Now().Format(time.RFC3339), state)
		})
		defer client.RemoveStatusObserver(statusHandle)
		defer client.RemoveConnectionObserver(connHandle)

		ctx, cancel := context.WithTimeout(context.Background(), motorConnectTimeout)
		defer cancel()

		if !client.Connect(ctx) {
			exitWithError(fmt.Errorf("failed to connect to motor at %s", cfg.Address()))
		}
		defer client.Disconnect()

		fmt.Printf("Watching motor at %s, press Ctrl+C to stop\n", cfg.Address())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		fmt.Println("\nStopping watch")
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchHost, "host", "H", "", "Motor controller host address")
	watchCmd.Flags().IntVarP(&watchPort, "port", "p", renkei.DefaultPort, "Motor controller TCP port")
	watchCmd.Flags().StringVarP(&watchConfig, "config", "c", "", "Path to a YAML config file")
}
