package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"renkei/internal"
	devices "renkei/internal/cli"
	"renkei/internal/logger"
	"renkei/internal/renkei"
)

var (
	motorHost   string
	motorPort   int
	motorConfig string
	motorDevice string
	motorDebug  bool
	motorDelay  int
)

const motorConnectTimeout = 30 * time.Second

var motorCmd = &cobra.Command{
	Use:   "motor",
	Short: "Control a RENKEI PoE shade motor",
	Long: `Send commands to a RENKEI PoE motor controller over TCP.
Supports movement, status queries and diagnostics.`,
}

var motorMoveCmd = &cobra.Command{
	Use:   "move [position]",
	Short: "Move the shade to a position (0-100% open)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		position, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid position: %s", args[0])
		}

		client, err := newMotorClient()
		if err != nil {
			return err
		}
		defer client.Disconnect()

		log.Info().
			Int("position", position).
			Int("delay", motorDelay).
			Msg("Sending move command")

		data, err := client.Move(position, motorDelay)
		if err != nil {
			log.Error().Err(err).Msg("Failed to move motor")
			return err
		}

		printJSON(data)
		log.Info().Msg("Move command accepted")
		return nil
	},
}

var motorAbsoluteMoveCmd = &cobra.Command{
	Use:   "amove [position]",
	Short: "Move the shade to an absolute encoder position (0-65536)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		position, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid position: %s", args[0])
		}

		client, err := newMotorClient()
		if err != nil {
			return err
		}
		defer client.Disconnect()

		log.Info().
			Int("position", position).
			Int("delay", motorDelay).
			Msg("Sending absolute move command")

		data, err := client.AbsoluteMove(position, motorDelay)
		if err != nil {
			log.Error().Err(err).Msg("Failed to move motor")
			return err
		}

		printJSON(data)
		log.Info().Msg("Absolute move command accepted")
		return nil
	},
}

var motorStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the shade immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newMotorClient()
		if err != nil {
			return err
		}
		defer client.Disconnect()

		if _, err := client.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop motor")
			return err
		}

		log.Info().Msg("Motor stopped")
		return nil
	},
}

var motorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the motor's full status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newMotorClient()
		if err != nil {
			return err
		}
		defer client.Disconnect()

		data, err := client.GetStatus()
		if err != nil {
			log.Error().Err(err).Msg("Failed to query status")
			return err
		}

		printJSON(data)
		return nil
	},
}

var motorInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Query the controller's network identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newMotorClient()
		if err != nil {
			return err
		}
		defer client.Disconnect()

		info, err := client.GetInfo()
		if err != nil {
			log.Error().Err(err).Msg("Failed to query device info")
			return err
		}

		log.Info().
			Str("name", info.Name).
			Str("mac", info.MAC).
			Str("firmware", info.Firmware).
			Msg("Device identified")

		printJSON(info)
		return nil
	},
}

var motorJogCmd = &cobra.Command{
	Use:   "jog [count]",
	Short: "Nudge the shade to identify the motor (1-5 jogs)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid jog count: %s", args[0])
		}

		client, err := newMotorClient()
		if err != nil {
			return err
		}
		defer client.Disconnect()

		if _, err := client.Jog(count); err != nil {
			log.Error().Err(err).Msg("Failed to jog motor")
			return err
		}

		log.Info().Int("count", count).Msg("Jog command accepted")
		return nil
	},
}

var motorDiagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Collect a diagnostics report from the connected motor",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newMotorClient()
		if err != nil {
			return err
		}
		defer client.Disconnect()

		ctx, cancel := context.WithTimeout(context.Background(), motorConnectTimeout)
		defer cancel()

		printJSON(client.Diagnostics(ctx))
		return nil
	},
}

var motorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available motor commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Available motor commands:")
		fmt.Println("  move [0-100]     - Move to a percent-open position")
		fmt.Println("  amove [0-65536]  - Move to an absolute encoder position")
		fmt.Println("  stop             - Stop movement immediately")
		fmt.Println("  status           - Query position, limits and run state")
		fmt.Println("  info             - Query MAC address and firmware")
		fmt.Println("  jog [1-5]        - Nudge the shade for identification")
		fmt.Println("  diagnostics      - Collect a support report")
		fmt.Println("  devices          - List saved motors")
		return nil
	},
}

var motorDevicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List motors saved by the interactive interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := devices.NewStore(devices.DefaultStorePath())
		saved, err := store.List()
		if err != nil {
			return err
		}
		if len(saved) == 0 {
			fmt.Println("No saved motors")
			return nil
		}

		for _, entry := range saved {
			fmt.Printf("  %-20s %s\n", entry.Name, entry.Address())
		}
		return nil
	},
}

// newMotorClient builds a connected client from a config file, a saved
// motor or the host/port flags
func newMotorClient() (*renkei.RenkeiClient, error) {
	var cfg *renkei.Config
	var err error

	switch {
	case motorConfig != "":
		cfg, err = renkei.LoadConfig(motorConfig)
	case motorDevice != "":
		store := devices.NewStore(devices.DefaultStorePath())
		var entry *devices.MotorEntry
		entry, err = store.Get(motorDevice)
		if err == nil {
			cfg, err = renkei.NewConfig(entry.Host, entry.Port)
		}
	case motorHost != "":
		cfg, err = renkei.NewConfig(motorHost, motorPort)
	default:
		return nil, fmt.Errorf("one of --config, --device or --host is required")
	}
	if err != nil {
		return nil, err
	}

	if motorDebug {
		logger.SetSilentMode(false)
		logger.SetLevel("debug")
	}

	client := renkei.NewRenkeiClient(cfg, internal.WithDebug(motorDebug))

	ctx, cancel := context.WithTimeout(context.Background(), motorConnectTimeout)
	defer cancel()

	if !client.Connect(ctx) {
		return nil, fmt.Errorf("failed to connect to motor at %s", cfg.Address())
	}
	return client, nil
}

func printJSON(v any) {
	if v == nil {
		return
	}
	if data, ok := v.(map[string]any); ok && len(data) == 0 {
		return
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(pretty))
}

func init() {
	// Add persistent flags for motor commands
	motorCmd.PersistentFlags().StringVarP(&motorHost, "host", "H", "", "Motor controller host address")
	motorCmd.PersistentFlags().IntVarP(&motorPort, "port", "p", renkei.DefaultPort, "Motor controller TCP port")
	motorCmd.PersistentFlags().StringVarP(&motorConfig, "config", "c", "", "Path to a YAML config file")
	motorCmd.PersistentFlags().StringVar(&motorDevice, "device", "", "Name of a saved motor")
	motorCmd.PersistentFlags().BoolVarP(&motorDebug, "debug", "d", false, "Enable debug logging")
	motorMoveCmd.Flags().IntVar(&motorDelay, "delay", 0, "Seconds to wait before moving")
	motorAbsoluteMoveCmd.Flags().IntVar(&motorDelay, "delay", 0, "Seconds to wait before moving")

	// Add subcommands
	motorCmd.AddCommand(motorMoveCmd)
	motorCmd.AddCommand(motorAbsoluteMoveCmd)
	motorCmd.AddCommand(motorStopCmd)
	motorCmd.AddCommand(motorStatusCmd)
	motorCmd.AddCommand(motorInfoCmd)
	motorCmd.AddCommand(motorJogCmd)
	motorCmd.AddCommand(motorDiagnosticsCmd)
	motorCmd.AddCommand(motorListCmd)
	motorCmd.AddCommand(motorDevicesCmd)

	// Add to root command
	rootCmd.AddCommand(motorCmd)
}
