package cli

import (
	"fmt"

	"devicegateway/adb"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices known to the ADB server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := adb.NewClient(cfg.ADB.ServerAddr, cfg.ADB.Candidates)
		if err := client.EnsureServerRunning(cmd.Context()); err != nil {
			return err
		}

		devices, err := client.ListDevices(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing devices: %w", err)
		}
		return printJson(devices)
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
