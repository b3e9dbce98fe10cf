// cmd/devices.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/stringtuner/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	Long:  `Lists capture devices. Pass an ID to --device or set device_id in the config file.`,
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, _ []string) error {
	input := audio.NewInput()
	if err := input.Init(); err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	defer input.Close()

	devices, err := input.InputDevices()
	if err != nil {
		return fmt.Errorf("audio devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no input devices found")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME")
	for _, d := range devices {
		mark := ""
		if d.Default {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", mark, d.ID, d.Name)
	}
	return tw.Flush()
}
