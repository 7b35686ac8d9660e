package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmdArgs struct {
	ConfigPath string
	Name       string
	Device     string
}

// statusCmd binds a throwaway ring to device and immediately prints the
// resulting status line, a quick health-check form of bindCmd with
// duration 0.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the module parameters and per-ring counters for a device",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := newSession(statusCmdArgs.ConfigPath)
		if err != nil {
			fail(err)
		}
		if statusCmdArgs.Device != "" {
			if _, err := s.bind(cmd.Context(), statusCmdArgs.Name, statusCmdArgs.Device); err != nil {
				fail(err)
			}
		}
		fmt.Print(s.rt.Status())
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusCmdArgs.Name, "name", "n", "status", "Ring name to report under")
	statusCmd.Flags().StringVarP(&statusCmdArgs.Device, "device", "i", "", "Network device to bind before reporting (omit to report an empty runtime)")
	addConfigFlag(statusCmd, &statusCmdArgs.ConfigPath)
}
