package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var bindCmdArgs struct {
	ConfigPath string
	Name       string
	Device     string
	Duration   time.Duration
}

var bindCmd = &cobra.Command{
	Use:   "bind",
	Short: "Bind a capture ring to a device and capture for a duration",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runBind(cmd); err != nil {
			fail(err)
		}
	},
}

func init() {
	bindCmd.Flags().StringVarP(&bindCmdArgs.Name, "name", "n", "", "Ring name (required)")
	bindCmd.Flags().StringVarP(&bindCmdArgs.Device, "device", "i", "", "Network device to bind (required)")
	bindCmd.MarkFlagRequired("name")
	bindCmd.MarkFlagRequired("device")
	addConfigFlag(bindCmd, &bindCmdArgs.ConfigPath)
	addDurationFlag(bindCmd, &bindCmdArgs.Duration)
}

func runBind(cmd *cobra.Command) error {
	s, err := newSession(bindCmdArgs.ConfigPath)
	if err != nil {
		return err
	}

	sock, err := s.bind(cmd.Context(), bindCmdArgs.Name, bindCmdArgs.Device)
	if err != nil {
		return err
	}

	s.captureFor(cmd.Context(), sock.Device, bindCmdArgs.Duration)

	fmt.Print(s.rt.Status())
	return nil
}
