package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ringtap/ringtap/internal/capture"
)

var stringCmdArgs struct {
	ConfigPath string
	Name       string
	Device     string
	Pattern    string
	Duration   time.Duration
}

// stringCmd installs the Aho-Corasick payload pattern (spec.md §6
// SET_STRING): a port-80 TCP/UDP frame with a non-empty payload that does
// not contain it is dropped; every other frame skips the check (spec.md
// §4.2 step 7).
var stringCmd = &cobra.Command{
	Use:   "string",
	Short: "Install the payload-matching pattern for a ring's port-80 frames",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runString(cmd); err != nil {
			fail(err)
		}
	},
}

func init() {
	stringCmd.Flags().StringVarP(&stringCmdArgs.Name, "name", "n", "", "Ring name (required)")
	stringCmd.Flags().StringVarP(&stringCmdArgs.Device, "device", "i", "", "Network device to bind (required)")
	stringCmd.Flags().StringVarP(&stringCmdArgs.Pattern, "pattern", "p", "", "Payload substring to require (required)")
	stringCmd.MarkFlagRequired("name")
	stringCmd.MarkFlagRequired("device")
	stringCmd.MarkFlagRequired("pattern")
	addConfigFlag(stringCmd, &stringCmdArgs.ConfigPath)
	addDurationFlag(stringCmd, &stringCmdArgs.Duration)
}

func runString(cmd *cobra.Command) error {
	s, err := newSession(stringCmdArgs.ConfigPath)
	if err != nil {
		return err
	}
	sock, err := s.bind(cmd.Context(), stringCmdArgs.Name, stringCmdArgs.Device)
	if err != nil {
		return err
	}

	if err := s.rt.Apply(sock, capture.OptSetString, stringCmdArgs.Pattern); err != nil {
		return err
	}

	s.captureFor(cmd.Context(), sock.Device, stringCmdArgs.Duration)

	fmt.Print(s.rt.Status())
	return nil
}
