package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ringtap/ringtap/internal/capture"
)

var bloomCmd = &cobra.Command{
	Use:   "bloom",
	Short: "Manage a ring's bloom filter rules (spec.md §6 SET_BLOOM family)",
}

var bloomSetArgs struct {
	ConfigPath string
	Name       string
	Device     string
	Rules      []string
	Enable     bool
	Duration   time.Duration
}

var bloomSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Install one or more +tag=value/-tag=value bloom rules and enable matching",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runBloomSet(cmd); err != nil {
			fail(err)
		}
	},
}

var bloomResetArgs struct {
	ConfigPath string
	Name       string
	Device     string
}

var bloomResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear every bloom set on a ring (spec.md §6 RESET_BLOOM_FILTERS)",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runBloomReset(cmd); err != nil {
			fail(err)
		}
	},
}

func init() {
	bloomCmd.AddCommand(bloomSetCmd)
	bloomCmd.AddCommand(bloomResetCmd)

	bloomSetCmd.Flags().StringVarP(&bloomSetArgs.Name, "name", "n", "", "Ring name (required)")
	bloomSetCmd.Flags().StringVarP(&bloomSetArgs.Device, "device", "i", "", "Network device to bind (required)")
	bloomSetCmd.Flags().StringSliceVarP(&bloomSetArgs.Rules, "rule", "r", nil, "A +tag=value or -tag=value bloom rule; repeatable")
	bloomSetCmd.Flags().BoolVar(&bloomSetArgs.Enable, "enable", true, "Toggle bloom matching on after installing the rules")
	bloomSetCmd.MarkFlagRequired("name")
	bloomSetCmd.MarkFlagRequired("device")
	bloomSetCmd.MarkFlagRequired("rule")
	addConfigFlag(bloomSetCmd, &bloomSetArgs.ConfigPath)
	addDurationFlag(bloomSetCmd, &bloomSetArgs.Duration)

	bloomResetCmd.Flags().StringVarP(&bloomResetArgs.Name, "name", "n", "", "Ring name (required)")
	bloomResetCmd.Flags().StringVarP(&bloomResetArgs.Device, "device", "i", "", "Network device to bind (required)")
	bloomResetCmd.MarkFlagRequired("name")
	bloomResetCmd.MarkFlagRequired("device")
	addConfigFlag(bloomResetCmd, &bloomResetArgs.ConfigPath)
}

func runBloomSet(cmd *cobra.Command) error {
	s, err := newSession(bloomSetArgs.ConfigPath)
	if err != nil {
		return err
	}
	sock, err := s.bind(cmd.Context(), bloomSetArgs.Name, bloomSetArgs.Device)
	if err != nil {
		return err
	}

	for _, rule := range bloomSetArgs.Rules {
		if err := s.rt.Apply(sock, capture.OptSetBloom, rule); err != nil {
			return fmt.Errorf("rule %q: %w", rule, err)
		}
	}
	if err := s.rt.Apply(sock, capture.OptToggleBloomState, bloomSetArgs.Enable); err != nil {
		return err
	}

	s.captureFor(cmd.Context(), sock.Device, bloomSetArgs.Duration)

	fmt.Print(s.rt.Status())
	return nil
}

func runBloomReset(cmd *cobra.Command) error {
	s, err := newSession(bloomResetArgs.ConfigPath)
	if err != nil {
		return err
	}
	sock, err := s.bind(cmd.Context(), bloomResetArgs.Name, bloomResetArgs.Device)
	if err != nil {
		return err
	}
	if err := s.rt.Apply(sock, capture.OptResetBloomFilters, nil); err != nil {
		return err
	}
	fmt.Print(s.rt.Status())
	return nil
}
