package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ringtap/ringtap/internal/capture"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage cluster membership for a capture ring",
}

var clusterAddArgs struct {
	ConfigPath string
	Name       string
	Device     string
	ClusterID  uint16
	Mode       string
	Duration   time.Duration
}

var clusterAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Bind a ring and join it to a cluster",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runClusterAdd(cmd); err != nil {
			fail(err)
		}
	},
}

var clusterRemoveArgs struct {
	ConfigPath string
	Name       string
	Device     string
	ClusterID  uint16
}

var clusterRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Bind a ring and leave its cluster, falling back to unclustered dispatch",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runClusterRemove(cmd); err != nil {
			fail(err)
		}
	},
}

func init() {
	clusterCmd.AddCommand(clusterAddCmd)
	clusterCmd.AddCommand(clusterRemoveCmd)

	clusterAddCmd.Flags().StringVarP(&clusterAddArgs.Name, "name", "n", "", "Ring name (required)")
	clusterAddCmd.Flags().StringVarP(&clusterAddArgs.Device, "device", "i", "", "Network device to bind (required)")
	clusterAddCmd.Flags().Uint16VarP(&clusterAddArgs.ClusterID, "cluster", "C", 0, "Cluster id (required)")
	clusterAddCmd.Flags().StringVarP(&clusterAddArgs.Mode, "mode", "m", "round_robin", "Hash mode: round_robin or per_flow")
	clusterAddCmd.MarkFlagRequired("name")
	clusterAddCmd.MarkFlagRequired("device")
	clusterAddCmd.MarkFlagRequired("cluster")
	addConfigFlag(clusterAddCmd, &clusterAddArgs.ConfigPath)
	addDurationFlag(clusterAddCmd, &clusterAddArgs.Duration)

	clusterRemoveCmd.Flags().StringVarP(&clusterRemoveArgs.Name, "name", "n", "", "Ring name (required)")
	clusterRemoveCmd.Flags().StringVarP(&clusterRemoveArgs.Device, "device", "i", "", "Network device to bind (required)")
	clusterRemoveCmd.Flags().Uint16VarP(&clusterRemoveArgs.ClusterID, "cluster", "C", 0, "Cluster id (required)")
	clusterRemoveCmd.MarkFlagRequired("name")
	clusterRemoveCmd.MarkFlagRequired("device")
	clusterRemoveCmd.MarkFlagRequired("cluster")
	addConfigFlag(clusterRemoveCmd, &clusterRemoveArgs.ConfigPath)
}

func parseHashMode(s string) (capture.HashMode, error) {
	switch s {
	case "round_robin":
		return capture.HashRoundRobin, nil
	case "per_flow":
		return capture.HashPerFlow, nil
	default:
		return 0, fmt.Errorf("unknown hash mode %q (want round_robin or per_flow)", s)
	}
}

func runClusterAdd(cmd *cobra.Command) error {
	mode, err := parseHashMode(clusterAddArgs.Mode)
	if err != nil {
		return err
	}

	s, err := newSession(clusterAddArgs.ConfigPath)
	if err != nil {
		return err
	}
	sock, err := s.bind(cmd.Context(), clusterAddArgs.Name, clusterAddArgs.Device)
	if err != nil {
		return err
	}

	req := capture.ClusterJoinRequest{ClusterID: clusterAddArgs.ClusterID, Mode: mode}
	if err := s.rt.Apply(sock, capture.OptAddToCluster, req); err != nil {
		return err
	}

	s.captureFor(cmd.Context(), sock.Device, clusterAddArgs.Duration)

	fmt.Print(s.rt.Status())
	return nil
}

func runClusterRemove(cmd *cobra.Command) error {
	s, err := newSession(clusterRemoveArgs.ConfigPath)
	if err != nil {
		return err
	}
	sock, err := s.bind(cmd.Context(), clusterRemoveArgs.Name, clusterRemoveArgs.Device)
	if err != nil {
		return err
	}

	join := capture.ClusterJoinRequest{ClusterID: clusterRemoveArgs.ClusterID, Mode: capture.HashRoundRobin}
	if err := s.rt.Apply(sock, capture.OptAddToCluster, join); err != nil {
		return err
	}
	if err := s.rt.Apply(sock, capture.OptRemoveFromCluster, nil); err != nil {
		return err
	}

	fmt.Print(s.rt.Status())
	return nil
}
