package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ringtap/ringtap/internal/capture"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Attach or detach a byte-code filter on a ring",
}

var filterAttachArgs struct {
	ConfigPath string
	Name       string
	Device     string
	VlanEq     int
	ProtoEq    int
	MinLen     int
	Duration   time.Duration
}

var filterAttachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Compile and install a filter built from --vlan/--proto/--min-len",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runFilterAttach(cmd); err != nil {
			fail(err)
		}
	},
}

var filterDetachArgs struct {
	ConfigPath string
	Name       string
	Device     string
}

var filterDetachCmd = &cobra.Command{
	Use:   "detach",
	Short: "Remove a ring's filter",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runFilterDetach(cmd); err != nil {
			fail(err)
		}
	},
}

func init() {
	filterCmd.AddCommand(filterAttachCmd)
	filterCmd.AddCommand(filterDetachCmd)

	filterAttachCmd.Flags().StringVarP(&filterAttachArgs.Name, "name", "n", "", "Ring name (required)")
	filterAttachCmd.Flags().StringVarP(&filterAttachArgs.Device, "device", "i", "", "Network device to bind (required)")
	filterAttachCmd.Flags().IntVar(&filterAttachArgs.VlanEq, "vlan", -1, "Keep only frames tagged with this VLAN id")
	filterAttachCmd.Flags().IntVar(&filterAttachArgs.ProtoEq, "proto", -1, "Keep only frames with this L3 protocol number")
	filterAttachCmd.Flags().IntVar(&filterAttachArgs.MinLen, "min-len", -1, "Keep only frames at least this many bytes long")
	filterAttachCmd.MarkFlagRequired("name")
	filterAttachCmd.MarkFlagRequired("device")
	addConfigFlag(filterAttachCmd, &filterAttachArgs.ConfigPath)
	addDurationFlag(filterAttachCmd, &filterAttachArgs.Duration)

	filterDetachCmd.Flags().StringVarP(&filterDetachArgs.Name, "name", "n", "", "Ring name (required)")
	filterDetachCmd.Flags().StringVarP(&filterDetachArgs.Device, "device", "i", "", "Network device to bind (required)")
	filterDetachCmd.MarkFlagRequired("name")
	filterDetachCmd.MarkFlagRequired("device")
	addConfigFlag(filterDetachCmd, &filterDetachArgs.ConfigPath)
}

// buildFilterProgram chains each requested predicate with a logical AND:
// every OpJEQ/OpJGT jumps 0 forward (fall through) on success and to a
// shared drop instruction otherwise.
func buildFilterProgram() ([]capture.Instruction, error) {
	var checks []capture.Instruction
	if filterAttachArgs.VlanEq >= 0 {
		checks = append(checks,
			capture.Instruction{Op: capture.OpLoadVlan},
			capture.Instruction{Op: capture.OpJEQ, K: uint32(filterAttachArgs.VlanEq)},
		)
	}
	if filterAttachArgs.ProtoEq >= 0 {
		checks = append(checks,
			capture.Instruction{Op: capture.OpLoadProto},
			capture.Instruction{Op: capture.OpJEQ, K: uint32(filterAttachArgs.ProtoEq)},
		)
	}
	if filterAttachArgs.MinLen >= 0 {
		checks = append(checks,
			capture.Instruction{Op: capture.OpLoadLen},
			capture.Instruction{Op: capture.OpJGT, K: uint32(max(filterAttachArgs.MinLen-1, 0))},
		)
	}
	if len(checks) == 0 {
		return nil, fmt.Errorf("filter attach needs at least one of --vlan, --proto, --min-len")
	}

	// Each comparison's Jt/Jf are filled once the full layout (and thus
	// the drop instruction's offset) is known.
	insns := make([]capture.Instruction, 0, len(checks)+2)
	for i := 0; i < len(checks); i += 2 {
		load := checks[i]
		cmp := checks[i+1]
		remainingPairs := (len(checks) - i - 2) / 2 // comparisons still to come
		cmp.Jt = 0
		cmp.Jf = uint8(2*remainingPairs + 1) // skip the rest plus the keep-RET, landing on the drop-RET
		insns = append(insns, load, cmp)
	}
	insns = append(insns,
		capture.Instruction{Op: capture.OpRet, K: 1},
		capture.Instruction{Op: capture.OpRet, K: 0},
	)
	return insns, nil
}

func runFilterAttach(cmd *cobra.Command) error {
	insns, err := buildFilterProgram()
	if err != nil {
		return err
	}

	s, err := newSession(filterAttachArgs.ConfigPath)
	if err != nil {
		return err
	}
	sock, err := s.bind(cmd.Context(), filterAttachArgs.Name, filterAttachArgs.Device)
	if err != nil {
		return err
	}

	if err := s.rt.Apply(sock, capture.OptAttachFilter, insns); err != nil {
		return err
	}

	s.captureFor(cmd.Context(), sock.Device, filterAttachArgs.Duration)

	fmt.Print(s.rt.Status())
	return nil
}

func runFilterDetach(cmd *cobra.Command) error {
	s, err := newSession(filterDetachArgs.ConfigPath)
	if err != nil {
		return err
	}
	sock, err := s.bind(cmd.Context(), filterDetachArgs.Name, filterDetachArgs.Device)
	if err != nil {
		return err
	}
	if err := s.rt.Apply(sock, capture.OptDetachFilter, nil); err != nil {
		return err
	}
	fmt.Print(s.rt.Status())
	return nil
}
