package capture

import (
	"fmt"

	"github.com/ringtap/ringtap/internal/ring"
)

// Opcode is the byte-code filter instruction set from spec.md §4.2 step 2
// ("byte-code filter"). It mirrors classic packet-filter VMs (load a field,
// compare, branch): a small, bounded, linear instruction set that ATTACH_FILTER
// validates before installing.
type Opcode uint8

const (
	// OpLoadLen loads the frame length into the accumulator.
	OpLoadLen Opcode = iota
	// OpLoadVlan loads the parsed VLAN id (packet.NoVlan, 0xFFFF, if
	// untagged).
	OpLoadVlan
	// OpLoadProto loads the parsed L3 protocol number.
	OpLoadProto
	// OpLoadSrcPort loads the parsed L4 source port.
	OpLoadSrcPort
	// OpLoadDstPort loads the parsed L4 destination port.
	OpLoadDstPort
	// OpJEQ compares the accumulator to K; jumps Jt instructions forward
	// on equality, Jf instructions forward otherwise.
	OpJEQ
	// OpJGT compares the accumulator to K; jumps Jt forward if greater,
	// Jf otherwise.
	OpJGT
	// OpRet ends evaluation; K is the filter's verdict (0 = drop,
	// nonzero = keep).
	OpRet
)

// Instruction is one step of a Program.
type Instruction struct {
	Op Opcode
	Jt uint8
	Jf uint8
	K  uint32
}

// Program is a validated byte-code filter (spec.md §4.2 step 2,
// §6 ATTACH_FILTER).
type Program struct {
	insns []Instruction
}

// maxProgramLen bounds filter length, mirroring the original's refusal to
// accept unbounded byte-code programs.
const maxProgramLen = 4096

// Compile validates a raw instruction sequence and, on success, returns an
// installable Program. Validation failures are reported as ErrInvalid; per
// spec.md §9's open question, this implementation surfaces the failure to
// the caller rather than silently clearing the filter.
func Compile(insns []Instruction) (*Program, error) {
	if len(insns) == 0 {
		return nil, fmt.Errorf("%w: empty filter program", ErrInvalid)
	}
	if len(insns) > maxProgramLen {
		return nil, fmt.Errorf("%w: filter program exceeds %d instructions", ErrInvalid, maxProgramLen)
	}

	terminated := false
	for i, insn := range insns {
		switch insn.Op {
		case OpLoadLen, OpLoadVlan, OpLoadProto, OpLoadSrcPort, OpLoadDstPort:
		case OpJEQ, OpJGT:
			if int(insn.Jt) > len(insns)-i-1 || int(insn.Jf) > len(insns)-i-1 {
				return nil, fmt.Errorf("%w: instruction %d jumps out of range", ErrInvalid, i)
			}
		case OpRet:
			terminated = true
		default:
			return nil, fmt.Errorf("%w: instruction %d has unknown opcode %d", ErrInvalid, i, insn.Op)
		}
	}
	if !terminated {
		return nil, fmt.Errorf("%w: filter program has no RET instruction", ErrInvalid)
	}

	return &Program{insns: insns}, nil
}

// Eval runs the program against a parsed frame, returning the keep/drop
// verdict (spec.md §4.2 step 2: "drop on zero result").
func (p *Program) Eval(hdr ring.CaptureHeader) bool {
	pc := 0
	var acc uint32

	for pc < len(p.insns) {
		insn := p.insns[pc]
		switch insn.Op {
		case OpLoadLen:
			acc = hdr.Len
		case OpLoadVlan:
			acc = uint32(hdr.VlanID)
		case OpLoadProto:
			acc = uint32(hdr.L3Proto)
		case OpLoadSrcPort:
			acc = uint32(hdr.L4SrcPort)
		case OpLoadDstPort:
			acc = uint32(hdr.L4DstPort)
		case OpJEQ:
			if acc == insn.K {
				pc += int(insn.Jt) + 1
				continue
			}
			pc += int(insn.Jf) + 1
			continue
		case OpJGT:
			if acc > insn.K {
				pc += int(insn.Jt) + 1
				continue
			}
			pc += int(insn.Jf) + 1
			continue
		case OpRet:
			return insn.K != 0
		}
		pc++
	}
	return false
}
