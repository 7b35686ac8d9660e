package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringtap/ringtap/internal/ring"
)

func Test_FilterCompileRejectsEmptyProgram(t *testing.T) {
	_, err := Compile(nil)
	assert.ErrorIs(t, err, ErrInvalid)
}

func Test_FilterCompileRejectsMissingRet(t *testing.T) {
	_, err := Compile([]Instruction{{Op: OpLoadLen}})
	assert.ErrorIs(t, err, ErrInvalid)
}

func Test_FilterCompileRejectsOutOfRangeJump(t *testing.T) {
	_, err := Compile([]Instruction{
		{Op: OpLoadVlan},
		{Op: OpJEQ, K: 42, Jt: 10, Jf: 0},
		{Op: OpRet, K: 1},
	})
	assert.ErrorIs(t, err, ErrInvalid)
}

func Test_FilterKeepsFramesMatchingVlan(t *testing.T) {
	prog, err := Compile([]Instruction{
		{Op: OpLoadVlan},
		{Op: OpJEQ, K: 42, Jt: 0, Jf: 1},
		{Op: OpRet, K: 1},
		{Op: OpRet, K: 0},
	})
	require.NoError(t, err)

	assert.True(t, prog.Eval(ring.CaptureHeader{VlanID: 42}))
	assert.False(t, prog.Eval(ring.CaptureHeader{VlanID: 41}))
}
