package neovm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScript_InstructionsTileScript(t *testing.T) {
	sb := &ScriptBuilder{}
	sb.Emit(PUSH1).
		EmitPushData([]byte("hello")).
		EmitPushInt(1000).
		EmitJump(JMP, 2).
		EmitSyscall(SyscallRuntimeLog).
		Emit(INITSLOT, 1, 2).
		Emit(ADD)
	script := sb.Script()

	ins, err := script.Instructions()
	require.NoError(t, err)
	next := 0
	for _, in := range ins {
		assert.Equal(t, next, in.Address)
		next = in.Next()
	}
	assert.Equal(t, script.Len(), next)

	again, err := script.Instructions()
	require.NoError(t, err)
	assert.Equal(t, ins, again)
}

func TestScript_ImplicitRet(t *testing.T) {
	script := NewScript([]byte{byte(PUSH1), byte(PUSH2), byte(ADD)})
	ins, err := script.Instructions()
	require.NoError(t, err)
	require.Len(t, ins, 3)
	for i, in := range ins {
		assert.Equal(t, i, in.Address)
		assert.Equal(t, 1, in.Size)
	}

	ret, err := script.InstructionAt(3)
	require.NoError(t, err)
	assert.Equal(t, RET, ret.Opcode)
	assert.Equal(t, 3, ret.Address)
}

func TestDecodeInstruction_Errors(t *testing.T) {
	tests := []struct {
		name   string
		script []byte
		ip     int
	}{
		{"truncated operand", []byte{byte(PUSHINT16), 0x01}, 0},
		{"truncated prefix", []byte{byte(PUSHDATA2), 0x01}, 0},
		{"data overrun", []byte{byte(PUSHDATA1), 0x05, 0x01}, 0},
		{"unknown opcode", []byte{0xFF}, 0},
		{"past end", []byte{byte(NOP)}, 2},
		{"negative", []byte{byte(NOP)}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScript(tt.script).InstructionAt(tt.ip)
			assert.ErrorIs(t, err, ErrMalformedInstruction)
		})
	}
}

func TestInstruction_Operands(t *testing.T) {
	script := NewScript([]byte{
		byte(NOP), byte(NOP), byte(NOP), byte(NOP), byte(NOP),
		byte(JMP), 0xFE, // 5: JMP -2
		byte(TRY), 0x04, 0x00, // 7: TRY catch +4
		byte(PUSHINT16), 0xFF, 0xFF, // 10: -1
		byte(JMP_L), 0x10, 0x00, 0x00, 0x00, // 13: JMP_L +16
	})

	jmp, err := script.InstructionAt(5)
	require.NoError(t, err)
	assert.True(t, jmp.Opcode.IsJump())
	assert.Equal(t, 3, jmp.JumpTarget())

	try, err := script.InstructionAt(7)
	require.NoError(t, err)
	catch, finally := try.TryTargets()
	assert.Equal(t, 11, catch)
	assert.Equal(t, -1, finally)

	push, err := script.InstructionAt(10)
	require.NoError(t, err)
	n, ok := push.PushInt()
	require.True(t, ok)
	assert.Equal(t, int64(-1), n.Int64())

	long, err := script.InstructionAt(13)
	require.NoError(t, err)
	assert.Equal(t, 5, long.Size)
	assert.Equal(t, 29, long.JumpTarget())
}

func TestOpcode_String(t *testing.T) {
	assert.Equal(t, "PUSH5", PUSH5.String())
	assert.Equal(t, "LDARG0", LDARG0.String())
	assert.Equal(t, "JMPIF_L", JMPIF_L.String())
	assert.Equal(t, "UNKNOWN(0xFF)", Opcode(0xFF).String())
	assert.False(t, Opcode(0xFF).IsValid())
}
