// Copyright © 2018 The ELPS authors

package neovm

import (
	"encoding/binary"
	"math/big"
)

// ScriptBuilder assembles NeoVM bytecode.
type ScriptBuilder struct {
	b []byte
}

// Len returns the number of bytes emitted so far, which is also the
// address of the next instruction.
func (sb *ScriptBuilder) Len() int {
	return len(sb.b)
}

// Emit appends op followed by its raw operand bytes.
func (sb *ScriptBuilder) Emit(op Opcode, operand ...byte) *ScriptBuilder {
	sb.b = append(sb.b, byte(op))
	sb.b = append(sb.b, operand...)
	return sb
}

// EmitPushInt appends the shortest instruction pushing n.
func (sb *ScriptBuilder) EmitPushInt(n int64) *ScriptBuilder {
	switch {
	case n == -1:
		return sb.Emit(PUSHM1)
	case n >= 0 && n <= 16:
		return sb.Emit(PUSH0 + Opcode(n))
	}
	b := IntToBytes(big.NewInt(n))
	for _, w := range []struct {
		op   Opcode
		size int
	}{{PUSHINT8, 1}, {PUSHINT16, 2}, {PUSHINT32, 4}, {PUSHINT64, 8}} {
		if len(b) <= w.size {
			pad := byte(0)
			if n < 0 {
				pad = 0xFF
			}
			operand := make([]byte, w.size)
			copy(operand, b)
			for i := len(b); i < w.size; i++ {
				operand[i] = pad
			}
			return sb.Emit(w.op, operand...)
		}
	}
	return sb
}

// EmitPushData appends the shortest PUSHDATA instruction for b.
func (sb *ScriptBuilder) EmitPushData(b []byte) *ScriptBuilder {
	switch {
	case len(b) < 0x100:
		sb.Emit(PUSHDATA1, byte(len(b)))
	case len(b) < 0x10000:
		var n [2]byte
		binary.LittleEndian.PutUint16(n[:], uint16(len(b)))
		sb.Emit(PUSHDATA2, n[:]...)
	default:
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(b)))
		sb.Emit(PUSHDATA4, n[:]...)
	}
	sb.b = append(sb.b, b...)
	return sb
}

// EmitJump appends a short form jump-class instruction with a relative
// offset.
func (sb *ScriptBuilder) EmitJump(op Opcode, offset int) *ScriptBuilder {
	return sb.Emit(op, byte(int8(offset)))
}

// EmitSyscall appends a SYSCALL for the named interop service.
func (sb *ScriptBuilder) EmitSyscall(name string) *ScriptBuilder {
	var token [4]byte
	binary.LittleEndian.PutUint32(token[:], SyscallHash(name))
	return sb.Emit(SYSCALL, token[:]...)
}

// Bytes returns a copy of the assembled script.
func (sb *ScriptBuilder) Bytes() []byte {
	out := make([]byte, len(sb.b))
	copy(out, sb.b)
	return out
}

// Script returns the assembled bytes as a Script.
func (sb *ScriptBuilder) Script() *Script {
	return NewScript(sb.b)
}
