// Copyright © 2018 The ELPS authors

package neovm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// ErrMalformedInstruction is returned when an instruction cannot be decoded
// at a given offset.
var ErrMalformedInstruction = errors.New("malformed instruction")

// Instruction is a single decoded NeoVM instruction.
type Instruction struct {
	Opcode  Opcode
	Operand []byte
	Address int
	Size    int
}

// retInstruction is the implicit RET found one past the end of every script.
func retInstruction(address int) Instruction {
	return Instruction{Opcode: RET, Address: address, Size: 1}
}

// decodeInstruction decodes the instruction that starts at ip in b.
func decodeInstruction(b []byte, ip int) (Instruction, error) {
	if ip == len(b) {
		return retInstruction(ip), nil
	}
	if ip < 0 || ip > len(b) {
		return Instruction{}, fmt.Errorf("%w: offset %d outside script of length %d", ErrMalformedInstruction, ip, len(b))
	}
	op := Opcode(b[ip])
	info, ok := opcodeTable[op]
	if !ok {
		return Instruction{}, fmt.Errorf("%w: unknown opcode 0x%02X at %d", ErrMalformedInstruction, byte(op), ip)
	}
	start := ip + 1
	size := info.size
	if info.prefix > 0 {
		if start+info.prefix > len(b) {
			return Instruction{}, fmt.Errorf("%w: truncated %s length prefix at %d", ErrMalformedInstruction, op, ip)
		}
		var n uint64
		switch info.prefix {
		case 1:
			n = uint64(b[start])
		case 2:
			n = uint64(binary.LittleEndian.Uint16(b[start:]))
		case 4:
			n = uint64(binary.LittleEndian.Uint32(b[start:]))
		}
		start += info.prefix
		if n > uint64(len(b)-start) {
			return Instruction{}, fmt.Errorf("%w: %s operand of %d bytes overruns script at %d", ErrMalformedInstruction, op, n, ip)
		}
		size = int(n)
	}
	if start+size > len(b) {
		return Instruction{}, fmt.Errorf("%w: truncated %s operand at %d", ErrMalformedInstruction, op, ip)
	}
	return Instruction{
		Opcode:  op,
		Operand: b[start : start+size],
		Address: ip,
		Size:    start + size - ip,
	}, nil
}

// Next returns the address of the instruction that follows ins.
func (ins Instruction) Next() int {
	return ins.Address + ins.Size
}

// TokenI8 returns the operand as a signed 8-bit value.
func (ins Instruction) TokenI8() int {
	return int(int8(ins.Operand[0]))
}

// TokenI8At returns the signed byte at operand offset i.
func (ins Instruction) TokenI8At(i int) int {
	return int(int8(ins.Operand[i]))
}

// TokenI32 returns the operand as a signed 32-bit value.
func (ins Instruction) TokenI32() int {
	return int(int32(binary.LittleEndian.Uint32(ins.Operand)))
}

// TokenI32At returns the signed 32-bit value at operand offset i.
func (ins Instruction) TokenI32At(i int) int {
	return int(int32(binary.LittleEndian.Uint32(ins.Operand[i:])))
}

// TokenU8 returns the operand as an unsigned byte.
func (ins Instruction) TokenU8() int {
	return int(ins.Operand[0])
}

// TokenU8At returns the unsigned byte at operand offset i.
func (ins Instruction) TokenU8At(i int) int {
	return int(ins.Operand[i])
}

// TokenU16 returns the operand as an unsigned 16-bit value.
func (ins Instruction) TokenU16() int {
	return int(binary.LittleEndian.Uint16(ins.Operand))
}

// TokenU32 returns the operand as an unsigned 32-bit value.
func (ins Instruction) TokenU32() uint32 {
	return binary.LittleEndian.Uint32(ins.Operand)
}

// JumpOffset returns the signed relative offset of a jump-class instruction.
// The short forms carry one byte and the _L forms four.
func (ins Instruction) JumpOffset() int {
	if len(ins.Operand) == 1 {
		return ins.TokenI8()
	}
	return ins.TokenI32()
}

// JumpTarget returns the absolute address targeted by a jump-class
// instruction.
func (ins Instruction) JumpTarget() int {
	return ins.Address + ins.JumpOffset()
}

// TryTargets returns the absolute catch and finally addresses of a TRY or
// TRY_L instruction. A zero offset means the block is absent and is
// reported as -1.
func (ins Instruction) TryTargets() (catch, finally int) {
	var c, f int
	if ins.Opcode == TRY {
		c, f = ins.TokenI8At(0), ins.TokenI8At(1)
	} else {
		c, f = ins.TokenI32At(0), ins.TokenI32At(4)
	}
	catch, finally = -1, -1
	if c != 0 {
		catch = ins.Address + c
	}
	if f != 0 {
		finally = ins.Address + f
	}
	return catch, finally
}

// PushInt returns the integer pushed by a PUSHINT*, PUSHM1 or PUSH0-16
// instruction.
func (ins Instruction) PushInt() (*big.Int, bool) {
	switch {
	case ins.Opcode.IsPushInt():
		return BytesToInt(ins.Operand), true
	case ins.Opcode == PUSHM1:
		return big.NewInt(-1), true
	case ins.Opcode >= PUSH0 && ins.Opcode <= PUSH16:
		return big.NewInt(int64(ins.Opcode - PUSH0)), true
	}
	return nil, false
}
