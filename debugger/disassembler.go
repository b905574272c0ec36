// Copyright © 2018 The ELPS authors

package debugger

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/neo-project/neo-debugger-sub000/debuginfo"
	"github.com/neo-project/neo-debugger-sub000/neovm"
)

// DisassemblyMimeType tags disassembly text served to the editor.
const DisassemblyMimeType = "text/x-neovm.disassembly"

// Disassembly is the listing of one script together with the maps between
// instruction addresses and 1-based listing lines. Only instruction lines
// appear in the maps; comment lines do not.
type Disassembly struct {
	Name            string
	Source          string
	ScriptHash      neovm.Hash160
	SourceReference int
	AddressToLine   map[int]int
	LineToAddress   map[int]int
}

// Line returns the listing line of address.
func (d *Disassembly) Line(address int) (int, bool) {
	l, ok := d.AddressToLine[address]
	return l, ok
}

// Disassembler builds and caches script listings. Listings are cached by
// script hash for the disassembler's lifetime; scripts are immutable so the
// cache is never invalidated. It is safe for concurrent use.
type Disassembler struct {
	syscalls neovm.SyscallTable

	mu     sync.RWMutex
	byHash map[neovm.Hash160]*Disassembly
	byRef  map[int]*Disassembly
}

// NewDisassembler returns a disassembler that names SYSCALL targets with
// syscalls.
func NewDisassembler(syscalls neovm.SyscallTable) *Disassembler {
	return &Disassembler{
		syscalls: syscalls,
		byHash:   make(map[neovm.Hash160]*Disassembly),
		byRef:    make(map[int]*Disassembly),
	}
}

// Lookup returns the listing registered under a source reference.
func (d *Disassembler) Lookup(sourceReference int) (*Disassembly, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dis, ok := d.byRef[sourceReference]
	return dis, ok
}

// ByHash returns the cached listing of a script.
func (d *Disassembler) ByHash(hash neovm.Hash160) (*Disassembly, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dis, ok := d.byHash[hash]
	return dis, ok
}

// Disassemble returns the listing of script, building it on first use.
// When info is non-nil, method boundaries and sequence points are
// annotated with comment lines. A script that does not end in RET gets a
// line for the implicit RET at its end.
func (d *Disassembler) Disassemble(script *neovm.Script, info *debuginfo.DebugInfo) (*Disassembly, error) {
	hash := script.Hash()
	if dis, ok := d.ByHash(hash); ok {
		return dis, nil
	}
	dis, err := d.build(script, info)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.byHash[hash]; ok {
		return cached, nil
	}
	dis.SourceReference = d.allocRef(hash)
	d.byHash[hash] = dis
	d.byRef[dis.SourceReference] = dis
	return dis, nil
}

// allocRef derives a positive 31-bit reference from hash, probing past
// references already taken by other scripts. Callers hold mu.
func (d *Disassembler) allocRef(hash neovm.Hash160) int {
	ref := int(binary.LittleEndian.Uint32(hash[:4]) & math.MaxInt32)
	for {
		if ref == 0 {
			ref = 1
		}
		if _, taken := d.byRef[ref]; !taken {
			return ref
		}
		if ref == math.MaxInt32 {
			ref = 1
		} else {
			ref++
		}
	}
}

func (d *Disassembler) build(script *neovm.Script, info *debuginfo.DebugInfo) (*Disassembly, error) {
	instructions, err := script.Instructions()
	if err != nil {
		return nil, fmt.Errorf("disassemble %s: %w", script.Hash(), err)
	}
	dis := &Disassembly{
		Name:          script.Hash().String(),
		ScriptHash:    script.Hash(),
		AddressToLine: make(map[int]int, len(instructions)),
		LineToAddress: make(map[int]int, len(instructions)),
	}
	var lines []string
	for _, ins := range instructions {
		method, _ := info.MethodAt(ins.Address)
		if method != nil && method.Range.Start == ins.Address {
			lines = append(lines, "# Method Start "+method.DisplayName())
		}
		if method != nil && method.IsBoundary(ins.Address) {
			sp, _ := method.SequencePointAt(ins.Address)
			lines = append(lines, fmt.Sprintf("# Code %s line %d", filepath.Base(info.Document(sp.Document)), sp.Start.Line))
		}
		lines = append(lines, d.formatInstruction(ins))
		dis.AddressToLine[ins.Address] = len(lines)
		dis.LineToAddress[len(lines)] = ins.Address
		if method != nil && method.Range.End == ins.Address {
			lines = append(lines, "# Method End "+method.DisplayName())
		}
	}
	if n := len(instructions); n == 0 || instructions[n-1].Opcode != neovm.RET {
		ret, err := script.InstructionAt(script.Len())
		if err != nil {
			return nil, fmt.Errorf("disassemble %s: %w", script.Hash(), err)
		}
		lines = append(lines, d.formatInstruction(ret))
		dis.AddressToLine[ret.Address] = len(lines)
		dis.LineToAddress[len(lines)] = ret.Address
	}
	dis.Source = strings.Join(lines, "\n")
	return dis, nil
}

// formatInstruction renders one listing line: address, opcode, operand and
// an optional comment.
func (d *Disassembler) formatInstruction(ins neovm.Instruction) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d %-12s", ins.Address, ins.Opcode)
	if operand := operandText(ins); operand != "" {
		sb.WriteString(" ")
		sb.WriteString(operand)
	}
	if comment := d.comment(ins); comment != "" {
		sb.WriteString(" # ")
		sb.WriteString(comment)
	}
	return strings.TrimRight(sb.String(), " ")
}

func operandText(ins neovm.Instruction) string {
	if len(ins.Operand) == 0 {
		return ""
	}
	return truncateDisplay(hex.EncodeToString(ins.Operand))
}

// comment returns the annotation of an instruction, or "" when its operand
// has no useful interpretation.
func (d *Disassembler) comment(ins neovm.Instruction) string {
	op := ins.Opcode
	switch {
	case op.IsPushInt():
		n, _ := ins.PushInt()
		return n.String()
	case op == neovm.TRY || op == neovm.TRY_L:
		catch, finally := ins.TryTargets()
		return fmt.Sprintf("catch %s, finally %s", targetText(catch), targetText(finally))
	case op.IsJump():
		return fmt.Sprint(ins.JumpTarget())
	case op == neovm.SYSCALL:
		token := ins.TokenU32()
		if name, ok := d.syscalls.Lookup(token); ok {
			return name
		}
		return fmt.Sprintf("0x%08x", token)
	case op.IsPushData():
		return dataComment(ins.Operand)
	case op == neovm.INITSLOT:
		return fmt.Sprintf("%d local(s), %d argument(s)", ins.TokenU8At(0), ins.TokenU8At(1))
	case op == neovm.INITSSLOT:
		return fmt.Sprintf("%d static field(s)", ins.TokenU8())
	case op == neovm.NEWARRAY_T || op == neovm.ISTYPE || op == neovm.CONVERT:
		return neovm.ItemType(ins.TokenU8()).String()
	}
	return ""
}

func targetText(address int) string {
	if address < 0 {
		return "none"
	}
	return fmt.Sprint(address)
}

// dataComment interprets pushed bytes: 20 bytes are shown as a script hash
// and address, printable UTF-8 as quoted text, anything else not at all.
// 20 printable bytes get both.
func dataComment(b []byte) string {
	var parts []string
	if h, ok := neovm.Hash160FromBytes(b); ok {
		parts = append(parts, h.String(), h.ToAddress())
	}
	if s, ok := printableText(b); ok {
		parts = append(parts, truncateDisplay(fmt.Sprintf("%q", s)))
	}
	return strings.Join(parts, " ")
}
