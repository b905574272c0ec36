package debugger

import (
	"strings"
	"testing"

	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisassemble_AddressLineMaps(t *testing.T) {
	t.Parallel()
	d := NewDisassembler(neovm.DefaultSyscalls())
	script := neovm.NewScript([]byte{byte(neovm.PUSH1), byte(neovm.PUSH2), byte(neovm.ADD)})
	dis, err := d.Disassemble(script, nil)
	require.NoError(t, err)

	assert.Equal(t, map[int]int{0: 1, 1: 2, 2: 3, 3: 4}, dis.AddressToLine)
	assert.Equal(t, map[int]int{1: 0, 2: 1, 3: 2, 4: 3}, dis.LineToAddress)
	lines := strings.Split(dis.Source, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "0000 PUSH1", lines[0])
	assert.Equal(t, "0001 PUSH2", lines[1])
	assert.Equal(t, "0002 ADD", lines[2])
	assert.Equal(t, "0003 RET", lines[3])
	assert.Equal(t, script.Hash(), dis.ScriptHash)
	assert.Equal(t, script.Hash().String(), dis.Name)

	// A breakpoint on listing line 2 resolves to address 1.
	m := NewBreakpointManager(d)
	bps := m.SetBreakpoints(script.Hash().String(), []SourceBreakpoint{{Line: 2}})
	require.Len(t, bps, 1)
	assert.True(t, bps[0].Verified)
	assert.Equal(t, 1, bps[0].Address)
	assert.True(t, m.Has(script.Hash(), 1))
}

func TestDisassemble_Cached(t *testing.T) {
	t.Parallel()
	d := NewDisassembler(neovm.DefaultSyscalls())
	script := callScript()
	first, err := d.Disassemble(script, nil)
	require.NoError(t, err)
	second, err := d.Disassemble(neovm.NewScript(script.Bytes()), nil)
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.Positive(t, first.SourceReference)
	byRef, ok := d.Lookup(first.SourceReference)
	require.True(t, ok)
	assert.Same(t, first, byRef)
	byHash, ok := d.ByHash(script.Hash())
	require.True(t, ok)
	assert.Same(t, first, byHash)

	_, ok = d.Lookup(first.SourceReference + 1)
	assert.False(t, ok)
}

func TestDisassembler_AllocRefProbes(t *testing.T) {
	t.Parallel()
	d := NewDisassembler(neovm.DefaultSyscalls())
	hash := neovm.HashScript([]byte{byte(neovm.RET)})
	ref := d.allocRef(hash)
	assert.Positive(t, ref)
	d.byRef[ref] = &Disassembly{}
	next := d.allocRef(hash)
	assert.NotEqual(t, ref, next)
	assert.Positive(t, next)
}

func TestDisassemble_Malformed(t *testing.T) {
	t.Parallel()
	d := NewDisassembler(neovm.DefaultSyscalls())
	_, err := d.Disassemble(neovm.NewScript([]byte{byte(neovm.PUSHDATA1), 0x09}), nil)
	assert.ErrorIs(t, err, neovm.ErrMalformedInstruction)
}

func TestDisassemble_DebugInfoComments(t *testing.T) {
	t.Parallel()
	d := NewDisassembler(neovm.DefaultSyscalls())
	script := callScript()
	dis, err := d.Disassemble(script, callInfo(script.Hash()))
	require.NoError(t, err)
	lines := strings.Split(dis.Source, "\n")

	assert.Equal(t, "# Method Start Sample.Contract.Main", lines[0])
	assert.Equal(t, "# Code Contract.cs line 10", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "0000 INITSLOT"))
	assert.Equal(t, 3, dis.AddressToLine[0])
	assert.Contains(t, dis.Source, "# Method End Sample.Contract.Main")
	assert.Contains(t, dis.Source, "# Method Start Sample.Contract.Add")

	// Comment lines never map to an address.
	for line, addr := range dis.LineToAddress {
		assert.False(t, strings.HasPrefix(lines[line-1], "#"), "line %d", line)
		assert.Equal(t, line, dis.AddressToLine[addr])
	}
}

func TestDisassemble_OperandComments(t *testing.T) {
	t.Parallel()
	hash := neovm.HashScript([]byte("contract"))
	sb := &neovm.ScriptBuilder{}
	sb.EmitPushInt(1000)                         // 0
	sb.EmitPushData([]byte("hello"))             // 3
	sb.EmitPushData(hash.Bytes())                // 10
	sb.EmitSyscall(neovm.SyscallRuntimeLog)      // 32
	sb.Emit(neovm.SYSCALL, 1, 2, 3, 4)           // 37
	sb.EmitJump(neovm.JMP, 4)                    // 42
	sb.Emit(neovm.TRY, 3, 0)                     // 44
	sb.Emit(neovm.INITSLOT, 2, 1)                // 47
	sb.Emit(neovm.CONVERT, byte(neovm.IntegerT)) // 50
	sb.EmitPushData([]byte{0x00, 0x01})          // 52
	d := NewDisassembler(neovm.DefaultSyscalls())
	dis, err := d.Disassemble(sb.Script(), nil)
	require.NoError(t, err)
	lines := strings.Split(dis.Source, "\n")
	require.Len(t, lines, 11)

	assert.True(t, strings.HasSuffix(lines[0], "# 1000"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], `# "hello"`), lines[1])
	assert.True(t, strings.HasSuffix(lines[2], "# "+hash.String()+" "+hash.ToAddress()), lines[2])
	assert.True(t, strings.HasSuffix(lines[3], "# System.Runtime.Log"), lines[3])
	assert.True(t, strings.HasSuffix(lines[4], "# 0x04030201"), lines[4])
	assert.True(t, strings.HasSuffix(lines[5], "# 46"), lines[5])
	assert.True(t, strings.HasSuffix(lines[6], "# catch 47, finally none"), lines[6])
	assert.True(t, strings.HasSuffix(lines[7], "# 2 local(s), 1 argument(s)"), lines[7])
	assert.True(t, strings.HasSuffix(lines[8], "# Integer"), lines[8])
	assert.Equal(t, "0052 PUSHDATA1    0001", lines[9])
	assert.Equal(t, "0056 RET", lines[10])
}

func TestDisassemble_ImplicitReturn(t *testing.T) {
	t.Parallel()
	d := NewDisassembler(neovm.DefaultSyscalls())

	// A script already ending in RET gets no extra line.
	dis, err := d.Disassemble(callScript(), nil)
	require.NoError(t, err)
	assert.Len(t, strings.Split(dis.Source, "\n"), 9)
	_, ok := dis.Line(12)
	assert.False(t, ok)

	dis, err = d.Disassemble(neovm.NewScript(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "0000 RET", dis.Source)
	assert.Equal(t, map[int]int{0: 1}, dis.AddressToLine)

	// The RET past a JMP at the end is reachable only as the implicit one.
	sb := &neovm.ScriptBuilder{}
	sb.Emit(neovm.PUSH1)      // 0
	sb.EmitJump(neovm.JMP, 2) // 1: jump to 3
	dis, err = d.Disassemble(sb.Script(), nil)
	require.NoError(t, err)
	line, ok := dis.Line(3)
	require.True(t, ok)
	assert.Equal(t, 3, line)
	assert.Equal(t, 3, dis.LineToAddress[3])
}

func TestDisassemble_DecodeIdempotent(t *testing.T) {
	t.Parallel()
	script := callScript()
	d1 := NewDisassembler(neovm.DefaultSyscalls())
	d2 := NewDisassembler(neovm.DefaultSyscalls())
	a, err := d1.Disassemble(script, nil)
	require.NoError(t, err)
	b, err := d2.Disassemble(script, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Source, b.Source)
	assert.Equal(t, a.SourceReference, b.SourceReference)
	assert.Equal(t, a.AddressToLine, b.AddressToLine)
}

func TestDisassemble_PrintableHashOperand(t *testing.T) {
	t.Parallel()
	data := []byte("abcdefghijklmnopqrst")
	h, ok := neovm.Hash160FromBytes(data)
	require.True(t, ok)
	sb := &neovm.ScriptBuilder{}
	sb.EmitPushData(data)
	sb.Emit(neovm.RET)
	dis, err := NewDisassembler(neovm.DefaultSyscalls()).Disassemble(sb.Script(), nil)
	require.NoError(t, err)
	lines := strings.Split(dis.Source, "\n")
	assert.True(t, strings.HasSuffix(lines[0], "# "+h.String()+" "+h.ToAddress()+` "abcdefghijklmnopqrst"`), lines[0])
}
