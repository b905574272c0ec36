package debugger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/neo-project/neo-debugger-sub000/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func recordTrace(t *testing.T, script *neovm.Script, args ...neovm.StackItem) []byte {
	t.Helper()
	engine := NewLiveEngine(neovm.Host{}, nil)
	engine.Load(script, 0, args...)
	var buf bytes.Buffer
	require.NoError(t, RecordTrace(context.Background(), &buf, engine))
	return buf.Bytes()
}

func formatItems(items []neovm.StackItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = FormatItem(it)
	}
	return out
}

func TestTraceEngine_Replay(t *testing.T) {
	t.Parallel()
	script := callScript()
	engine, err := NewTraceEngine(bytes.NewReader(recordTrace(t, script, neovm.NewInt(2), neovm.NewInt(3))))
	require.NoError(t, err)
	assert.False(t, engine.StepBack())

	var ips []int
	snapshots := 1
	for engine.State() == neovm.Running {
		ctxs := engine.Contexts()
		ips = append(ips, ctxs[0].IP())
		engine.ExecuteNext()
		snapshots++
	}
	assert.Equal(t, 10, snapshots)
	assert.Equal(t, []int{0, 3, 4, 5, 10, 11, 7, 8, 9}, ips)
	assert.Equal(t, neovm.Halted, engine.State())
	require.Len(t, engine.ResultStack(), 1)
	assert.Equal(t, "5", FormatItem(engine.ResultStack()[0]))

	// Back to the CALL into Add, then forward again.
	for i := 0; i < 5; i++ {
		require.True(t, engine.StepBack())
	}
	ctxs := engine.Contexts()
	require.Len(t, ctxs, 2)
	assert.Equal(t, 10, ctxs[0].IP())
	assert.Equal(t, script.Hash(), ctxs[0].ScriptHash())
	assert.Equal(t, []string{"3", "2"}, formatItems(ctxs[0].EvaluationStack()))
	assert.Equal(t, []string{"2", "3"}, formatItems(ctxs[1].Arguments()))
	assert.Equal(t, []string{"null"}, formatItems(ctxs[1].Locals()))

	engine.ExecuteNext()
	assert.Equal(t, 11, engine.Contexts()[0].IP())
}

func TestTraceEngine_CompoundItems(t *testing.T) {
	t.Parallel()
	m := &neovm.Map{}
	m.Set(neovm.ByteString("k"), neovm.NewInt(7))
	script := neovm.NewScript([]byte{byte(neovm.RET)})
	te := &TraceEngine{scripts: map[neovm.Hash160]*neovm.Script{script.Hash(): script}}
	items := []neovm.StackItem{
		neovm.Boolean(true),
		neovm.NewInt(-300),
		neovm.ByteString("ab"),
		&neovm.Buffer{Value: []byte{1, 2}},
		neovm.NewArray(neovm.NewInt(1), neovm.Null{}),
		neovm.NewStruct(neovm.ByteString("x")),
		m,
		neovm.Pointer{Script: script, Position: 0},
	}
	for _, it := range items {
		got := te.decodeItem(encodeItem(it, 0))
		assert.Equal(t, FormatItem(it), FormatItem(got))
		assert.Equal(t, neovm.TypeOf(it), neovm.TypeOf(got))
	}
	decoded := te.decodeItem(encodeItem(m, 0)).(*neovm.Map)
	require.Len(t, decoded.Entries, 1)
	assert.Equal(t, neovm.ByteString("k"), decoded.Entries[0].Key)

	// Cycles stop at the depth limit.
	cyclic := neovm.NewArray()
	cyclic.Items = append(cyclic.Items, cyclic)
	assert.NotPanics(t, func() { encodeItem(cyclic, 0) })
}

func TestTraceEngine_OutputAndStorage(t *testing.T) {
	t.Parallel()
	sb := &neovm.ScriptBuilder{}
	sb.EmitPushData([]byte("v")).EmitPushData([]byte("k"))
	sb.EmitSyscall(neovm.SyscallStorageGetContext).EmitSyscall(neovm.SyscallStoragePut)
	sb.EmitPushData([]byte("hello")).EmitSyscall(neovm.SyscallRuntimeLog)
	script := sb.Script()

	engine, err := NewTraceEngine(bytes.NewReader(recordTrace(t, script)))
	require.NoError(t, err)
	var output []string
	for engine.State() == neovm.Running {
		engine.ExecuteNext()
		output = append(output, engine.DrainOutput()...)
	}
	assert.Equal(t, []string{"Runtime.Log: " + script.Hash().String() + " hello"}, output)
	assert.Equal(t, []storage.Entry{{Key: []byte("k"), Value: []byte("v")}}, engine.StorageEntries(script.Hash()))

	// Stepping back to the start forgets the write.
	for engine.StepBack() {
	}
	assert.Empty(t, engine.StorageEntries(script.Hash()))
}

func TestSession_TraceReverse(t *testing.T) {
	t.Parallel()
	script := callScript()
	engine, err := NewTraceEngine(bytes.NewReader(recordTrace(t, script, neovm.NewInt(2), neovm.NewInt(3))))
	require.NoError(t, err)
	events := &eventLog{}
	s := newTestSession(engine, events, WithDebugInfo(callInfo(script.Hash())))
	defer s.Close()

	bps := s.Breakpoints().SetBreakpoints(contractDoc, []SourceBreakpoint{{Line: 13}})
	require.True(t, bps[0].Verified)

	require.NoError(t, s.Start(false))
	requireStopped(t, events.take(), StopBreakpoint)
	assert.Equal(t, 13, topFrame(t, s).Line)

	require.NoError(t, s.StepBack())
	requireStopped(t, events.take(), StopStep)
	assert.Equal(t, 12, topFrame(t, s).Line)

	require.NoError(t, s.ReverseContinue())
	requireStopped(t, events.take(), StopEntry)
	assert.Equal(t, 10, topFrame(t, s).Line)

	require.NoError(t, s.Continue())
	requireStopped(t, events.take(), StopBreakpoint)
	assert.Equal(t, 13, topFrame(t, s).Line)

	require.NoError(t, s.Continue())
	got := events.take()
	require.Len(t, got, 3)
	assert.Equal(t, "result 0: 5\n", got[0].Output)
	assert.Equal(t, EventTerminated, got[2].Type)
	assert.True(t, s.Finished())

	// Reverse execution works after the end as well.
	require.NoError(t, s.StepBack())
	requireStopped(t, events.take(), StopBreakpoint)
	assert.Equal(t, 13, topFrame(t, s).Line)
	assert.False(t, s.Finished())
}

func TestNewTraceEngine_BadInput(t *testing.T) {
	t.Parallel()
	_, err := NewTraceEngine(bytes.NewReader(nil))
	assert.ErrorContains(t, err, "read trace header")

	b, err := msgpack.Marshal(&traceHeader{Version: TraceVersion + 1})
	require.NoError(t, err)
	_, err = NewTraceEngine(bytes.NewReader(b))
	assert.ErrorContains(t, err, "unsupported trace version")

	b, err = msgpack.Marshal(&traceHeader{Version: TraceVersion})
	require.NoError(t, err)
	_, err = NewTraceEngine(bytes.NewReader(b))
	assert.Error(t, err)
}

func TestTraceEngine_Truncated(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	require.NoError(t, enc.Encode(&traceHeader{Version: TraceVersion}))
	full := recordTrace(t, callScript(), neovm.NewInt(2), neovm.NewInt(3))

	// Keep the header and the first two records only.
	dec := msgpack.NewDecoder(bytes.NewReader(full))
	var h traceHeader
	require.NoError(t, dec.Decode(&h))
	for i := 0; i < 2; i++ {
		var rec traceRecord
		require.NoError(t, dec.Decode(&rec))
		require.NoError(t, enc.Encode(&rec))
	}

	engine, err := NewTraceEngine(&buf)
	require.NoError(t, err)
	engine.ExecuteNext()
	assert.Equal(t, neovm.Running, engine.State())
	engine.ExecuteNext()
	assert.Equal(t, neovm.Faulted, engine.State())
	assert.Contains(t, engine.FaultMessage(), "trace: ")
	assert.Empty(t, engine.Contexts())

	// The fault is a snapshot like any other.
	assert.True(t, engine.StepBack())
	assert.Equal(t, neovm.Running, engine.State())
}

func TestLoadTrace(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "run.neotrace")
	require.NoError(t, os.WriteFile(path, recordTrace(t, callScript(), neovm.NewInt(2), neovm.NewInt(3)), 0o600))
	engine, err := LoadTrace(path)
	require.NoError(t, err)
	assert.Equal(t, neovm.Running, engine.State())
	require.NoError(t, engine.Close())

	_, err = LoadTrace(filepath.Join(t.TempDir(), "missing.neotrace"))
	assert.Error(t, err)
}

func TestTraceEngine_RedoDoesNotRepeatOutput(t *testing.T) {
	t.Parallel()
	sb := &neovm.ScriptBuilder{}
	sb.EmitPushData([]byte("hello")).EmitSyscall(neovm.SyscallRuntimeLog)
	sb.Emit(neovm.PUSH1)
	script := sb.Script()

	engine, err := NewTraceEngine(bytes.NewReader(recordTrace(t, script)))
	require.NoError(t, err)
	engine.ExecuteNext() // PUSHDATA1
	engine.ExecuteNext() // SYSCALL
	assert.Equal(t, []string{"Runtime.Log: " + script.Hash().String() + " hello"}, engine.DrainOutput())

	require.True(t, engine.StepBack())
	engine.ExecuteNext()
	assert.Empty(t, engine.DrainOutput())

	for engine.State() == neovm.Running {
		engine.ExecuteNext()
	}
	assert.Equal(t, neovm.Halted, engine.State())
	assert.Empty(t, engine.DrainOutput())
}
