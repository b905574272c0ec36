// Copyright © 2018 The ELPS authors

package debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/neo-project/neo-debugger-sub000/storage"
	"github.com/vmihailenco/msgpack/v5"
)

// TraceVersion is the trace file format written by RecordTrace.
const TraceVersion = 1

// maxTraceDepth bounds how deep compound items are recorded. Deeper items,
// including reference cycles, are recorded as null.
const maxTraceDepth = 16

type traceHeader struct {
	Version int `msgpack:"version"`
}

type traceItem struct {
	Type   byte        `msgpack:"t"`
	Bytes  []byte      `msgpack:"b,omitempty"`
	Items  []traceItem `msgpack:"i,omitempty"`
	Script []byte      `msgpack:"s,omitempty"`
	Pos    int         `msgpack:"p,omitempty"`
	Text   string      `msgpack:"x,omitempty"`
}

type traceFrame struct {
	ScriptHash []byte      `msgpack:"hash"`
	IP         int         `msgpack:"ip"`
	EvalStack  []traceItem `msgpack:"estack"`
	Arguments  []traceItem `msgpack:"args"`
	Locals     []traceItem `msgpack:"locals"`
	Statics    []traceItem `msgpack:"statics"`
}

type traceStorage struct {
	Contract []byte          `msgpack:"contract"`
	Entries  []storage.Entry `msgpack:"entries"`
}

// traceRecord is the engine state before one instruction, or the final
// state. Scripts carries the bytes of scripts first seen in this record.
type traceRecord struct {
	State     byte           `msgpack:"state"`
	Scripts   [][]byte       `msgpack:"scripts,omitempty"`
	Frames    []traceFrame   `msgpack:"frames"`
	Results   []traceItem    `msgpack:"results,omitempty"`
	Fault     string         `msgpack:"fault,omitempty"`
	Caught    bool           `msgpack:"caught,omitempty"`
	Exception *traceItem     `msgpack:"exception,omitempty"`
	Output    []string       `msgpack:"output,omitempty"`
	Storage   []traceStorage `msgpack:"storage,omitempty"`
}

// RecordTrace runs engine to the end, writing a snapshot of its state
// before every instruction and once more after the last. It stops early
// with ctx's error when ctx is done.
func RecordTrace(ctx context.Context, w io.Writer, engine *LiveEngine) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(&traceHeader{Version: TraceVersion}); err != nil {
		return err
	}
	seen := make(map[neovm.Hash160]bool)
	var output []string
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := snapshotEngine(engine, seen)
		rec.Output = output
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write trace: %w", err)
		}
		if engine.State() != neovm.Running {
			return nil
		}
		engine.ExecuteNext()
		output = engine.DrainOutput()
	}
}

func snapshotEngine(engine *LiveEngine, seen map[neovm.Hash160]bool) *traceRecord {
	rec := &traceRecord{
		State:  byte(engine.State()),
		Fault:  engine.FaultMessage(),
		Caught: engine.ExceptionCaught(),
	}
	for _, ctx := range engine.Contexts() {
		hash := ctx.ScriptHash()
		if !seen[hash] {
			seen[hash] = true
			rec.Scripts = append(rec.Scripts, ctx.Script().Bytes())
		}
		rec.Frames = append(rec.Frames, traceFrame{
			ScriptHash: hash.Bytes(),
			IP:         ctx.IP(),
			EvalStack:  encodeItems(ctx.EvaluationStack()),
			Arguments:  encodeItems(ctx.Arguments()),
			Locals:     encodeItems(ctx.Locals()),
			Statics:    encodeItems(ctx.StaticFields()),
		})
	}
	if engine.State() == neovm.Halted {
		rec.Results = encodeItems(engine.ResultStack())
	}
	if ex := engine.LastException(); ex != nil {
		item := encodeItem(ex, 0)
		rec.Exception = &item
	}
	for _, h := range engine.Store().Contracts() {
		rec.Storage = append(rec.Storage, traceStorage{Contract: h.Bytes(), Entries: engine.Store().Entries(h)})
	}
	return rec
}

func encodeItems(items []neovm.StackItem) []traceItem {
	out := make([]traceItem, len(items))
	for i, it := range items {
		out[i] = encodeItem(it, 0)
	}
	return out
}

func encodeItem(it neovm.StackItem, depth int) traceItem {
	if it == nil || depth > maxTraceDepth {
		return traceItem{Type: byte(neovm.AnyT)}
	}
	t := traceItem{Type: byte(neovm.TypeOf(it))}
	switch v := it.(type) {
	case neovm.Boolean, neovm.Integer, neovm.ByteString:
		t.Bytes, _ = neovm.ToBytes(v)
	case *neovm.Buffer:
		t.Bytes = append([]byte(nil), v.Value...)
	case *neovm.Array:
		for _, child := range v.Items {
			t.Items = append(t.Items, encodeItem(child, depth+1))
		}
	case *neovm.Map:
		for _, e := range v.Entries {
			t.Items = append(t.Items, encodeItem(e.Key, depth+1), encodeItem(e.Value, depth+1))
		}
	case neovm.Pointer:
		if v.Script != nil {
			t.Script = v.Script.Hash().Bytes()
		}
		t.Pos = v.Position
	case neovm.InteropInterface:
		t.Text = fmt.Sprintf("%T", v.Value)
	}
	return t
}

// traceSnapshot is one decoded, immutable trace record.
type traceSnapshot struct {
	state     neovm.State
	contexts  []ExecutionContext
	results   []neovm.StackItem
	fault     string
	caught    bool
	exception neovm.StackItem
	output    []string
	storage   map[neovm.Hash160][]storage.Entry
}

// traceContext is a recorded invocation stack frame.
type traceContext struct {
	script  *neovm.Script
	ip      int
	estack  []neovm.StackItem
	args    []neovm.StackItem
	locals  []neovm.StackItem
	statics []neovm.StackItem
}

func (c *traceContext) Script() *neovm.Script              { return c.script }
func (c *traceContext) ScriptHash() neovm.Hash160          { return c.script.Hash() }
func (c *traceContext) IP() int                            { return c.ip }
func (c *traceContext) EvaluationStack() []neovm.StackItem { return c.estack }
func (c *traceContext) Arguments() []neovm.StackItem       { return c.args }
func (c *traceContext) Locals() []neovm.StackItem          { return c.locals }
func (c *traceContext) StaticFields() []neovm.StackItem    { return c.statics }

// TraceEngine replays a recorded trace. Snapshots already visited are kept
// on a done stack whose top is the current state; stepping back moves
// them onto a redo stack that forward steps consume before reading more
// of the trace. Output is reported when its record is first read, so
// replaying a step after StepBack does not repeat it.
type TraceEngine struct {
	dec     *msgpack.Decoder
	closer  io.Closer
	scripts map[neovm.Hash160]*neovm.Script
	done    []*traceSnapshot
	redo    []*traceSnapshot
	pending []string
}

var _ ReversibleEngine = (*TraceEngine)(nil)

// LoadTrace opens a trace file for replay. Close releases the file.
func LoadTrace(path string) (*TraceEngine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	e, err := NewTraceEngine(f)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	e.closer = f
	return e, nil
}

// NewTraceEngine replays the trace read from r, positioned at its first
// record.
func NewTraceEngine(r io.Reader) (*TraceEngine, error) {
	e := &TraceEngine{
		dec:     msgpack.NewDecoder(r),
		scripts: make(map[neovm.Hash160]*neovm.Script),
	}
	var h traceHeader
	if err := e.dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("read trace header: %w", err)
	}
	if h.Version != TraceVersion {
		return nil, fmt.Errorf("unsupported trace version %d", h.Version)
	}
	snap, err := e.read()
	if err != nil {
		return nil, err
	}
	e.done = append(e.done, snap)
	return e, nil
}

// Close releases the underlying trace file, if any.
func (e *TraceEngine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// read decodes the next record.
func (e *TraceEngine) read() (*traceSnapshot, error) {
	var rec traceRecord
	if err := e.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	for _, b := range rec.Scripts {
		s := neovm.NewScript(b)
		e.scripts[s.Hash()] = s
	}
	snap := &traceSnapshot{
		state:   neovm.State(rec.State),
		fault:   rec.Fault,
		caught:  rec.Caught,
		output:  rec.Output,
		storage: make(map[neovm.Hash160][]storage.Entry, len(rec.Storage)),
	}
	for _, f := range rec.Frames {
		hash, ok := neovm.Hash160FromBytes(f.ScriptHash)
		if !ok {
			return nil, fmt.Errorf("trace frame script hash has %d bytes", len(f.ScriptHash))
		}
		script, ok := e.scripts[hash]
		if !ok {
			return nil, fmt.Errorf("trace references unknown script %s", hash)
		}
		snap.contexts = append(snap.contexts, &traceContext{
			script:  script,
			ip:      f.IP,
			estack:  e.decodeItems(f.EvalStack),
			args:    e.decodeItems(f.Arguments),
			locals:  e.decodeItems(f.Locals),
			statics: e.decodeItems(f.Statics),
		})
	}
	snap.results = e.decodeItems(rec.Results)
	if rec.Exception != nil {
		snap.exception = e.decodeItem(*rec.Exception)
	}
	for _, st := range rec.Storage {
		if h, ok := neovm.Hash160FromBytes(st.Contract); ok {
			snap.storage[h] = st.Entries
		}
	}
	return snap, nil
}

func (e *TraceEngine) decodeItems(items []traceItem) []neovm.StackItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]neovm.StackItem, len(items))
	for i, t := range items {
		out[i] = e.decodeItem(t)
	}
	return out
}

func (e *TraceEngine) decodeItem(t traceItem) neovm.StackItem {
	switch neovm.ItemType(t.Type) {
	case neovm.BooleanT:
		return neovm.Boolean(len(t.Bytes) > 0 && t.Bytes[0] != 0)
	case neovm.IntegerT:
		return neovm.NewBigInt(neovm.BytesToInt(t.Bytes))
	case neovm.ByteStringT:
		return neovm.ByteString(t.Bytes)
	case neovm.BufferT:
		return &neovm.Buffer{Value: t.Bytes}
	case neovm.ArrayT:
		return neovm.NewArray(e.decodeItems(t.Items)...)
	case neovm.StructT:
		return neovm.NewStruct(e.decodeItems(t.Items)...)
	case neovm.MapT:
		m := &neovm.Map{}
		for i := 0; i+1 < len(t.Items); i += 2 {
			m.Entries = append(m.Entries, neovm.MapEntry{Key: e.decodeItem(t.Items[i]), Value: e.decodeItem(t.Items[i+1])})
		}
		return m
	case neovm.PointerT:
		p := neovm.Pointer{Position: t.Pos}
		if h, ok := neovm.Hash160FromBytes(t.Script); ok {
			p.Script = e.scripts[h]
		}
		return p
	case neovm.InteropInterfaceT:
		return neovm.InteropInterface{Value: t.Text}
	}
	return neovm.Null{}
}

func (e *TraceEngine) current() *traceSnapshot {
	return e.done[len(e.done)-1]
}

func (e *TraceEngine) ExecuteNext() {
	if e.current().state != neovm.Running {
		return
	}
	if n := len(e.redo); n > 0 {
		e.done = append(e.done, e.redo[n-1])
		e.redo = e.redo[:n-1]
		return
	}
	snap, err := e.read()
	if err != nil {
		snap = &traceSnapshot{state: neovm.Faulted, fault: "trace: " + err.Error()}
	}
	e.done = append(e.done, snap)
	e.pending = append(e.pending, snap.output...)
}

// StepBack moves to the previous snapshot.
func (e *TraceEngine) StepBack() bool {
	if len(e.done) <= 1 {
		return false
	}
	n := len(e.done)
	e.redo = append(e.redo, e.done[n-1])
	e.done = e.done[:n-1]
	return true
}

func (e *TraceEngine) State() neovm.State {
	return e.current().state
}

func (e *TraceEngine) Contexts() []ExecutionContext {
	return e.current().contexts
}

func (e *TraceEngine) ResultStack() []neovm.StackItem {
	return e.current().results
}

func (e *TraceEngine) FaultMessage() string {
	return e.current().fault
}

func (e *TraceEngine) ExceptionCaught() bool {
	return e.current().caught
}

func (e *TraceEngine) LastException() neovm.StackItem {
	return e.current().exception
}

func (e *TraceEngine) StorageEntries(contract neovm.Hash160) []storage.Entry {
	return e.current().storage[contract]
}

func (e *TraceEngine) DrainOutput() []string {
	out := e.pending
	e.pending = nil
	return out
}
