// Copyright © 2018 The ELPS authors

package debugger

import (
	"fmt"

	"github.com/neo-project/neo-debugger-sub000/debuginfo"
	"github.com/neo-project/neo-debugger-sub000/neovm"
)

// StackFrame is one invocation stack frame mapped to text. Frames mapped
// to a disassembly carry its SourceReference; frames mapped to source
// carry Source and an end position.
type StackFrame struct {
	ID              int
	Name            string
	Source          string
	SourceReference int
	Line            int
	Column          int
	EndLine         int
	EndColumn       int
	ScriptHash      neovm.Hash160
	Address         int
}

// Scope is a named group of variables of one frame.
type Scope struct {
	Name               string
	VariablesReference int
	Expensive          bool
	IndexedVariables   int
	NamedVariables     int
}

// Variable is one displayed value. A non-zero VariablesReference means it
// can be expanded with Session.Variables.
type Variable struct {
	Name               string
	Value              string
	Type               string
	VariablesReference int
	IndexedVariables   int
	NamedVariables     int
}

// Container is a lazily expanded node of the variables view.
type Container interface {
	Variables(s *Session) []Variable
}

// VariableArena maps session-scoped handles to containers. Handles are
// only valid until the next Clear, which the session calls on every stop.
type VariableArena struct {
	entries []Container
	byKey   map[any]int
}

// NewVariableArena returns an empty arena.
func NewVariableArena() *VariableArena {
	return &VariableArena{byKey: make(map[any]int)}
}

// Add registers c under a fresh handle.
func (a *VariableArena) Add(c Container) int {
	a.entries = append(a.entries, c)
	return len(a.entries)
}

// AddIfAbsent returns the handle registered under key, registering c if
// there is none. key and c must be comparable. Registering a different
// container under a known key is an internal error and panics.
func (a *VariableArena) AddIfAbsent(key any, c Container) int {
	if id, ok := a.byKey[key]; ok {
		if a.entries[id-1] != c {
			panic(fmt.Sprintf("debugger: variable container %d registered twice with different contents", id))
		}
		return id
	}
	id := a.Add(c)
	a.byKey[key] = id
	return id
}

// Get returns the container registered under handle.
func (a *VariableArena) Get(handle int) (Container, bool) {
	if handle <= 0 || handle > len(a.entries) {
		return nil, false
	}
	return a.entries[handle-1], true
}

// Len returns the number of registered containers.
func (a *VariableArena) Len() int {
	return len(a.entries)
}

// Clear drops every handle.
func (a *VariableArena) Clear() {
	a.entries = nil
	a.byKey = make(map[any]int)
}

// StackFrames returns up to levels frames starting at start, top first,
// and the total frame count. levels <= 0 means all. Once execution has
// ended there are no frames.
func (s *Session) StackFrames(start, levels int) ([]StackFrame, int) {
	s.mustBeOpen()
	if s.engine.State() != neovm.Running {
		return nil, 0
	}
	ctxs := s.engine.Contexts()
	total := len(ctxs)
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if levels > 0 && start+levels < end {
		end = start + levels
	}
	frames := make([]StackFrame, 0, end-start)
	for i := start; i < end; i++ {
		frames = append(frames, s.frame(i+1, ctxs[i]))
	}
	return frames, total
}

func (s *Session) frame(id int, ctx ExecutionContext) StackFrame {
	f := StackFrame{
		ID:         id,
		Name:       fmt.Sprintf("frame %d", id),
		ScriptHash: ctx.ScriptHash(),
		Address:    ctx.IP(),
	}
	method, ok := s.methodAt(ctx)
	if ok {
		f.Name = method.DisplayName()
	}
	if ok && s.view == ViewSource {
		if sp, found := method.SequencePointAt(ctx.IP()); found {
			f.Source = s.infos[ctx.ScriptHash()].Document(sp.Document)
			f.Line = sp.Start.Line
			f.Column = sp.Start.Column
			f.EndLine = sp.End.Line
			f.EndColumn = sp.End.Column
			return f
		}
	}
	dis, err := s.disassemble(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("frame has no disassembly")
		return f
	}
	f.SourceReference = dis.SourceReference
	f.Column = 1
	f.Line, _ = dis.Line(ctx.IP())
	return f
}

// contextAt returns the context of a 1-based frame id.
func (s *Session) contextAt(frameID int) (ExecutionContext, bool) {
	if s.engine.State() != neovm.Running {
		return nil, false
	}
	ctxs := s.engine.Contexts()
	if frameID < 1 || frameID > len(ctxs) {
		return nil, false
	}
	return ctxs[frameID-1], true
}

// Scopes returns the scopes of a frame. Each scope's handle is valid until
// the next stop.
func (s *Session) Scopes(frameID int) []Scope {
	s.mustBeOpen()
	ctx, ok := s.contextAt(frameID)
	if !ok {
		return nil
	}
	method, _ := s.methodAt(ctx)
	info := s.infos[ctx.ScriptHash()]

	var params, locals, statics []debuginfo.SlotVariable
	if method != nil {
		params, locals = method.Parameters, method.Variables
	}
	if info != nil {
		statics = info.StaticVariables
	}
	args := ctx.Arguments()
	locs := ctx.Locals()
	sflds := ctx.StaticFields()
	estack := ctx.EvaluationStack()
	return []Scope{
		{
			Name:               "Arguments",
			VariablesReference: s.arena.Add(newSlotContainer(args, params, "arg")),
			IndexedVariables:   len(args),
		},
		{
			Name:               "Locals",
			VariablesReference: s.arena.Add(newSlotContainer(locs, locals, "loc")),
			IndexedVariables:   len(locs),
		},
		{
			Name:               "Statics",
			VariablesReference: s.arena.Add(newSlotContainer(sflds, statics, "sfld")),
			IndexedVariables:   len(sflds),
		},
		{
			Name:               "Evaluation Stack",
			VariablesReference: s.arena.Add(newSlotContainer(estack, nil, "eval")),
			IndexedVariables:   len(estack),
		},
		{
			Name:               "Storage",
			VariablesReference: s.arena.Add(storageContainer{contract: ctx.ScriptHash()}),
			Expensive:          true,
		},
	}
}

// Variables expands a handle from the current stop.
func (s *Session) Variables(ref int) ([]Variable, error) {
	s.mustBeOpen()
	c, ok := s.arena.Get(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariablesReference, ref)
	}
	return c.Variables(s), nil
}

// variable renders one item and registers a handle for it when it can be
// expanded. typeName is the declared type from debug info, if known.
func (s *Session) variable(name string, it neovm.StackItem, typeName string) Variable {
	v := Variable{
		Name:               name,
		Value:              FormatItem(it),
		Type:               ItemTypeName(it),
		VariablesReference: s.register(it, typeName),
	}
	if typeName != "" {
		v.Type = typeName
	}
	v.IndexedVariables, v.NamedVariables = childInfo(it)
	return v
}

// register returns a handle for an expandable item, or 0.
func (s *Session) register(it neovm.StackItem, typeName string) int {
	if !isContainer(it) {
		return 0
	}
	switch v := it.(type) {
	case neovm.ByteString:
		return s.arena.Add(bytesContainer{b: v})
	case *neovm.Buffer:
		return s.arena.Add(bytesContainer{b: v.Value})
	default:
		c := compoundContainer{item: it, typeName: typeName}
		return s.arena.AddIfAbsent(c, c)
	}
}

// structLayout returns the field layout registered under a type name in
// any loaded debug info.
func (s *Session) structLayout(typeName string) (*debuginfo.Struct, bool) {
	if typeName == "" {
		return nil, false
	}
	for _, info := range s.infos {
		if st, ok := info.Struct(typeName); ok {
			return st, true
		}
	}
	return nil, false
}

// slotContainer lists a slot or stack, naming entries from debug info
// where available.
type slotContainer struct {
	items []neovm.StackItem
	names []string
	types []string
}

func newSlotContainer(items []neovm.StackItem, vars []debuginfo.SlotVariable, prefix string) *slotContainer {
	c := &slotContainer{
		items: items,
		names: make([]string, len(items)),
		types: make([]string, len(items)),
	}
	for i := range items {
		c.names[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	for _, v := range vars {
		if v.Index >= 0 && v.Index < len(items) {
			c.names[v.Index] = v.Name
			c.types[v.Index] = v.Type
		}
	}
	return c
}

func (c *slotContainer) Variables(s *Session) []Variable {
	out := make([]Variable, len(c.items))
	for i, it := range c.items {
		out[i] = s.variable(c.names[i], it, c.types[i])
	}
	return out
}

// compoundContainer expands an array, struct or map.
type compoundContainer struct {
	item     neovm.StackItem
	typeName string
}

func (c compoundContainer) Variables(s *Session) []Variable {
	switch v := c.item.(type) {
	case *neovm.Array:
		layout, _ := s.structLayout(c.typeName)
		out := make([]Variable, len(v.Items))
		for i, it := range v.Items {
			name, typ := fmt.Sprintf("[%d]", i), ""
			if v.IsStruct && layout != nil && i < len(layout.Fields) {
				name, typ = layout.Fields[i].Name, layout.Fields[i].Type
			}
			out[i] = s.variable(name, it, typ)
		}
		return out
	case *neovm.Map:
		out := make([]Variable, len(v.Entries))
		for i, e := range v.Entries {
			out[i] = s.variable(mapKeyName(e.Key), e.Value, "")
		}
		return out
	}
	return nil
}

func mapKeyName(key neovm.StackItem) string {
	if b, ok := key.(neovm.ByteString); ok {
		if text, ok := printableText(b); ok {
			return truncateDisplay(fmt.Sprintf("%q", text))
		}
	}
	return FormatItem(key)
}

// bytesContainer expands a byte string into its bytes.
type bytesContainer struct {
	b []byte
}

func (c bytesContainer) Variables(*Session) []Variable {
	out := make([]Variable, len(c.b))
	for i, b := range c.b {
		out[i] = Variable{
			Name:  fmt.Sprintf("[%d]", i),
			Value: fmt.Sprintf("0x%02x", b),
			Type:  "Byte",
		}
	}
	return out
}

// storageContainer enumerates a contract's storage when expanded.
type storageContainer struct {
	contract neovm.Hash160
}

func (c storageContainer) Variables(s *Session) []Variable {
	entries := s.engine.StorageEntries(c.contract)
	out := make([]Variable, len(entries))
	for i, e := range entries {
		name := formatBytes(e.Key)
		if text, ok := printableText(e.Key); ok {
			name = truncateDisplay(fmt.Sprintf("%q", text))
		}
		out[i] = s.variable(name, neovm.ByteString(e.Value), "")
	}
	return out
}
