// Copyright © 2018 The ELPS authors

package neovm

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxStackSize bounds the number of items a single evaluation stack may
// hold.
const MaxStackSize = 2048

// State is the execution state of a VM.
type State byte

// VM states.
const (
	Running State = iota
	Halted
	Faulted
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Halted:
		return "HALT"
	case Faulted:
		return "FAULT"
	}
	return fmt.Sprintf("State(%d)", byte(s))
}

// ErrUnhandledException is wrapped by the fault error of a VM that threw an
// exception no TRY block caught.
var ErrUnhandledException = errors.New("an unhandled exception was thrown")

// Stack is an evaluation stack. Index 0 of Items is the top.
type Stack struct {
	items []StackItem
}

// Len returns the number of items on the stack.
func (s *Stack) Len() int {
	return len(s.items)
}

// Push pushes it onto the stack. Nil is pushed as Null.
func (s *Stack) Push(it StackItem) {
	if it == nil {
		it = Null{}
	}
	s.items = append(s.items, it)
}

// Pop removes and returns the top item.
func (s *Stack) Pop() (StackItem, error) {
	return s.Remove(0)
}

// Peek returns the item n positions below the top.
func (s *Stack) Peek(n int) (StackItem, error) {
	if n < 0 || n >= len(s.items) {
		return nil, fmt.Errorf("stack index %d out of range (depth %d)", n, len(s.items))
	}
	return s.items[len(s.items)-1-n], nil
}

// Remove removes and returns the item n positions below the top.
func (s *Stack) Remove(n int) (StackItem, error) {
	it, err := s.Peek(n)
	if err != nil {
		return nil, err
	}
	i := len(s.items) - 1 - n
	s.items = append(s.items[:i], s.items[i+1:]...)
	return it, nil
}

// Insert places it so that it ends up n positions below the top.
func (s *Stack) Insert(n int, it StackItem) error {
	if n < 0 || n > len(s.items) {
		return fmt.Errorf("stack index %d out of range (depth %d)", n, len(s.items))
	}
	i := len(s.items) - n
	s.items = append(s.items, nil)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = it
	return nil
}

// Reverse reverses the order of the top n items.
func (s *Stack) Reverse(n int) error {
	if n < 0 || n > len(s.items) {
		return fmt.Errorf("cannot reverse %d items (depth %d)", n, len(s.items))
	}
	top := s.items[len(s.items)-n:]
	for i, j := 0, len(top)-1; i < j; i, j = i+1, j-1 {
		top[i], top[j] = top[j], top[i]
	}
	return nil
}

// Clear removes every item.
func (s *Stack) Clear() {
	s.items = nil
}

// Items returns a copy of the stack contents, top first.
func (s *Stack) Items() []StackItem {
	out := make([]StackItem, len(s.items))
	for i, it := range s.items {
		out[len(s.items)-1-i] = it
	}
	return out
}

// Slot is a fixed size array of arguments, locals or static fields.
type Slot []StackItem

func newSlot(n int) Slot {
	s := make(Slot, n)
	for i := range s {
		s[i] = Null{}
	}
	return s
}

type tryState byte

const (
	tryBlock tryState = iota
	catchBlock
	finallyBlock
)

type tryContext struct {
	catchPtr   int
	finallyPtr int
	endPtr     int
	state      tryState
}

func (t *tryContext) hasCatch() bool   { return t.catchPtr >= 0 }
func (t *tryContext) hasFinally() bool { return t.finallyPtr >= 0 }

// Context is one frame of the invocation stack.
type Context struct {
	script  *Script
	ip      int
	estack  *Stack
	statics *Slot
	locals  Slot
	args    Slot
	tries   []*tryContext
}

// Script returns the script executing in c.
func (c *Context) Script() *Script { return c.script }

// ScriptHash returns the identity of the executing script.
func (c *Context) ScriptHash() Hash160 { return c.script.Hash() }

// IP returns the current instruction pointer.
func (c *Context) IP() int { return c.ip }

// CurrentInstruction decodes the instruction at the instruction pointer.
func (c *Context) CurrentInstruction() (Instruction, error) {
	return c.script.InstructionAt(c.ip)
}

// EvaluationStack returns the evaluation stack items, top first.
func (c *Context) EvaluationStack() []StackItem { return c.estack.Items() }

// Arguments returns the argument slot, or nil before INITSLOT.
func (c *Context) Arguments() []StackItem { return c.args }

// Locals returns the local variable slot, or nil before INITSLOT.
func (c *Context) Locals() []StackItem { return c.locals }

// StaticFields returns the static field slot shared by every context of
// the same script load.
func (c *Context) StaticFields() []StackItem {
	if c.statics == nil {
		return nil
	}
	return *c.statics
}

// clone returns a context for a CALL into the same script: evaluation
// stack and static fields are shared.
func (c *Context) clone(ip int) *Context {
	return &Context{
		script:  c.script,
		ip:      ip,
		estack:  c.estack,
		statics: c.statics,
	}
}

// VM is a small reference NeoVM interpreter.
type VM struct {
	host     *Host
	interops map[uint32]interopFunc

	istack  []*Context
	results Stack
	state   State
	fault   error

	jumping   bool
	uncaught  StackItem
	lastThrow StackItem
	caught    bool
}

// NewVM returns a VM whose interop services are backed by host. A nil host
// behaves as an empty one.
func NewVM(host *Host) *VM {
	if host == nil {
		host = &Host{}
	}
	return &VM{host: host, interops: defaultInterops()}
}

// LoadScript pushes a new context executing script from position pos.
// args are passed so that INITSLOT binds args[0] to argument 0.
func (v *VM) LoadScript(script *Script, pos int, args ...StackItem) {
	ctx := &Context{
		script:  script,
		ip:      pos,
		estack:  &Stack{},
		statics: new(Slot),
	}
	for i := len(args) - 1; i >= 0; i-- {
		ctx.estack.Push(args[i])
	}
	v.istack = append(v.istack, ctx)
	v.state = Running
}

// State returns the current execution state.
func (v *VM) State() State { return v.state }

// FaultError returns the reason the VM faulted.
func (v *VM) FaultError() error { return v.fault }

// Contexts returns the invocation stack, top first.
func (v *VM) Contexts() []*Context {
	out := make([]*Context, len(v.istack))
	for i, c := range v.istack {
		out[len(v.istack)-1-i] = c
	}
	return out
}

// CurrentContext returns the top of the invocation stack.
func (v *VM) CurrentContext() *Context {
	if len(v.istack) == 0 {
		return nil
	}
	return v.istack[len(v.istack)-1]
}

// ResultStack returns the items left after the outermost RET, top first.
func (v *VM) ResultStack() []StackItem { return v.results.Items() }

// ExceptionCaught reports whether the last step threw an exception that a
// TRY block caught.
func (v *VM) ExceptionCaught() bool { return v.caught }

// LastException returns the most recently thrown exception item.
func (v *VM) LastException() StackItem { return v.lastThrow }

// Run steps until the VM halts or faults.
func (v *VM) Run() State {
	for v.state == Running {
		v.Step()
	}
	return v.state
}

// Step executes a single instruction.
func (v *VM) Step() State {
	if v.state != Running {
		return v.state
	}
	v.caught = false
	ctx := v.CurrentContext()
	if ctx == nil {
		v.state = Halted
		return v.state
	}
	ins, err := ctx.CurrentInstruction()
	if err != nil {
		v.setFault(err)
		return v.state
	}
	v.jumping = false
	if err := v.execute(ctx, ins); err != nil {
		v.setFault(fmt.Errorf("%s at %d: %w", ins.Opcode, ins.Address, err))
		return v.state
	}
	if !v.jumping {
		ctx.ip = ins.Next()
	}
	return v.state
}

func (v *VM) setFault(err error) {
	v.state = Faulted
	v.fault = err
}

func (v *VM) estack() *Stack {
	return v.CurrentContext().estack
}

func (v *VM) push(it StackItem) error {
	s := v.estack()
	if s.Len() >= MaxStackSize {
		return fmt.Errorf("stack overflow: more than %d items", MaxStackSize)
	}
	s.Push(it)
	return nil
}

func (v *VM) pop() (StackItem, error) {
	return v.estack().Pop()
}

func (v *VM) popInt() (int, error) {
	n, err := v.popBig()
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() || n.Int64() > int64(^uint32(0)>>1) || n.Int64() < -int64(^uint32(0)>>1) {
		return 0, fmt.Errorf("integer %s out of range", n)
	}
	return int(n.Int64()), nil
}

func (v *VM) popBool() (bool, error) {
	it, err := v.pop()
	if err != nil {
		return false, err
	}
	return ToBoolean(it)
}

func (v *VM) popBytes() ([]byte, error) {
	it, err := v.pop()
	if err != nil {
		return nil, err
	}
	return ToBytes(it)
}

func (v *VM) jumpTo(ctx *Context, target int) error {
	if target < 0 || target > ctx.script.Len() {
		return fmt.Errorf("jump target %d out of range", target)
	}
	ctx.ip = target
	v.jumping = true
	return nil
}

func (v *VM) call(ctx *Context, target int) error {
	if target < 0 || target > ctx.script.Len() {
		return fmt.Errorf("call target %d out of range", target)
	}
	v.istack = append(v.istack, ctx.clone(target))
	return nil
}

func (v *VM) ret() error {
	n := len(v.istack)
	top := v.istack[n-1]
	v.istack = v.istack[:n-1]
	var dst *Stack
	if len(v.istack) == 0 {
		dst = &v.results
	} else {
		dst = v.CurrentContext().estack
	}
	if dst != top.estack {
		items := top.estack.items
		dst.items = append(dst.items, items...)
	}
	if len(v.istack) == 0 {
		v.state = Halted
	}
	v.jumping = true
	return nil
}

func (v *VM) throw(ex StackItem) error {
	v.uncaught = ex
	v.lastThrow = ex
	return v.handleException()
}

// handleException unwinds to the nearest TRY block able to handle the
// pending exception, running finally blocks on the way.
func (v *VM) handleException() error {
	pop := 0
	for i := len(v.istack) - 1; i >= 0; i-- {
		ctx := v.istack[i]
		for len(ctx.tries) > 0 {
			tc := ctx.tries[len(ctx.tries)-1]
			if tc.state == finallyBlock || (tc.state == catchBlock && !tc.hasFinally()) {
				ctx.tries = ctx.tries[:len(ctx.tries)-1]
				continue
			}
			v.istack = v.istack[:len(v.istack)-pop]
			if tc.state == tryBlock && tc.hasCatch() {
				tc.state = catchBlock
				ctx.estack.Push(v.uncaught)
				ctx.ip = tc.catchPtr
				v.uncaught = nil
				v.caught = true
			} else {
				tc.state = finallyBlock
				ctx.ip = tc.finallyPtr
			}
			v.jumping = true
			return nil
		}
		pop++
	}
	return fmt.Errorf("%w: %s", ErrUnhandledException, exceptionMessage(v.uncaught))
}

func exceptionMessage(ex StackItem) string {
	b, err := ToBytes(ex)
	if err != nil || !utf8.Valid(b) {
		return TypeOf(ex).String()
	}
	return string(b)
}

// ExceptionMessage renders an exception item as text.
func ExceptionMessage(ex StackItem) string {
	return exceptionMessage(ex)
}
