// Copyright © 2018 The ELPS authors

package debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/neo-project/neo-debugger-sub000/debuginfo"
	"github.com/neo-project/neo-debugger-sub000/neovm"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNotLaunched is returned by front ends for requests that need a
	// session before one was launched.
	ErrNotLaunched = errors.New("session not launched")
	// ErrReverseNotSupported is returned by reverse operations on an
	// engine that can only run forwards.
	ErrReverseNotSupported = errors.New("engine does not support reverse execution")
	// ErrNotRunning is returned by forward operations once execution has
	// halted or faulted.
	ErrNotRunning = errors.New("execution has ended")
	// ErrUnknownVariablesReference is returned for variable handles that
	// are not registered in the current stop.
	ErrUnknownVariablesReference = errors.New("unknown variables reference")
)

// DebugView selects how frames are mapped to text.
type DebugView int

const (
	// ViewSource maps frames to source files through debug info, falling
	// back to disassembly where no sequence point applies.
	ViewSource DebugView = iota
	// ViewDisassembly maps every frame to its script's disassembly.
	ViewDisassembly
)

func (v DebugView) String() string {
	if v == ViewDisassembly {
		return "disassembly"
	}
	return "source"
}

// Session is the stepping controller over one Engine. It owns the
// breakpoint registry and the variable arena; neither is shared.
type Session struct {
	engine       Engine
	disassembler *Disassembler
	breakpoints  *BreakpointManager
	stepper      *Stepper
	arena        *VariableArena
	infos        map[neovm.Hash160]*debuginfo.DebugInfo
	returnTypes  []string
	onEvent      EventCallback
	logger       *log.Entry
	ctx          context.Context
	view         DebugView
	finished     bool
	closed       bool
}

// Option configures a Session.
type Option func(*Session)

// WithEventCallback sets the function called on session state changes.
func WithEventCallback(cb EventCallback) Option {
	return func(s *Session) {
		s.onEvent = cb
	}
}

// WithDebugInfo registers contract debug info. Each entry is keyed by its
// Hash.
func WithDebugInfo(infos ...*debuginfo.DebugInfo) Option {
	return func(s *Session) {
		for _, info := range infos {
			if info != nil {
				s.infos[info.Hash] = info
			}
		}
	}
}

// WithReturnTypes sets the casts applied to result stack items, by
// position, when execution halts.
func WithReturnTypes(types []string) Option {
	return func(s *Session) {
		s.returnTypes = types
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithContext sets the parent context of the spans the session records.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

// WithDebugView sets the initial debug view.
func WithDebugView(v DebugView) Option {
	return func(s *Session) {
		s.view = v
	}
}

// NewSession returns a session driving engine. syscalls names SYSCALL
// targets in disassembly listings.
func NewSession(engine Engine, syscalls neovm.SyscallTable, opts ...Option) *Session {
	s := &Session{
		engine:       engine,
		disassembler: NewDisassembler(syscalls),
		stepper:      NewStepper(),
		arena:        NewVariableArena(),
		infos:        make(map[neovm.Hash160]*debuginfo.DebugInfo),
		logger:       log.NewEntry(log.StandardLogger()),
		ctx:          context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	infos := make([]*debuginfo.DebugInfo, 0, len(s.infos))
	for _, info := range s.infos {
		infos = append(infos, info)
	}
	s.breakpoints = NewBreakpointManager(s.disassembler, infos...)
	return s
}

// SetEventCallback replaces the event callback.
func (s *Session) SetEventCallback(cb EventCallback) {
	s.onEvent = cb
}

// Engine returns the engine driven by the session.
func (s *Session) Engine() Engine {
	return s.engine
}

// Breakpoints returns the breakpoint registry.
func (s *Session) Breakpoints() *BreakpointManager {
	return s.breakpoints
}

// Disassembler returns the session's disassembly cache.
func (s *Session) Disassembler() *Disassembler {
	return s.disassembler
}

// DebugInfo returns the debug info registered for a script.
func (s *Session) DebugInfo(hash neovm.Hash160) (*debuginfo.DebugInfo, bool) {
	info, ok := s.infos[hash]
	return info, ok
}

// Documents returns the source documents of every registered debug info,
// sorted and without duplicates.
func (s *Session) Documents() []string {
	seen := make(map[string]bool)
	var docs []string
	for _, info := range s.infos {
		for _, doc := range info.Documents {
			if doc != "" && !seen[doc] {
				seen[doc] = true
				docs = append(docs, doc)
			}
		}
	}
	sort.Strings(docs)
	return docs
}

// State returns the engine's execution state.
func (s *Session) State() neovm.State {
	return s.engine.State()
}

// DebugView returns the current debug view.
func (s *Session) DebugView() DebugView {
	return s.view
}

// SetDebugView switches between source and disassembly views. name is
// "source", "disassembly" or "toggle". Variable handles of the current
// stop are dropped since frames may render differently.
func (s *Session) SetDebugView(name string) error {
	switch name {
	case "source":
		s.view = ViewSource
	case "disassembly":
		s.view = ViewDisassembly
	case "toggle":
		if s.view == ViewSource {
			s.view = ViewDisassembly
		} else {
			s.view = ViewSource
		}
	default:
		return fmt.Errorf("unknown debug view %q", name)
	}
	s.arena.Clear()
	return nil
}

// Close releases the session and its engine. Any further use panics.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.arena.Clear()
	if c, ok := s.engine.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.WithError(err).Warn("closing engine")
		}
	}
}

func (s *Session) mustBeOpen() {
	if s.closed {
		panic("debugger: session used after Close")
	}
}

// Start begins execution. With stopOnEntry the session stops before the
// first instruction, otherwise it continues to the first breakpoint.
func (s *Session) Start(stopOnEntry bool) error {
	s.mustBeOpen()
	for _, ctx := range s.engine.Contexts() {
		if _, err := s.disassemble(ctx); err != nil {
			return err
		}
	}
	if stopOnEntry {
		span := s.startSpan("entry")
		defer span.End()
		s.stop(span, StopEntry)
		return nil
	}
	return s.Continue()
}

// Continue runs until a breakpoint, a caught exception when that filter
// is enabled, or the end of execution.
func (s *Session) Continue() error {
	return s.forward("continue", func() bool { return false })
}

// StepOver runs to the next step boundary at the same or lesser depth.
func (s *Session) StepOver() error {
	s.stepper.SetStepOver(s.depth())
	return s.forward("next", s.stepBoundary)
}

// StepIn runs to the next step boundary at any depth.
func (s *Session) StepIn() error {
	s.stepper.SetStepInto(s.depth())
	return s.forward("stepIn", s.stepBoundary)
}

// StepOut runs to the next step boundary after the current method
// returns.
func (s *Session) StepOut() error {
	s.stepper.SetStepOut(s.depth())
	return s.forward("stepOut", s.stepBoundary)
}

func (s *Session) stepBoundary() bool {
	return s.stepper.ShouldPause(s.depth(), s.isBoundary())
}

// forward executes instructions until done reports a step stop or another
// stop condition applies. Exactly one stopped event, or the terminal
// events, fire before it returns.
func (s *Session) forward(op string, done func() bool) error {
	s.mustBeOpen()
	if s.engine.State() != neovm.Running {
		s.stepper.Reset()
		return fmt.Errorf("%s: %w", op, ErrNotRunning)
	}
	span := s.startSpan(op)
	defer span.End()

	steps := 0
	for {
		s.engine.ExecuteNext()
		steps++
		s.flushOutput()
		if s.engine.State() != neovm.Running {
			recordSteps(span, steps)
			s.finish(span)
			return nil
		}
		if s.engine.ExceptionCaught() && s.breakpoints.ExceptionBreak() == ExceptionBreakCaught {
			recordSteps(span, steps)
			s.stop(span, StopException)
			return nil
		}
		if s.atBreakpoint() {
			recordSteps(span, steps)
			s.stop(span, StopBreakpoint)
			return nil
		}
		if done() {
			recordSteps(span, steps)
			s.stop(span, StopStep)
			return nil
		}
	}
}

// ReverseContinue runs backwards to the previous breakpoint or the start
// of execution.
func (s *Session) ReverseContinue() error {
	return s.backward("reverseContinue", func() bool { return false })
}

// StepBack runs backwards to the previous step boundary.
func (s *Session) StepBack() error {
	return s.backward("stepBack", s.isBoundary)
}

func (s *Session) backward(op string, done func() bool) error {
	s.mustBeOpen()
	rev, ok := s.engine.(ReversibleEngine)
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrReverseNotSupported)
	}
	span := s.startSpan(op)
	defer span.End()

	s.stepper.Reset()
	s.finished = false
	steps := 0
	for {
		if !rev.StepBack() {
			recordSteps(span, steps)
			s.stop(span, StopEntry)
			return nil
		}
		steps++
		if s.atBreakpoint() {
			recordSteps(span, steps)
			s.stop(span, StopBreakpoint)
			return nil
		}
		if done() {
			recordSteps(span, steps)
			s.stop(span, StopStep)
			return nil
		}
	}
}

// depth returns the invocation stack depth.
func (s *Session) depth() int {
	return len(s.engine.Contexts())
}

// current returns the top execution context, or nil.
func (s *Session) current() ExecutionContext {
	ctxs := s.engine.Contexts()
	if len(ctxs) == 0 {
		return nil
	}
	return ctxs[0]
}

// isBoundary reports whether the next instruction starts a step. Without a
// symbol mapping every instruction does.
func (s *Session) isBoundary() bool {
	if s.view == ViewDisassembly {
		return true
	}
	ctx := s.current()
	if ctx == nil {
		return true
	}
	method, ok := s.methodAt(ctx)
	if !ok {
		return true
	}
	return method.IsBoundary(ctx.IP())
}

func (s *Session) methodAt(ctx ExecutionContext) (*debuginfo.Method, bool) {
	info, ok := s.infos[ctx.ScriptHash()]
	if !ok {
		return nil, false
	}
	return info.MethodAt(ctx.IP())
}

func (s *Session) atBreakpoint() bool {
	ctx := s.current()
	if ctx == nil {
		return false
	}
	hash := ctx.ScriptHash()
	if _, err := s.disassemble(ctx); err != nil {
		s.logger.WithError(err).Warn("disassembly failed")
	}
	return s.breakpoints.Has(hash, ctx.IP())
}

// disassemble makes sure the listing of a context's script is cached so
// that disassembly breakpoints on it resolve.
func (s *Session) disassemble(ctx ExecutionContext) (*Disassembly, error) {
	return s.disassembler.Disassemble(ctx.Script(), s.infos[ctx.ScriptHash()])
}

func (s *Session) stop(span trace.Span, reason StopReason) {
	s.stepper.Reset()
	s.arena.Clear()
	s.annotateStop(span, reason)
	entry := s.logger.WithField("reason", reason)
	if ctx := s.current(); ctx != nil {
		entry = entry.WithFields(log.Fields{"script": ctx.ScriptHash().String(), "ip": ctx.IP()})
	}
	entry.Debug("stopped")
	s.emit(Event{Type: EventStopped, Reason: reason})
}

// finish reports the terminal state: the fault message, or one output per
// result, then exited and terminated.
func (s *Session) finish(span trace.Span) {
	s.stepper.Reset()
	s.arena.Clear()
	s.finished = true
	state := s.engine.State()
	exitCode := 0
	if state == neovm.Faulted {
		exitCode = 1
		s.emit(Event{
			Type:     EventOutput,
			Category: OutputStderr,
			Output:   "execution faulted: " + s.engine.FaultMessage() + "\n",
		})
	} else {
		for i, it := range s.engine.ResultStack() {
			s.emit(Event{
				Type:     EventOutput,
				Category: OutputStdout,
				Output:   fmt.Sprintf("result %d: %s\n", i, s.renderResult(i, it)),
			})
		}
	}
	s.annotateTerminal(span, state)
	s.logger.WithField("state", state).Info("execution ended")
	s.emit(Event{Type: EventExited, ExitCode: exitCode})
	s.emit(Event{Type: EventTerminated})
}

// renderResult renders a result item with the cast configured for its
// position, if any.
func (s *Session) renderResult(i int, it neovm.StackItem) string {
	if i < len(s.returnTypes) && s.returnTypes[i] != "" {
		v, err := ApplyCast(s.returnTypes[i], it)
		if err == nil {
			return v.Value
		}
		s.logger.WithError(err).WithField("index", i).Warn("return type cast failed")
	}
	return FormatItem(it)
}

// Finished reports whether the session has reported the end of execution.
func (s *Session) Finished() bool {
	return s.finished
}

func (s *Session) flushOutput() {
	for _, line := range s.engine.DrainOutput() {
		s.emit(Event{Type: EventOutput, Category: OutputConsole, Output: line + "\n"})
	}
}

func (s *Session) emit(evt Event) {
	if s.onEvent != nil {
		s.onEvent(evt)
	}
}

// ExceptionInfo describes the exception behind the current stop.
type ExceptionInfo struct {
	ExceptionID string
	Description string
	BreakMode   string
}

// ExceptionInfo returns the fault or the last thrown exception.
func (s *Session) ExceptionInfo() (ExceptionInfo, bool) {
	if s.engine.State() == neovm.Faulted {
		return ExceptionInfo{
			ExceptionID: "FAULT",
			Description: s.engine.FaultMessage(),
			BreakMode:   "unhandled",
		}, true
	}
	ex := s.engine.LastException()
	if ex == nil {
		return ExceptionInfo{}, false
	}
	return ExceptionInfo{
		ExceptionID: ItemTypeName(ex),
		Description: neovm.ExceptionMessage(ex),
		BreakMode:   "always",
	}, true
}
