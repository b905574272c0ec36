// Copyright © 2018 The ELPS authors

// Package debugger implements the NeoVM debug session engine. It provides
// disassembly, breakpoint resolution, stepping, frame and variable
// projection and expression evaluation without any protocol dependencies.
//
// A Session drives an Engine one instruction at a time. Engines come in two
// flavours: LiveEngine runs a contract on the reference VM, TraceEngine
// replays a recorded trace and can also run backwards. External consumers
// (such as the DAP server) observe the session through an event callback.
//
// Concurrency model: a Session is not safe for concurrent use. Every
// operation runs to completion on the calling goroutine and events are
// delivered synchronously before the operation returns.
package debugger

import (
	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/neo-project/neo-debugger-sub000/storage"
)

// EventType identifies the kind of debug event.
type EventType int

const (
	// EventStopped indicates execution has paused (breakpoint, step, exception).
	EventStopped EventType = iota
	// EventOutput indicates the contract or the VM produced output.
	EventOutput
	// EventExited indicates the program has finished.
	EventExited
	// EventTerminated indicates the session is over.
	EventTerminated
)

// StopReason describes why execution paused.
type StopReason string

const (
	StopBreakpoint StopReason = "breakpoint"
	StopStep       StopReason = "step"
	StopException  StopReason = "exception"
	StopEntry      StopReason = "entry"
)

// OutputCategory mirrors the DAP output event categories used by the
// session.
type OutputCategory string

const (
	OutputConsole OutputCategory = "console"
	OutputStdout  OutputCategory = "stdout"
	OutputStderr  OutputCategory = "stderr"
)

// Event is sent to the event callback when the session state changes.
type Event struct {
	Type     EventType
	Reason   StopReason     // set for EventStopped
	ExitCode int            // set for EventExited
	Output   string         // set for EventOutput
	Category OutputCategory // set for EventOutput
}

// EventCallback is called when the session state changes. It runs on the
// goroutine driving the session.
type EventCallback func(Event)

// ExecutionContext is the read-only view of one invocation stack frame.
// *neovm.Context satisfies it.
type ExecutionContext interface {
	Script() *neovm.Script
	ScriptHash() neovm.Hash160
	IP() int
	EvaluationStack() []neovm.StackItem
	Arguments() []neovm.StackItem
	Locals() []neovm.StackItem
	StaticFields() []neovm.StackItem
}

var _ ExecutionContext = (*neovm.Context)(nil)

// Engine is the execution engine a Session drives. Implementations only
// move forward through ExecuteNext; everything else is observation.
type Engine interface {
	// ExecuteNext executes a single instruction.
	ExecuteNext()
	// State returns the current execution state.
	State() neovm.State
	// Contexts returns the invocation stack, top first.
	Contexts() []ExecutionContext
	// ResultStack returns the items left once the engine halts, top first.
	ResultStack() []neovm.StackItem
	// FaultMessage describes why the engine faulted.
	FaultMessage() string
	// ExceptionCaught reports whether the last instruction threw an
	// exception that a TRY block caught.
	ExceptionCaught() bool
	// LastException returns the most recently thrown exception, or nil.
	LastException() neovm.StackItem
	// StorageEntries returns the storage of a contract ordered by key.
	StorageEntries(contract neovm.Hash160) []storage.Entry
	// DrainOutput returns and forgets the output produced since the last
	// call.
	DrainOutput() []string
}

// ReversibleEngine is an Engine that can also undo instructions.
type ReversibleEngine interface {
	Engine
	// StepBack undoes the last executed instruction. It returns false when
	// the engine is already at the start of execution.
	StepBack() bool
}
