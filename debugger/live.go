// Copyright © 2018 The ELPS authors

package debugger

import (
	"fmt"
	"strings"

	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/neo-project/neo-debugger-sub000/storage"
)

// LiveEngine runs contracts on the reference VM.
type LiveEngine struct {
	vm      *neovm.VM
	store   *storage.MemoryStore
	pending []string
}

var _ Engine = (*LiveEngine)(nil)

// NewLiveEngine returns an engine whose interop services see host and
// store. Log and Notify calls are collected as output.
func NewLiveEngine(host neovm.Host, store *storage.MemoryStore) *LiveEngine {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	e := &LiveEngine{store: store}
	host.Storage = store
	host.OnLog = e.onLog
	host.OnNotify = e.onNotify
	e.vm = neovm.NewVM(&host)
	return e
}

// Load pushes a context executing script from position pos with args.
func (e *LiveEngine) Load(script *neovm.Script, pos int, args ...neovm.StackItem) {
	e.vm.LoadScript(script, pos, args...)
}

// Store returns the storage backing the engine.
func (e *LiveEngine) Store() *storage.MemoryStore {
	return e.store
}

func (e *LiveEngine) onLog(contract neovm.Hash160, message string) {
	e.pending = append(e.pending, fmt.Sprintf("Runtime.Log: %s %s", contract, message))
}

func (e *LiveEngine) onNotify(contract neovm.Hash160, event string, state *neovm.Array) {
	parts := make([]string, len(state.Items))
	for i, it := range state.Items {
		parts[i] = FormatItem(it)
	}
	e.pending = append(e.pending, fmt.Sprintf("Runtime.Notify: %s %s [%s]", contract, event, strings.Join(parts, ", ")))
}

func (e *LiveEngine) ExecuteNext() {
	e.vm.Step()
}

func (e *LiveEngine) State() neovm.State {
	return e.vm.State()
}

func (e *LiveEngine) Contexts() []ExecutionContext {
	ctxs := e.vm.Contexts()
	out := make([]ExecutionContext, len(ctxs))
	for i, c := range ctxs {
		out[i] = c
	}
	return out
}

func (e *LiveEngine) ResultStack() []neovm.StackItem {
	return e.vm.ResultStack()
}

func (e *LiveEngine) FaultMessage() string {
	if err := e.vm.FaultError(); err != nil {
		return err.Error()
	}
	return ""
}

func (e *LiveEngine) ExceptionCaught() bool {
	return e.vm.ExceptionCaught()
}

func (e *LiveEngine) LastException() neovm.StackItem {
	return e.vm.LastException()
}

func (e *LiveEngine) StorageEntries(contract neovm.Hash160) []storage.Entry {
	return e.store.Entries(contract)
}

func (e *LiveEngine) DrainOutput() []string {
	out := e.pending
	e.pending = nil
	return out
}
