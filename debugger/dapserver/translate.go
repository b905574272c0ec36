// Copyright © 2018 The ELPS authors

package dapserver

import (
	"strconv"

	"github.com/google/go-dap"
	"github.com/neo-project/neo-debugger-sub000/debugger"
)

// neoThreadID is the single thread ID used for the VM (single-threaded).
const neoThreadID = 1

// DisassemblyMimeType is the MIME type of disassembly source content.
const DisassemblyMimeType = "text/x-neovm.disassembly"

// DebugViewCommand is the custom request switching between source and
// disassembly views.
const DebugViewCommand = "debugview"

// DebugViewRequest is the custom "debugview" request.
type DebugViewRequest struct {
	dap.Request
	Arguments DebugViewArguments `json:"arguments"`
}

// DebugViewArguments names the view to show: "source", "disassembly" or
// "toggle".
type DebugViewArguments struct {
	DebugView string `json:"debugView"`
}

// translateStackFrames converts session frames to DAP StackFrame objects.
// Frames shown as disassembly reference their listing by source reference.
func translateStackFrames(frames []debugger.StackFrame) []dap.StackFrame {
	out := make([]dap.StackFrame, len(frames))
	for i, f := range frames {
		sf := dap.StackFrame{
			Id:                          f.ID,
			Name:                        f.Name,
			Line:                        f.Line,
			Column:                      f.Column,
			EndLine:                     f.EndLine,
			EndColumn:                   f.EndColumn,
			InstructionPointerReference: strconv.Itoa(f.Address),
		}
		switch {
		case f.Source != "":
			sf.Source = &dap.Source{
				Name: baseName(f.Source),
				Path: f.Source,
			}
		case f.SourceReference > 0:
			sf.Source = &dap.Source{
				Name:             f.ScriptHash.String(),
				SourceReference:  f.SourceReference,
				PresentationHint: "deemphasize",
			}
		}
		out[i] = sf
	}
	return out
}

// baseName returns the last element of a slash or backslash separated
// path.
func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func translateScopes(scopes []debugger.Scope) []dap.Scope {
	out := make([]dap.Scope, len(scopes))
	for i, sc := range scopes {
		out[i] = dap.Scope{
			Name:               sc.Name,
			VariablesReference: sc.VariablesReference,
			Expensive:          sc.Expensive,
			IndexedVariables:   sc.IndexedVariables,
			NamedVariables:     sc.NamedVariables,
		}
	}
	return out
}

func translateVariables(vars []debugger.Variable) []dap.Variable {
	out := make([]dap.Variable, len(vars))
	for i, v := range vars {
		out[i] = dap.Variable{
			Name:               v.Name,
			Value:              v.Value,
			Type:               v.Type,
			VariablesReference: v.VariablesReference,
			IndexedVariables:   v.IndexedVariables,
			NamedVariables:     v.NamedVariables,
		}
	}
	return out
}

// pageVariables applies the start/count window of a variables request.
func pageVariables(vars []dap.Variable, start, count int) []dap.Variable {
	if start > len(vars) {
		start = len(vars)
	}
	if start < 0 {
		start = 0
	}
	end := len(vars)
	if count > 0 && start+count < end {
		end = start + count
	}
	return vars[start:end]
}

// translateBreakpoints converts resolved breakpoints to DAP Breakpoint
// objects, echoing the requested source.
func translateBreakpoints(bps []debugger.Breakpoint, source dap.Source) []dap.Breakpoint {
	out := make([]dap.Breakpoint, len(bps))
	for i, bp := range bps {
		src := source
		out[i] = dap.Breakpoint{
			Id:       bp.ID,
			Verified: bp.Verified,
			Message:  bp.Message,
			Source:   &src,
			Line:     bp.Line,
			Column:   bp.Column,
		}
		if bp.Verified {
			out[i].InstructionReference = strconv.Itoa(bp.Address)
		}
	}
	return out
}

func translateSourceBreakpoints(reqs []dap.SourceBreakpoint) []debugger.SourceBreakpoint {
	out := make([]debugger.SourceBreakpoint, len(reqs))
	for i, r := range reqs {
		out[i] = debugger.SourceBreakpoint{Line: r.Line, Column: r.Column}
	}
	return out
}
