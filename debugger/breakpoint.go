// Copyright © 2018 The ELPS authors

package debugger

import (
	"fmt"
	"sync"

	"github.com/neo-project/neo-debugger-sub000/debuginfo"
	"github.com/neo-project/neo-debugger-sub000/neovm"
)

// SourceBreakpoint is a breakpoint location requested by the editor.
type SourceBreakpoint struct {
	Line   int
	Column int
}

// Breakpoint is the resolution of one requested location.
type Breakpoint struct {
	ID       int
	Source   string
	Line     int
	Column   int
	Verified bool
	Address  int // -1 when unverified
	Message  string
}

// ExceptionBreakMode controls when the session pauses on exceptions.
type ExceptionBreakMode int

const (
	// ExceptionBreakNever disables exception breakpoints.
	ExceptionBreakNever ExceptionBreakMode = iota
	// ExceptionBreakCaught pauses when a TRY block catches an exception.
	ExceptionBreakCaught
)

// ExceptionFilterCaught is the exception filter id of ExceptionBreakCaught.
const ExceptionFilterCaught = "caught"

// BreakpointManager keeps the breakpoint requests of every source and
// resolves them to instruction addresses per script. Sources are either a
// script hash, addressing lines of that script's disassembly, or a source
// file path, addressed through debug info sequence points.
//
// The resolved address sets are a cache. Any change to any source drops
// the whole cache, since one source may contribute addresses to several
// scripts. All methods are safe for concurrent use.
type BreakpointManager struct {
	disassembler *Disassembler

	mu             sync.Mutex
	infos          []*debuginfo.DebugInfo
	requests       map[string][]SourceBreakpoint
	resolved       map[neovm.Hash160]map[int]struct{}
	nextID         int
	exceptionBreak ExceptionBreakMode
}

// NewBreakpointManager returns a manager resolving disassembly lines with
// dis and source lines with infos.
func NewBreakpointManager(dis *Disassembler, infos ...*debuginfo.DebugInfo) *BreakpointManager {
	m := &BreakpointManager{
		disassembler: dis,
		requests:     make(map[string][]SourceBreakpoint),
		resolved:     make(map[neovm.Hash160]map[int]struct{}),
	}
	for _, info := range infos {
		if info != nil {
			m.infos = append(m.infos, info)
		}
	}
	return m
}

// SetBreakpoints replaces every breakpoint of source and reports how each
// requested line resolved. Lines without an instruction come back
// unverified.
func (m *BreakpointManager) SetBreakpoints(source string, reqs []SourceBreakpoint) []Breakpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(reqs) == 0 {
		delete(m.requests, source)
	} else {
		m.requests[source] = append([]SourceBreakpoint(nil), reqs...)
	}
	m.resolved = make(map[neovm.Hash160]map[int]struct{})

	out := make([]Breakpoint, len(reqs))
	for i, req := range reqs {
		m.nextID++
		bp := Breakpoint{
			ID:      m.nextID,
			Source:  source,
			Line:    req.Line,
			Column:  req.Column,
			Address: -1,
		}
		if addr, ok := m.resolveAny(source, req); ok {
			bp.Verified = true
			bp.Address = addr
		} else {
			bp.Message = fmt.Sprintf("no instruction at line %d", req.Line)
		}
		out[i] = bp
	}
	return out
}

// GetEffectiveAddresses returns the instruction addresses of script hash
// that carry a breakpoint.
func (m *BreakpointManager) GetEffectiveAddresses(hash neovm.Hash160) map[int]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addrs, ok := m.resolved[hash]; ok {
		return addrs
	}
	addrs := make(map[int]struct{})
	for source, reqs := range m.requests {
		for _, req := range reqs {
			if addr, ok := m.resolve(hash, source, req); ok {
				addrs[addr] = struct{}{}
			}
		}
	}
	m.resolved[hash] = addrs
	return addrs
}

// Has reports whether address of script hash carries a breakpoint.
func (m *BreakpointManager) Has(hash neovm.Hash160, address int) bool {
	_, ok := m.GetEffectiveAddresses(hash)[address]
	return ok
}

// resolveAny maps one request to an address of whichever script it
// belongs to. Callers hold mu.
func (m *BreakpointManager) resolveAny(source string, req SourceBreakpoint) (int, bool) {
	if hash, err := neovm.ParseHash160(source); err == nil {
		return m.resolve(hash, source, req)
	}
	for _, info := range m.infos {
		if addr, ok := resolveSourceLine(info, source, req); ok {
			return addr, true
		}
	}
	return 0, false
}

// resolve maps one request to an address of script hash. Callers hold mu.
func (m *BreakpointManager) resolve(hash neovm.Hash160, source string, req SourceBreakpoint) (int, bool) {
	if h, err := neovm.ParseHash160(source); err == nil {
		if h != hash {
			return 0, false
		}
		dis, ok := m.disassembler.ByHash(hash)
		if !ok {
			return 0, false
		}
		addr, ok := dis.LineToAddress[req.Line]
		return addr, ok
	}
	for _, info := range m.infos {
		if info.Hash == hash {
			return resolveSourceLine(info, source, req)
		}
	}
	return 0, false
}

// resolveSourceLine finds the sequence point of path starting on the
// requested line, preferring an exact column match. Only sequence points
// inside the contract's methods count.
func resolveSourceLine(info *debuginfo.DebugInfo, path string, req SourceBreakpoint) (int, bool) {
	found := false
	addr := 0
	for _, sp := range info.SequencePointsForDocument(path) {
		if sp.Start.Line != req.Line {
			continue
		}
		if _, ok := info.MethodAt(sp.Address); !ok {
			continue
		}
		if req.Column > 0 && sp.Start.Column == req.Column {
			return sp.Address, true
		}
		if !found || sp.Address < addr {
			addr = sp.Address
			found = true
		}
	}
	return addr, found
}

// SetExceptionFilters selects the exception filters that pause execution.
func (m *BreakpointManager) SetExceptionFilters(filters []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exceptionBreak = ExceptionBreakNever
	for _, f := range filters {
		if f == ExceptionFilterCaught {
			m.exceptionBreak = ExceptionBreakCaught
		}
	}
}

// ExceptionBreak returns the current exception break mode.
func (m *BreakpointManager) ExceptionBreak() ExceptionBreakMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exceptionBreak
}
