// Copyright © 2018 The ELPS authors

// Package debugrepl provides an interactive CLI debug REPL over a
// debugger.Session. Input is read with readline; anything that is not a
// debug command is evaluated as an expression in the selected frame.
package debugrepl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ergochat/readline"
	"github.com/neo-project/neo-debugger-sub000/debugger"
	"github.com/neo-project/neo-debugger-sub000/neovm"
)

// Option configures the debug REPL.
type Option func(*debugHandler)

// WithStdin sets the reader for REPL input. This is primarily useful for
// testing, where a pipe replaces the terminal.
func WithStdin(r io.ReadCloser) Option {
	return func(h *debugHandler) {
		h.stdin = r
	}
}

// WithStderr sets the writer for debug output (prompts, status, etc.).
func WithStderr(w io.Writer) Option {
	return func(h *debugHandler) {
		h.stderr = w
	}
}

// WithSourceRoot sets a directory searched for source files that cannot
// be opened at the path recorded in the debug info.
func WithSourceRoot(dir string) Option {
	return func(h *debugHandler) {
		h.sourceRoot = dir
	}
}

// WithHistoryFile overrides the readline history file. An empty path
// disables history.
func WithHistoryFile(path string) Option {
	return func(h *debugHandler) {
		h.historyFile = path
	}
}

// Run starts an interactive debug REPL for a launched session. The session
// starts paused on entry. Run returns when the user quits or input ends;
// closing the session is left to the caller.
func Run(session *debugger.Session, opts ...Option) error {
	h := newDebugHandler(session)
	h.historyFile = historyPath()
	for _, opt := range opts {
		opt(h)
	}
	session.SetEventCallback(h.onEvent)

	rlCfg := &readline.Config{
		Stdout:            h.stderr,
		Stderr:            h.stderr,
		Prompt:            h.prompt(),
		HistoryFile:       h.historyFile,
		HistorySearchFold: true,
		AutoComplete:      &debugCompleter{session: session},
	}
	if h.stdin != nil {
		rlCfg.Stdin = h.stdin
	}
	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return err
	}
	defer rl.Close() //nolint:errcheck // best-effort cleanup

	if err := session.Start(true); err != nil {
		return err
	}

	for !h.quit {
		rl.SetPrompt(h.prompt())
		line, err := rl.ReadSlice()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			break
		}
		if !h.handleLine(string(line)) {
			h.evaluate(strings.TrimSpace(string(line)))
		}
	}
	return nil
}

// debugHandler holds state for the debug REPL session. Session operations
// run to completion on the REPL goroutine, so no locking is needed.
type debugHandler struct {
	session     *debugger.Session
	sourceRoot  string
	historyFile string
	stdin       io.ReadCloser
	stderr      io.Writer

	frame   int // selected frame ID
	exited  bool
	quit    bool
	lastCmd string

	breakpoints []*replBreakpoint
	nextBP      int
}

// replBreakpoint is a breakpoint as the user numbered it. Session
// breakpoint IDs change whenever a source's set is replaced.
type replBreakpoint struct {
	ID       int
	Source   string
	Line     int
	Verified bool
	Message  string
}

func newDebugHandler(session *debugger.Session) *debugHandler {
	return &debugHandler{
		session: session,
		stderr:  os.Stderr,
		frame:   1,
	}
}

// onEvent is the session event callback.
func (h *debugHandler) onEvent(evt debugger.Event) {
	switch evt.Type {
	case debugger.EventStopped:
		h.frame = 1
		h.showStopBanner(evt.Reason)
	case debugger.EventOutput:
		fmt.Fprint(h.stderr, evt.Output) //nolint:errcheck
		if !strings.HasSuffix(evt.Output, "\n") {
			fmt.Fprintln(h.stderr) //nolint:errcheck
		}
	case debugger.EventExited:
		fmt.Fprintf(h.stderr, "program exited with code %d\n", evt.ExitCode) //nolint:errcheck
	case debugger.EventTerminated:
		h.exited = true
	}
}

// prompt returns the current prompt string.
func (h *debugHandler) prompt() string {
	if h.exited {
		return "(dbg:exited) "
	}
	return "(dbg) "
}

// handleLine dispatches debug commands. Returns true if the line was consumed.
func (h *debugHandler) handleLine(line string) bool {
	line = strings.TrimSpace(line)

	// Empty input repeats last command (GDB convention).
	if line == "" {
		line = h.lastCmd
		if line == "" {
			return true
		}
	}

	parts := strings.Fields(line)
	cmd := parts[0]
	args := parts[1:]

	c, ok := lookupCommand(cmd)
	if !ok {
		return false
	}
	h.lastCmd = line
	c.run(h, args)
	return true
}

// command is one REPL command.
type command struct {
	name  string
	alias string
	usage string
	help  string
	run   func(h *debugHandler, args []string)
}

// commands lists the REPL commands in help order.
var commands []command

func init() {
	commands = []command{
		{"continue", "c", "", "Resume execution until a breakpoint or the end", func(h *debugHandler, _ []string) { h.resume(h.session.Continue) }},
		{"step", "s", "", "Step into the next sequence point", func(h *debugHandler, _ []string) { h.resume(h.session.StepIn) }},
		{"next", "n", "", "Step over calls to the next sequence point", func(h *debugHandler, _ []string) { h.resume(h.session.StepOver) }},
		{"out", "o", "", "Step out of the current method", func(h *debugHandler, _ []string) { h.resume(h.session.StepOut) }},
		{"back", "bk", "", "Step backwards (trace files only)", func(h *debugHandler, _ []string) { h.resume(h.session.StepBack) }},
		{"rcontinue", "rc", "", "Run backwards to a breakpoint or the start (trace files only)", func(h *debugHandler, _ []string) { h.resume(h.session.ReverseContinue) }},
		{"break", "b", "[FILE:]LINE", "Set a breakpoint; FILE may be a script hash to break on a disassembly line", (*debugHandler).doBreak},
		{"delete", "d", "N", "Remove breakpoint by ID", (*debugHandler).doDelete},
		{"breakpoints", "bl", "", "List all breakpoints", func(h *debugHandler, _ []string) { showBreakpoints(h.stderr, h.breakpoints) }},
		{"backtrace", "bt", "", "Show the invocation stack", (*debugHandler).doBacktrace},
		{"frame", "f", "N", "Select the frame used by print, locals and where", (*debugHandler).doFrame},
		{"locals", "l", "", "Show arguments, locals and static fields", func(h *debugHandler, _ []string) { h.showScopes("Arguments", "Locals", "Statics") }},
		{"stack", "st", "", "Show the evaluation stack", func(h *debugHandler, _ []string) { h.showScopes("Evaluation Stack") }},
		{"storage", "sto", "", "Show contract storage", func(h *debugHandler, _ []string) { h.showScopes("Storage") }},
		{"print", "p", "EXPR", "Evaluate and print an expression", (*debugHandler).doPrint},
		{"where", "w", "", "Show the current location", func(h *debugHandler, _ []string) { h.doWhere() }},
		{"view", "v", "MODE", "Switch the view: source, disassembly or toggle", (*debugHandler).doView},
		{"exception", "ex", "", "Show the current exception", func(h *debugHandler, _ []string) { h.doException() }},
		{"quit", "q", "", "End debug session", func(h *debugHandler, _ []string) { h.doQuit() }},
		{"help", "h", "", "Show this help", func(h *debugHandler, _ []string) { showHelp(h.stderr) }},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name || c.alias == name {
			return c, true
		}
	}
	return command{}, false
}

// resume runs a session operation unless execution has ended.
func (h *debugHandler) resume(op func() error) {
	if h.exited {
		fmt.Fprintln(h.stderr, "program has exited") //nolint:errcheck
		return
	}
	if err := op(); err != nil {
		fmt.Fprintf(h.stderr, "error: %v\n", err) //nolint:errcheck
	}
}

// paused reports whether there are frames to inspect, complaining when
// there are not.
func (h *debugHandler) paused() bool {
	if h.exited || h.session.State() != neovm.Running {
		fmt.Fprintln(h.stderr, "not paused") //nolint:errcheck
		return false
	}
	return true
}

// showStopBanner prints the stop reason and source context.
func (h *debugHandler) showStopBanner(reason debugger.StopReason) {
	text := string(reason)
	if reason == debugger.StopException {
		if info, ok := h.session.ExceptionInfo(); ok {
			text += ": " + info.Description
		}
	}
	fmt.Fprintf(h.stderr, "stopped: %s\n", text) //nolint:errcheck
	h.showLocation(h.frame)
}

func (h *debugHandler) doBreak(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(h.stderr, "usage: break [FILE:]LINE") //nolint:errcheck
		return
	}
	loc := args[0]
	file := ""
	if i := strings.LastIndex(loc, ":"); i >= 0 {
		file, loc = loc[:i], loc[i+1:]
	}
	line, err := strconv.Atoi(loc)
	if err != nil || line < 1 {
		fmt.Fprintf(h.stderr, "invalid line number: %s\n", loc) //nolint:errcheck
		return
	}
	source, err := h.resolveSource(file)
	if err != nil {
		fmt.Fprintln(h.stderr, err) //nolint:errcheck
		return
	}

	h.nextBP++
	bp := &replBreakpoint{ID: h.nextBP, Source: source, Line: line}
	h.breakpoints = append(h.breakpoints, bp)
	h.applyBreakpoints(source)
	if bp.Verified {
		fmt.Fprintf(h.stderr, "breakpoint %d set at %s:%d\n", bp.ID, source, line) //nolint:errcheck
	} else {
		fmt.Fprintf(h.stderr, "breakpoint %d pending at %s:%d: %s\n", bp.ID, source, line, bp.Message) //nolint:errcheck
	}
}

// resolveSource maps the FILE of a break command to a breakpoint source:
// a script hash, or a debug info document matched by path or base name.
// Without FILE the selected frame's source is used.
func (h *debugHandler) resolveSource(file string) (string, error) {
	if file == "" {
		frames, _ := h.session.StackFrames(h.frame-1, 1)
		if len(frames) == 0 {
			return "", errors.New("no current source; use FILE:LINE")
		}
		if frames[0].Source != "" {
			return frames[0].Source, nil
		}
		return frames[0].ScriptHash.String(), nil
	}
	if hash, err := neovm.ParseHash160(file); err == nil {
		return hash.String(), nil
	}
	var matches []string
	for _, doc := range h.session.Documents() {
		if doc == file {
			return doc, nil
		}
		if filepath.Base(filepath.FromSlash(strings.ReplaceAll(doc, "\\", "/"))) == file {
			matches = append(matches, doc)
		}
	}
	switch len(matches) {
	case 0:
		return file, nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%s is ambiguous: %s", file, strings.Join(matches, ", "))
	}
}

// applyBreakpoints replaces the session breakpoints of source with the
// REPL's and records how each resolved.
func (h *debugHandler) applyBreakpoints(source string) {
	var bps []*replBreakpoint
	var reqs []debugger.SourceBreakpoint
	for _, bp := range h.breakpoints {
		if bp.Source == source {
			bps = append(bps, bp)
			reqs = append(reqs, debugger.SourceBreakpoint{Line: bp.Line})
		}
	}
	resolved := h.session.Breakpoints().SetBreakpoints(source, reqs)
	for i, r := range resolved {
		bps[i].Verified = r.Verified
		bps[i].Message = r.Message
	}
}

func (h *debugHandler) doDelete(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(h.stderr, "usage: delete <breakpoint-id>") //nolint:errcheck
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(h.stderr, "invalid breakpoint id: %s\n", args[0]) //nolint:errcheck
		return
	}
	for i, bp := range h.breakpoints {
		if bp.ID == id {
			h.breakpoints = append(h.breakpoints[:i], h.breakpoints[i+1:]...)
			h.applyBreakpoints(bp.Source)
			fmt.Fprintf(h.stderr, "breakpoint %d removed\n", id) //nolint:errcheck
			return
		}
	}
	fmt.Fprintf(h.stderr, "no breakpoint with id %d\n", id) //nolint:errcheck
}

func (h *debugHandler) doBacktrace(_ []string) {
	if !h.paused() {
		return
	}
	frames, _ := h.session.StackFrames(0, 0)
	showBacktrace(h.stderr, frames, h.frame)
}

func (h *debugHandler) doFrame(args []string) {
	if !h.paused() {
		return
	}
	if len(args) == 0 {
		fmt.Fprintf(h.stderr, "frame %d\n", h.frame) //nolint:errcheck
		return
	}
	id, err := strconv.Atoi(args[0])
	_, total := h.session.StackFrames(0, 0)
	if err != nil || id < 1 || id > total {
		fmt.Fprintf(h.stderr, "invalid frame: %s (%d available)\n", args[0], total) //nolint:errcheck
		return
	}
	h.frame = id
	h.showLocation(id)
}

// showScopes prints the variables of the named scopes of the selected
// frame.
func (h *debugHandler) showScopes(names ...string) {
	if !h.paused() {
		return
	}
	for _, sc := range h.session.Scopes(h.frame) {
		if !containsString(names, sc.Name) {
			continue
		}
		vars, err := h.session.Variables(sc.VariablesReference)
		if err != nil {
			fmt.Fprintf(h.stderr, "error: %v\n", err) //nolint:errcheck
			continue
		}
		fmt.Fprintf(h.stderr, "%s:\n", sc.Name) //nolint:errcheck
		showVariables(h.stderr, vars, "  ")
	}
}

func (h *debugHandler) doPrint(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(h.stderr, "usage: print <expression>") //nolint:errcheck
		return
	}
	h.evaluate(strings.Join(args, " "))
}

// evaluate prints an expression's value in the selected frame, expanding
// compound results one level.
func (h *debugHandler) evaluate(expr string) {
	if !h.paused() {
		return
	}
	res := h.session.Evaluate(expr, h.frame)
	if !res.Success {
		fmt.Fprintf(h.stderr, "error: %s\n", res.Message) //nolint:errcheck
		return
	}
	fmt.Fprintln(h.stderr, res.Result) //nolint:errcheck
	if res.VariablesReference == 0 {
		return
	}
	if vars, err := h.session.Variables(res.VariablesReference); err == nil {
		showVariables(h.stderr, vars, "  ")
	}
}

func (h *debugHandler) doWhere() {
	if h.exited || h.session.State() != neovm.Running {
		fmt.Fprintln(h.stderr, "no source location") //nolint:errcheck
		return
	}
	h.showLocation(h.frame)
}

// showLocation prints the source or disassembly around a frame.
func (h *debugHandler) showLocation(frameID int) {
	frames, _ := h.session.StackFrames(frameID-1, 1)
	if len(frames) == 0 {
		return
	}
	f := frames[0]
	switch {
	case f.Source != "":
		showSourceContext(h.stderr, f.Source, f.Line, h.sourceRoot)
	case f.SourceReference > 0:
		if dis, ok := h.session.Disassembler().Lookup(f.SourceReference); ok {
			showListingContext(h.stderr, dis.Source, f.Line)
		}
	}
}

func (h *debugHandler) doView(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(h.stderr, "view: %s\n", h.session.DebugView()) //nolint:errcheck
		return
	}
	if err := h.session.SetDebugView(args[0]); err != nil {
		fmt.Fprintf(h.stderr, "error: %v\n", err) //nolint:errcheck
		return
	}
	fmt.Fprintf(h.stderr, "view: %s\n", h.session.DebugView()) //nolint:errcheck
	if !h.exited && h.session.State() == neovm.Running {
		h.showLocation(h.frame)
	}
}

func (h *debugHandler) doException() {
	info, ok := h.session.ExceptionInfo()
	if !ok {
		fmt.Fprintln(h.stderr, "no exception") //nolint:errcheck
		return
	}
	fmt.Fprintf(h.stderr, "%s (%s): %s\n", info.ExceptionID, info.BreakMode, info.Description) //nolint:errcheck
}

func (h *debugHandler) doQuit() {
	fmt.Fprintln(h.stderr, "quitting debug session") //nolint:errcheck
	h.quit = true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".neodbg_history")
}
