// Copyright © 2018 The ELPS authors

package debugrepl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/padding"
	"github.com/muesli/reflow/wordwrap"
	"github.com/neo-project/neo-debugger-sub000/debugger"
)

const sourceContextLines = 5

const (
	helpUsageWidth = 26
	helpWidth      = 78
)

// showSourceContext prints a window of source lines around the given line,
// with a --> marker on the current line.
func showSourceContext(w io.Writer, file string, line int, sourceRoot string) {
	path := resolveSourceFile(file, sourceRoot)
	f, err := os.Open(path) //#nosec G304
	if err != nil {
		fmt.Fprintf(w, "  at %s:%d (source not available)\n", file, line) //nolint:errcheck
		return
	}
	defer f.Close() //nolint:errcheck

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(lines) < line+sourceContextLines {
		lines = append(lines, scanner.Text())
	}
	writeWindow(w, lines, line)
}

// showListingContext prints the disassembly lines around line.
func showListingContext(w io.Writer, listing string, line int) {
	writeWindow(w, strings.Split(strings.TrimSuffix(listing, "\n"), "\n"), line)
}

func writeWindow(w io.Writer, lines []string, line int) {
	start := line - sourceContextLines
	if start < 1 {
		start = 1
	}
	end := line + sourceContextLines
	if end > len(lines) {
		end = len(lines)
	}
	for n := start; n <= end; n++ {
		marker := "   "
		if n == line {
			marker = "-->"
		}
		fmt.Fprintf(w, "%s %4d  %s\n", marker, n, lines[n-1]) //nolint:errcheck
	}
}

// showBacktrace prints the invocation stack, most recent first, marking
// the selected frame.
func showBacktrace(w io.Writer, frames []debugger.StackFrame, selected int) {
	if len(frames) == 0 {
		fmt.Fprintln(w, "  (empty stack)") //nolint:errcheck
		return
	}
	for _, f := range frames {
		marker := " "
		if f.ID == selected {
			marker = "*"
		}
		loc := fmt.Sprintf("%s:%d", f.ScriptHash, f.Line)
		if f.Source != "" {
			loc = fmt.Sprintf("%s:%d:%d", f.Source, f.Line, f.Column)
		}
		fmt.Fprintf(w, "%s #%d  %s  at %s  [ip %d]\n", marker, f.ID, f.Name, loc, f.Address) //nolint:errcheck
	}
}

// showVariables prints variables in a tabular format.
func showVariables(w io.Writer, vars []debugger.Variable, prefix string) {
	if len(vars) == 0 {
		fmt.Fprintf(w, "%s(none)\n", prefix) //nolint:errcheck
		return
	}
	for _, v := range vars {
		fmt.Fprintf(w, "%s%-20s = %s", prefix, v.Name, v.Value) //nolint:errcheck
		if v.Type != "" {
			fmt.Fprintf(w, "  (%s)", v.Type) //nolint:errcheck
		}
		fmt.Fprintln(w) //nolint:errcheck
	}
}

// showBreakpoints prints the REPL breakpoints in ID order.
func showBreakpoints(w io.Writer, bps []*replBreakpoint) {
	if len(bps) == 0 {
		fmt.Fprintln(w, "  (no breakpoints)") //nolint:errcheck
		return
	}
	for _, bp := range bps {
		status := "verified"
		if !bp.Verified {
			status = "pending"
			if bp.Message != "" {
				status += " (" + bp.Message + ")"
			}
		}
		fmt.Fprintf(w, "  #%d  %s:%d  %s\n", bp.ID, bp.Source, bp.Line, status) //nolint:errcheck
	}
}

func showHelp(w io.Writer) {
	fmt.Fprintln(w, "Debug commands:") //nolint:errcheck
	continuation := strings.Repeat(" ", helpUsageWidth)
	for _, c := range commands {
		usage := fmt.Sprintf("  %s (%s)", c.name, c.alias)
		if c.usage != "" {
			usage += " " + c.usage
		}
		text := strings.Split(wordwrap.String(c.help, helpWidth-helpUsageWidth), "\n")
		if len(usage) >= helpUsageWidth {
			fmt.Fprintln(w, usage) //nolint:errcheck
			usage = ""
		}
		fmt.Fprintf(w, "%s%s\n", padding.String(usage, helpUsageWidth), text[0]) //nolint:errcheck
		for _, l := range text[1:] {
			fmt.Fprintf(w, "%s%s\n", continuation, l) //nolint:errcheck
		}
	}
	footer := "Any other input is evaluated as an expression in the selected frame: " +
		"a variable name, #arg0, #local1, #static0, #eval0 or #result0, optionally " +
		"followed by .field or [index] and prefixed by a cast such as (string) or (hex). " +
		"Empty input repeats the last command."
	fmt.Fprintf(w, "\n%s\n", indent.String(wordwrap.String(footer, helpWidth-2), 2)) //nolint:errcheck
}

// resolveSourceFile attempts to find the source file by trying the file
// path directly and then under the source root.
func resolveSourceFile(file, sourceRoot string) string {
	if _, err := os.Stat(file); err == nil {
		return file
	}
	if sourceRoot == "" {
		return file
	}
	joined := filepath.Join(sourceRoot, file)
	if _, err := os.Stat(joined); err == nil {
		return joined
	}
	base := filepath.Base(filepath.FromSlash(strings.ReplaceAll(file, "\\", "/")))
	joined = filepath.Join(sourceRoot, base)
	if _, err := os.Stat(joined); err == nil {
		return joined
	}
	return file
}
