// Copyright © 2018 The ELPS authors

package debugrepl

import (
	"sort"
	"strings"

	"github.com/neo-project/neo-debugger-sub000/debugger"
)

// viewModes are the arguments of the view command.
var viewModes = []string{"disassembly", "source", "toggle"}

// debugCompleter implements readline.AutoCompleter for the debug REPL.
// The first word completes to command names; later words complete to the
// names visible in the top frame.
type debugCompleter struct {
	session *debugger.Session
}

func (c *debugCompleter) Do(line []rune, pos int) ([][]rune, int) {
	// Extract prefix (word being typed).
	start := pos
	for start > 0 {
		ch := line[start-1]
		if ch == ' ' || ch == '\t' || ch == '(' || ch == ')' {
			break
		}
		start--
	}
	prefix := string(line[start:pos])
	if prefix == "" {
		return nil, 0
	}

	before := strings.Fields(string(line[:start]))
	var pool []string
	switch {
	case len(before) == 0:
		for _, cmd := range commands {
			pool = append(pool, cmd.name)
		}
		pool = append(pool, c.names()...)
	case before[0] == "view" || before[0] == "v":
		pool = viewModes
	default:
		pool = c.names()
	}

	seen := make(map[string]bool)
	var candidates []string
	for _, cand := range pool {
		if strings.HasPrefix(cand, prefix) && !seen[cand] {
			seen[cand] = true
			candidates = append(candidates, cand)
		}
	}
	sort.Strings(candidates)

	result := make([][]rune, 0, len(candidates))
	for _, cand := range candidates {
		result = append(result, []rune(cand[len(prefix):]))
	}
	return result, len(prefix)
}

// names returns the argument, local and static field names of the top
// frame's method.
func (c *debugCompleter) names() []string {
	if c.session == nil {
		return nil
	}
	frames, _ := c.session.StackFrames(0, 1)
	if len(frames) == 0 {
		return nil
	}
	info, ok := c.session.DebugInfo(frames[0].ScriptHash)
	if !ok {
		return nil
	}
	var names []string
	if m, ok := info.MethodAt(frames[0].Address); ok {
		for _, v := range m.Parameters {
			names = append(names, v.Name)
		}
		for _, v := range m.Variables {
			names = append(names, v.Name)
		}
	}
	for _, v := range info.StaticVariables {
		names = append(names, v.Name)
	}
	return names
}
