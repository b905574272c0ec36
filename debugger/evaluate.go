// Copyright © 2018 The ELPS authors

package debugger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/neo-project/neo-debugger-sub000/debuginfo"
	"github.com/neo-project/neo-debugger-sub000/neovm"
	parsec "github.com/prataprc/goparsec"
)

// EvaluateResult is the outcome of Session.Evaluate. A failed evaluation
// has Success false and a Message; it is never reported as an error.
type EvaluateResult struct {
	Success            bool
	Result             string
	Type               string
	VariablesReference int
	Message            string
}

func failedEvaluation(err error) EvaluateResult {
	return EvaluateResult{Message: err.Error()}
}

// baseKind is the slot family a base reference reads from.
type baseKind int

const (
	baseName baseKind = iota
	baseArg
	baseLocal
	baseStatic
	baseEval
	baseResult
)

var pseudoPrefixes = map[string]baseKind{
	"#arg":    baseArg,
	"#local":  baseLocal,
	"#static": baseStatic,
	"#eval":   baseEval,
	"#result": baseResult,
}

type baseRef struct {
	kind  baseKind
	name  string
	index int
}

// accessor is one suffix: a field name or an index.
type accessor struct {
	field string
	index int
}

func (a accessor) String() string {
	if a.field != "" {
		return "." + a.field
	}
	return fmt.Sprintf("[%d]", a.index)
}

type expression struct {
	cast      string
	base      baseRef
	accessors []accessor
}

var errInvalidExpression = errors.New("invalid expression")

// parseExpression parses a watch or hover expression.
//
//	expr   := cast? base suffix*
//	cast   := '(' castname ')'
//	base   := '#' ('arg'|'local'|'static'|'eval'|'result') digits | ident
//	suffix := '.' ident | '[' digits ']'
func parseExpression(text string) (*expression, error) {
	s := parsec.NewScanner([]byte(text))
	root, s := newExpressionParser()(s)
	if root == nil {
		return nil, fmt.Errorf("%w: %q", errInvalidExpression, text)
	}
	_, s = s.SkipWS()
	if !s.Endof() {
		b, _ := s.Match(`.{1,16}`)
		return nil, fmt.Errorf("%w: unexpected text %q", errInvalidExpression, b)
	}
	expr, ok := root.(*expression)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errInvalidExpression, text)
	}
	return expr, nil
}

func newExpressionParser() parsec.Parser {
	openP := parsec.Atom("(", "OPENP")
	closeP := parsec.Atom(")", "CLOSEP")
	openB := parsec.Atom("[", "OPENB")
	closeB := parsec.Atom("]", "CLOSEB")
	dot := parsec.Atom(".", "DOT")
	castName := parsec.Token(`[A-Za-z_][A-Za-z0-9_]*(\[\])?`, "CASTNAME")
	pseudo := parsec.Token(`#(arg|local|static|eval|result)[0-9]+`, "PSEUDO")
	ident := parsec.Token(`[A-Za-z_][A-Za-z0-9_]*`, "IDENT")
	digits := parsec.Token(`[0-9]+`, "DIGITS")

	cast := parsec.And(func(ns []parsec.ParsecNode) parsec.ParsecNode {
		return terminalValue(ns[1])
	}, openP, castName, closeP)
	base := parsec.OrdChoice(func(ns []parsec.ParsecNode) parsec.ParsecNode {
		return newBaseRef(ns[0])
	}, pseudo, ident)
	field := parsec.And(func(ns []parsec.ParsecNode) parsec.ParsecNode {
		return accessor{field: terminalValue(ns[1])}
	}, dot, ident)
	index := parsec.And(func(ns []parsec.ParsecNode) parsec.ParsecNode {
		n, err := strconv.Atoi(terminalValue(ns[1]))
		if err != nil {
			return nil
		}
		return accessor{index: n}
	}, openB, digits, closeB)
	suffix := parsec.OrdChoice(first, field, index)
	suffixes := parsec.Kleene(func(ns []parsec.ParsecNode) parsec.ParsecNode {
		out := make([]accessor, 0, len(ns))
		for _, n := range ns {
			if a, ok := n.(accessor); ok {
				out = append(out, a)
			}
		}
		return out
	}, suffix)
	return parsec.And(func(ns []parsec.ParsecNode) parsec.ParsecNode {
		expr := &expression{}
		if c, ok := ns[0].(string); ok {
			expr.cast = c
		}
		ref, ok := ns[1].(baseRef)
		if !ok {
			return nil
		}
		expr.base = ref
		expr.accessors, _ = ns[2].([]accessor)
		return expr
	}, parsec.Maybe(first, cast), base, suffixes)
}

func first(ns []parsec.ParsecNode) parsec.ParsecNode {
	if len(ns) == 0 {
		return nil
	}
	return ns[0]
}

func terminalValue(n parsec.ParsecNode) string {
	if t, ok := n.(*parsec.Terminal); ok {
		return t.Value
	}
	return ""
}

func newBaseRef(n parsec.ParsecNode) parsec.ParsecNode {
	t, ok := n.(*parsec.Terminal)
	if !ok {
		return nil
	}
	if t.Name == "IDENT" {
		return baseRef{kind: baseName, name: t.Value}
	}
	for prefix, kind := range pseudoPrefixes {
		if rest, ok := strings.CutPrefix(t.Value, prefix); ok {
			if idx, err := strconv.Atoi(rest); err == nil {
				return baseRef{kind: kind, index: idx}
			}
		}
	}
	return nil
}

// Evaluate resolves an expression against a frame. frameID 0 means the top
// frame. Any failure is reported in the result.
func (s *Session) Evaluate(text string, frameID int) (result EvaluateResult) {
	s.mustBeOpen()
	defer func() {
		if r := recover(); r != nil {
			result = failedEvaluation(fmt.Errorf("evaluation failed: %v", r))
		}
	}()
	expr, err := parseExpression(strings.TrimSpace(text))
	if err != nil {
		return failedEvaluation(err)
	}
	if frameID == 0 {
		frameID = 1
	}
	it, typeName, err := s.resolveBase(expr.base, frameID)
	if err != nil {
		return failedEvaluation(err)
	}
	for _, a := range expr.accessors {
		it, typeName, err = s.access(it, typeName, a)
		if err != nil {
			return failedEvaluation(err)
		}
	}
	if expr.cast != "" {
		v, err := ApplyCast(expr.cast, it)
		if err != nil {
			return failedEvaluation(err)
		}
		return EvaluateResult{Success: true, Result: v.Value, Type: v.Type}
	}
	v := s.variable("", it, typeName)
	return EvaluateResult{
		Success:            true,
		Result:             v.Value,
		Type:               v.Type,
		VariablesReference: v.VariablesReference,
	}
}

// resolveBase returns the item a base reference names and its declared
// type, if known.
func (s *Session) resolveBase(ref baseRef, frameID int) (neovm.StackItem, string, error) {
	if ref.kind == baseResult {
		return pick(s.engine.ResultStack(), ref.index, "result")
	}
	ctx, ok := s.contextAt(frameID)
	if !ok {
		return nil, "", fmt.Errorf("no frame %d", frameID)
	}
	switch ref.kind {
	case baseArg:
		return pick(ctx.Arguments(), ref.index, "argument")
	case baseLocal:
		return pick(ctx.Locals(), ref.index, "local")
	case baseStatic:
		return pick(ctx.StaticFields(), ref.index, "static field")
	case baseEval:
		return pick(ctx.EvaluationStack(), ref.index, "evaluation stack item")
	}
	return s.resolveName(ctx, ref.name)
}

func pick(items []neovm.StackItem, i int, what string) (neovm.StackItem, string, error) {
	if i < 0 || i >= len(items) {
		return nil, "", fmt.Errorf("%s %d out of range (%d available)", what, i, len(items))
	}
	return items[i], "", nil
}

// resolveName looks a name up among the current method's locals and
// parameters, then the contract's static fields.
func (s *Session) resolveName(ctx ExecutionContext, name string) (neovm.StackItem, string, error) {
	info, ok := s.infos[ctx.ScriptHash()]
	if !ok {
		return nil, "", fmt.Errorf("no debug info to resolve %q", name)
	}
	if method, ok := info.MethodAt(ctx.IP()); ok {
		if v, ok := findSlot(method.Variables, name); ok {
			it, _, err := pick(ctx.Locals(), v.Index, "local")
			return it, v.Type, err
		}
		if v, ok := findSlot(method.Parameters, name); ok {
			it, _, err := pick(ctx.Arguments(), v.Index, "argument")
			return it, v.Type, err
		}
	}
	if v, ok := findSlot(info.StaticVariables, name); ok {
		it, _, err := pick(ctx.StaticFields(), v.Index, "static field")
		return it, v.Type, err
	}
	return nil, "", fmt.Errorf("unknown variable %q", name)
}

func findSlot(vars []debuginfo.SlotVariable, name string) (debuginfo.SlotVariable, bool) {
	for _, v := range vars {
		if v.Name == name {
			return v, true
		}
	}
	return debuginfo.SlotVariable{}, false
}

// access applies one suffix accessor.
func (s *Session) access(it neovm.StackItem, typeName string, a accessor) (neovm.StackItem, string, error) {
	if a.field != "" {
		arr, ok := it.(*neovm.Array)
		if !ok || !arr.IsStruct {
			return nil, "", fmt.Errorf("%s: %s is not a struct", a, ItemTypeName(it))
		}
		layout, ok := s.structLayout(typeName)
		if !ok {
			return nil, "", fmt.Errorf("%s: no struct layout for type %q", a, typeName)
		}
		i, ok := layout.FieldIndex(a.field)
		if !ok || i >= len(arr.Items) {
			return nil, "", fmt.Errorf("%s: %s has no field %q", a, layout.Name, a.field)
		}
		return arr.Items[i], layout.Fields[i].Type, nil
	}
	switch v := it.(type) {
	case *neovm.Array:
		if a.index >= len(v.Items) {
			return nil, "", fmt.Errorf("%s: index out of range (%d items)", a, len(v.Items))
		}
		typ := ""
		if layout, ok := s.structLayout(typeName); ok && v.IsStruct && a.index < len(layout.Fields) {
			typ = layout.Fields[a.index].Type
		}
		return v.Items[a.index], typ, nil
	case neovm.ByteString:
		return byteAt(v, a)
	case *neovm.Buffer:
		return byteAt(v.Value, a)
	}
	return nil, "", fmt.Errorf("%s: cannot index %s", a, ItemTypeName(it))
}

func byteAt(b []byte, a accessor) (neovm.StackItem, string, error) {
	if a.index >= len(b) {
		return nil, "", fmt.Errorf("%s: index out of range (%d bytes)", a, len(b))
	}
	return neovm.NewInt(int64(b[a.index])), "", nil
}
