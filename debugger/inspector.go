// Copyright © 2018 The ELPS authors

package debugger

import (
	"encoding/hex"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/muesli/reflow/truncate"
	"github.com/neo-project/neo-debugger-sub000/neovm"
)

// maxDisplayWidth bounds rendered byte strings and text annotations.
const maxDisplayWidth = 80

const ellipsis = "..."

// FormatItem returns a human-readable rendering of a stack item, suitable
// for the variables view. Compound items render as their type and length;
// their contents are reached by expanding them.
func FormatItem(it neovm.StackItem) string {
	switch v := it.(type) {
	case nil:
		return "<nil>"
	case neovm.Null:
		return "null"
	case neovm.Boolean:
		if v {
			return "true"
		}
		return "false"
	case neovm.Integer:
		return v.Value.String()
	case neovm.ByteString:
		return formatBytes(v)
	case *neovm.Buffer:
		return formatBytes(v.Value)
	case *neovm.Array:
		if v.IsStruct {
			return fmt.Sprintf("Struct[%d]", len(v.Items))
		}
		return fmt.Sprintf("Array[%d]", len(v.Items))
	case *neovm.Map:
		return fmt.Sprintf("Map[%d]", len(v.Entries))
	case neovm.Pointer:
		if v.Script == nil {
			return fmt.Sprintf("Pointer %d", v.Position)
		}
		return fmt.Sprintf("Pointer %s:%d", v.Script.Hash(), v.Position)
	case neovm.InteropInterface:
		return fmt.Sprintf("InteropInterface<%T>", v.Value)
	default:
		return fmt.Sprintf("<%T>", it)
	}
}

// ItemTypeName returns the VM type name of a stack item.
func ItemTypeName(it neovm.StackItem) string {
	if it == nil {
		return "nil"
	}
	return neovm.TypeOf(it).String()
}

func formatBytes(b []byte) string {
	if len(b) == 0 {
		return "0x"
	}
	return truncateDisplay("0x" + hex.EncodeToString(b))
}

// truncateDisplay shortens s to maxDisplayWidth cells.
func truncateDisplay(s string) string {
	return truncate.StringWithTail(s, maxDisplayWidth, ellipsis)
}

// printableText returns b as text when it is valid UTF-8 made only of
// printable characters.
func printableText(b []byte) (string, bool) {
	if len(b) == 0 || !utf8.Valid(b) {
		return "", false
	}
	s := string(b)
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return "", false
		}
	}
	return s, true
}

// childInfo returns the number of indexed and named children of a stack
// item. These counts are used as DAP pagination hints.
func childInfo(it neovm.StackItem) (indexedChildren, namedChildren int) {
	switch v := it.(type) {
	case *neovm.Array:
		return len(v.Items), 0
	case *neovm.Map:
		return 0, len(v.Entries)
	case neovm.ByteString:
		return len(v), 0
	case *neovm.Buffer:
		return len(v.Value), 0
	default:
		return 0, 0
	}
}

// isContainer reports whether the variables view can expand it.
func isContainer(it neovm.StackItem) bool {
	switch v := it.(type) {
	case *neovm.Array, *neovm.Map:
		return true
	case neovm.ByteString:
		return len(v) > 0
	case *neovm.Buffer:
		return len(v.Value) > 0
	default:
		return false
	}
}
