// Copyright © 2018 The ELPS authors

package debugger

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/neo-project/neo-debugger-sub000/neovm"
)

// CastResult is a stack item reinterpreted by a cast.
type CastResult struct {
	Value string
	Type  string
}

// CastNames lists the accepted cast names.
var CastNames = []string{"int", "integer", "bool", "boolean", "string", "hex", "byte[]", "bytes", "addr", "address"}

// ApplyCast reinterprets it as the named type. Names are matched
// case-insensitively.
func ApplyCast(name string, it neovm.StackItem) (CastResult, error) {
	switch strings.ToLower(name) {
	case "int", "integer":
		n, err := neovm.ToInteger(it)
		if err != nil {
			return CastResult{}, castError(name, it, err)
		}
		return CastResult{Value: n.String(), Type: "Integer"}, nil
	case "bool", "boolean":
		b, err := neovm.ToBoolean(it)
		if err != nil {
			return CastResult{}, castError(name, it, err)
		}
		return CastResult{Value: strconv.FormatBool(b), Type: "Boolean"}, nil
	case "string":
		b, err := neovm.ToBytes(it)
		if err != nil {
			return CastResult{}, castError(name, it, err)
		}
		if !utf8.Valid(b) {
			return CastResult{}, errors.New("cannot cast to string: value is not valid UTF-8")
		}
		return CastResult{Value: strconv.Quote(string(b)), Type: "String"}, nil
	case "hex":
		if n, ok := it.(neovm.Integer); ok {
			if n.Value.Sign() < 0 {
				return CastResult{Value: "-0x" + new(big.Int).Abs(n.Value).Text(16), Type: "Integer"}, nil
			}
			return CastResult{Value: "0x" + n.Value.Text(16), Type: "Integer"}, nil
		}
		b, err := neovm.ToBytes(it)
		if err != nil {
			return CastResult{}, castError(name, it, err)
		}
		return CastResult{Value: "0x" + hex.EncodeToString(b), Type: "ByteString"}, nil
	case "byte[]", "bytes":
		b, err := neovm.ToBytes(it)
		if err != nil {
			return CastResult{}, castError(name, it, err)
		}
		parts := make([]string, len(b))
		for i, c := range b {
			parts[i] = strconv.Itoa(int(c))
		}
		return CastResult{Value: "[" + strings.Join(parts, ", ") + "]", Type: "Byte[]"}, nil
	case "addr", "address":
		b, err := neovm.ToBytes(it)
		if err != nil {
			return CastResult{}, castError(name, it, err)
		}
		h, ok := neovm.Hash160FromBytes(b)
		if !ok {
			return CastResult{}, fmt.Errorf("cannot cast to address: need 20 bytes, have %d", len(b))
		}
		return CastResult{Value: h.ToAddress(), Type: "Address"}, nil
	}
	return CastResult{}, fmt.Errorf("unknown cast %q", name)
}

func castError(name string, it neovm.StackItem, err error) error {
	return fmt.Errorf("cannot cast %s to %s: %w", ItemTypeName(it), name, err)
}
