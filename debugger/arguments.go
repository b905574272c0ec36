// Copyright © 2018 The ELPS authors

package debugger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/neo-project/neo-debugger-sub000/neovm"
)

// ParseArgument converts a decoded JSON contract argument to a stack item.
//
// Numbers, booleans and null map to the matching item. Strings prefixed
// with 0x are hex bytes, except that 40 hex digits name a script hash and
// are stored little-endian. Strings prefixed with @ are addresses, pushed
// as their script hash. Other strings are UTF-8 bytes. Arrays map to
// arrays, and objects are typed parameters of the form
// {"type": ..., "value": ...}.
func ParseArgument(v any) (neovm.StackItem, error) {
	switch v := v.(type) {
	case nil:
		return neovm.Null{}, nil
	case bool:
		return neovm.Boolean(v), nil
	case json.Number:
		n, ok := new(big.Int).SetString(v.String(), 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer argument %s", v)
		}
		return neovm.NewBigInt(n), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid integer argument %v", v)
		}
		n, _ := big.NewFloat(v).Int(nil)
		return neovm.NewBigInt(n), nil
	case int:
		return neovm.NewInt(int64(v)), nil
	case int64:
		return neovm.NewInt(v), nil
	case string:
		b, err := parseStringArgument(v)
		if err != nil {
			return nil, err
		}
		return neovm.ByteString(b), nil
	case []any:
		items := make([]neovm.StackItem, len(v))
		for i, elem := range v {
			it, err := ParseArgument(elem)
			if err != nil {
				return nil, fmt.Errorf("argument [%d]: %w", i, err)
			}
			items[i] = it
		}
		return neovm.NewArray(items...), nil
	case map[string]any:
		return parseTypedArgument(v)
	}
	return nil, fmt.Errorf("unsupported argument %v (%T)", v, v)
}

// ParseArguments converts a list of contract arguments.
func ParseArguments(args []any) ([]neovm.StackItem, error) {
	items := make([]neovm.StackItem, len(args))
	for i, a := range args {
		it, err := ParseArgument(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		items[i] = it
	}
	return items, nil
}

func parseStringArgument(s string) ([]byte, error) {
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		digits := s[2:]
		if len(digits) == 2*len(neovm.Hash160{}) {
			h, err := neovm.ParseHash160(digits)
			if err != nil {
				return nil, err
			}
			return h.Bytes(), nil
		}
		b, err := hex.DecodeString(digits)
		if err != nil {
			return nil, fmt.Errorf("invalid hex argument %q: %w", s, err)
		}
		return b, nil
	case strings.HasPrefix(s, "@"):
		h, err := neovm.ParseAddress(s[1:])
		if err != nil {
			return nil, err
		}
		return h.Bytes(), nil
	}
	return []byte(s), nil
}

// parseTypedArgument decodes {"type": ..., "value": ...}.
func parseTypedArgument(m map[string]any) (neovm.StackItem, error) {
	typ, _ := lookupKey(m, "type").(string)
	value := lookupKey(m, "value")
	switch strings.ToLower(typ) {
	case "any":
		return neovm.Null{}, nil
	case "boolean":
		switch v := value.(type) {
		case bool:
			return neovm.Boolean(v), nil
		case string:
			return neovm.Boolean(strings.EqualFold(v, "true")), nil
		}
	case "integer":
		switch v := value.(type) {
		case string:
			n, ok := new(big.Int).SetString(v, 0)
			if !ok {
				return nil, fmt.Errorf("invalid integer %q", v)
			}
			return neovm.NewBigInt(n), nil
		default:
			return ParseArgument(v)
		}
	case "string":
		if v, ok := value.(string); ok {
			return neovm.ByteString(v), nil
		}
	case "bytearray", "bytestring", "signature", "publickey":
		if v, ok := value.(string); ok {
			b, err := hex.DecodeString(strings.TrimPrefix(v, "0x"))
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", typ, v, err)
			}
			return neovm.ByteString(b), nil
		}
	case "hash160":
		if v, ok := value.(string); ok {
			h, err := ParseSigner(v)
			if err != nil {
				return nil, err
			}
			return neovm.ByteString(h.Bytes()), nil
		}
	case "array":
		if v, ok := value.([]any); ok {
			return ParseArgument(v)
		}
	case "map":
		if v, ok := value.([]any); ok {
			return parseMapArgument(v)
		}
	default:
		return nil, fmt.Errorf("unknown argument type %q", typ)
	}
	return nil, fmt.Errorf("invalid %s argument value %v", typ, value)
}

func parseMapArgument(entries []any) (neovm.StackItem, error) {
	m := &neovm.Map{}
	for i, e := range entries {
		pair, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("map entry %d is not an object", i)
		}
		key, err := ParseArgument(lookupKey(pair, "key"))
		if err != nil {
			return nil, fmt.Errorf("map entry %d key: %w", i, err)
		}
		if !neovm.IsPrimitive(key) {
			return nil, fmt.Errorf("map entry %d key: %s is not a valid map key", i, ItemTypeName(key))
		}
		value, err := ParseArgument(lookupKey(pair, "value"))
		if err != nil {
			return nil, fmt.Errorf("map entry %d value: %w", i, err)
		}
		m.Set(key, value)
	}
	return m, nil
}

// lookupKey returns m[key], matching case-insensitively.
func lookupKey(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

// ParseSigner parses a script hash given as 0x-prefixed big-endian hex, an
// address, or an address prefixed with @.
func ParseSigner(s string) (neovm.Hash160, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return neovm.ParseHash160(s)
	}
	return neovm.ParseAddress(strings.TrimPrefix(s, "@"))
}

// ArgumentBytes converts a contract argument to the bytes stored for it,
// as used for storage keys and values.
func ArgumentBytes(v any) ([]byte, error) {
	it, err := ParseArgument(v)
	if err != nil {
		return nil, err
	}
	return neovm.ToBytes(it)
}
