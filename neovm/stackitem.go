// Copyright © 2018 The ELPS authors

package neovm

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
)

// ItemType identifies the type of a stack item, using the NeoVM encoding.
type ItemType byte

// Stack item types.
const (
	AnyT              ItemType = 0x00
	PointerT          ItemType = 0x10
	BooleanT          ItemType = 0x20
	IntegerT          ItemType = 0x21
	ByteStringT       ItemType = 0x28
	BufferT           ItemType = 0x30
	ArrayT            ItemType = 0x40
	StructT           ItemType = 0x41
	MapT              ItemType = 0x48
	InteropInterfaceT ItemType = 0x60
)

func (t ItemType) String() string {
	switch t {
	case AnyT:
		return "Any"
	case PointerT:
		return "Pointer"
	case BooleanT:
		return "Boolean"
	case IntegerT:
		return "Integer"
	case ByteStringT:
		return "ByteString"
	case BufferT:
		return "Buffer"
	case ArrayT:
		return "Array"
	case StructT:
		return "Struct"
	case MapT:
		return "Map"
	case InteropInterfaceT:
		return "InteropInterface"
	}
	return fmt.Sprintf("ItemType(0x%02x)", byte(t))
}

// IsValid reports whether t is a defined item type.
func (t ItemType) IsValid() bool {
	switch t {
	case AnyT, PointerT, BooleanT, IntegerT, ByteStringT, BufferT, ArrayT, StructT, MapT, InteropInterfaceT:
		return true
	}
	return false
}

// ErrInvalidConversion is returned when a stack item cannot be converted
// to the requested primitive.
var ErrInvalidConversion = errors.New("invalid conversion")

// StackItem is a value on a NeoVM stack or in a slot. Null is represented
// by Null{} (Type AnyT).
type StackItem interface {
	Type() ItemType
}

// Null is the NeoVM null value.
type Null struct{}

// Boolean is a NeoVM boolean.
type Boolean bool

// Integer is a NeoVM arbitrary precision integer (bounded to 32 bytes).
type Integer struct{ Value *big.Int }

// ByteString is an immutable byte sequence.
type ByteString []byte

// Buffer is a mutable byte sequence.
type Buffer struct{ Value []byte }

// Array is an ordered collection of items. Struct is an Array with value
// semantics, distinguished by IsStruct.
type Array struct {
	Items    []StackItem
	IsStruct bool
}

// MapEntry is a single key/value pair of a Map.
type MapEntry struct {
	Key   StackItem
	Value StackItem
}

// Map is an insertion-ordered map with primitive keys.
type Map struct {
	Entries []MapEntry
}

// Pointer is a position inside a script.
type Pointer struct {
	Script   *Script
	Position int
}

// InteropInterface wraps a host object.
type InteropInterface struct{ Value any }

func (Null) Type() ItemType             { return AnyT }
func (Boolean) Type() ItemType          { return BooleanT }
func (Integer) Type() ItemType          { return IntegerT }
func (ByteString) Type() ItemType       { return ByteStringT }
func (*Buffer) Type() ItemType          { return BufferT }
func (*Map) Type() ItemType             { return MapT }
func (Pointer) Type() ItemType          { return PointerT }
func (InteropInterface) Type() ItemType { return InteropInterfaceT }

func (a *Array) Type() ItemType {
	if a.IsStruct {
		return StructT
	}
	return ArrayT
}

// NewInt returns an Integer item.
func NewInt(v int64) Integer {
	return Integer{Value: big.NewInt(v)}
}

// NewBigInt returns an Integer item wrapping a copy of v.
func NewBigInt(v *big.Int) Integer {
	return Integer{Value: new(big.Int).Set(v)}
}

// NewArray returns an Array item.
func NewArray(items ...StackItem) *Array {
	return &Array{Items: items}
}

// NewStruct returns a Struct item.
func NewStruct(items ...StackItem) *Array {
	return &Array{Items: items, IsStruct: true}
}

// IsNull reports whether it is the null item.
func IsNull(it StackItem) bool {
	_, ok := it.(Null)
	return ok || it == nil
}

// IsPrimitive reports whether it is a Boolean, Integer or ByteString.
func IsPrimitive(it StackItem) bool {
	switch it.(type) {
	case Boolean, Integer, ByteString:
		return true
	}
	return false
}

// ToInteger converts a primitive or buffer item to a big integer.
func ToInteger(it StackItem) (*big.Int, error) {
	switch v := it.(type) {
	case Integer:
		return new(big.Int).Set(v.Value), nil
	case Boolean:
		if v {
			return big.NewInt(1), nil
		}
		return big.NewInt(0), nil
	case ByteString:
		if len(v) > MaxIntegerSize {
			return nil, fmt.Errorf("%w: %d bytes is too large for an integer", ErrInvalidConversion, len(v))
		}
		return BytesToInt(v), nil
	case *Buffer:
		if len(v.Value) > MaxIntegerSize {
			return nil, fmt.Errorf("%w: %d bytes is too large for an integer", ErrInvalidConversion, len(v.Value))
		}
		return BytesToInt(v.Value), nil
	}
	return nil, fmt.Errorf("%w: %s to Integer", ErrInvalidConversion, typeOf(it))
}

// ToBoolean converts any item to a boolean following NeoVM rules.
func ToBoolean(it StackItem) (bool, error) {
	switch v := it.(type) {
	case nil, Null:
		return false, nil
	case Boolean:
		return bool(v), nil
	case Integer:
		return v.Value.Sign() != 0, nil
	case ByteString:
		if len(v) > MaxIntegerSize {
			return false, fmt.Errorf("%w: %d bytes is too large for a boolean", ErrInvalidConversion, len(v))
		}
		for _, b := range v {
			if b != 0 {
				return true, nil
			}
		}
		return false, nil
	}
	return true, nil
}

// ToBytes converts a primitive or buffer item to its byte representation.
func ToBytes(it StackItem) ([]byte, error) {
	switch v := it.(type) {
	case ByteString:
		return []byte(v), nil
	case *Buffer:
		return v.Value, nil
	case Integer:
		return IntToBytes(v.Value), nil
	case Boolean:
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	}
	return nil, fmt.Errorf("%w: %s to ByteString", ErrInvalidConversion, typeOf(it))
}

func typeOf(it StackItem) ItemType {
	if it == nil {
		return AnyT
	}
	return it.Type()
}

// TypeOf returns the item type of it, treating nil as Null.
func TypeOf(it StackItem) ItemType {
	return typeOf(it)
}

// Equals compares two items with NeoVM EQUAL semantics: primitives by
// value, compound items by reference (structs by value).
func Equals(a, b StackItem) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch x := a.(type) {
	case Boolean:
		y, ok := b.(Boolean)
		return ok && x == y
	case Integer:
		y, ok := b.(Integer)
		return ok && x.Value.Cmp(y.Value) == 0
	case ByteString:
		y, ok := b.(ByteString)
		return ok && bytes.Equal(x, y)
	case *Buffer:
		return a == b
	case *Array:
		y, ok := b.(*Array)
		if !ok {
			return false
		}
		if !x.IsStruct || !y.IsStruct {
			return x == y
		}
		if len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !Equals(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	case *Map:
		return a == b
	case Pointer:
		y, ok := b.(Pointer)
		return ok && x.Script == y.Script && x.Position == y.Position
	case InteropInterface:
		y, ok := b.(InteropInterface)
		return ok && x.Value == y.Value
	}
	return false
}

// Get returns the value stored under key.
func (m *Map) Get(key StackItem) (StackItem, bool) {
	for _, e := range m.Entries {
		if Equals(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

// Set stores value under key, replacing an existing entry.
func (m *Map) Set(key, value StackItem) {
	for i, e := range m.Entries {
		if Equals(e.Key, key) {
			m.Entries[i].Value = value
			return
		}
	}
	m.Entries = append(m.Entries, MapEntry{Key: key, Value: value})
}

// Remove deletes key from the map.
func (m *Map) Remove(key StackItem) {
	for i, e := range m.Entries {
		if Equals(e.Key, key) {
			m.Entries = append(m.Entries[:i], m.Entries[i+1:]...)
			return
		}
	}
}

// cloneStruct deep-copies struct values, as NeoVM does when a struct is
// stored into another compound value.
func cloneStruct(a *Array) *Array {
	out := &Array{Items: make([]StackItem, len(a.Items)), IsStruct: true}
	for i, it := range a.Items {
		if s, ok := it.(*Array); ok && s.IsStruct {
			out.Items[i] = cloneStruct(s)
			continue
		}
		out.Items[i] = it
	}
	return out
}
