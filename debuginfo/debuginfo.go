// Copyright © 2018 The ELPS authors

// Package debuginfo models the symbol data a Neo compiler emits next to a
// contract: method address ranges, named slots, struct layouts and
// sequence points mapping instruction addresses to source spans.
package debuginfo

import (
	"sort"
	"strings"

	"github.com/neo-project/neo-debugger-sub000/neovm"
)

// Position is a 1-based line and column in a source document.
type Position struct {
	Line   int
	Column int
}

// SequencePoint maps an instruction address to a source span.
type SequencePoint struct {
	Address  int
	Document int
	Start    Position
	End      Position
}

// Range is an inclusive instruction address range.
type Range struct {
	Start int
	End   int
}

// Contains reports whether address lies inside r.
func (r Range) Contains(address int) bool {
	return address >= r.Start && address <= r.End
}

// SlotVariable is a named argument, local or static field.
type SlotVariable struct {
	Name  string
	Type  string
	Index int
}

// Method describes one compiled contract method.
type Method struct {
	ID             string
	Namespace      string
	Name           string
	Range          Range
	Parameters     []SlotVariable
	Variables      []SlotVariable
	ReturnType     string
	SequencePoints []SequencePoint
}

// DisplayName returns the method name qualified by its namespace.
func (m *Method) DisplayName() string {
	if m.Namespace == "" {
		return m.Name
	}
	return m.Namespace + "." + m.Name
}

// SequencePointAt returns the sequence point governing address: the one
// with the greatest address not after it.
func (m *Method) SequencePointAt(address int) (SequencePoint, bool) {
	i := sort.Search(len(m.SequencePoints), func(i int) bool {
		return m.SequencePoints[i].Address > address
	})
	if i == 0 {
		return SequencePoint{}, false
	}
	return m.SequencePoints[i-1], true
}

// IsBoundary reports whether a sequence point starts exactly at address.
func (m *Method) IsBoundary(address int) bool {
	i := sort.Search(len(m.SequencePoints), func(i int) bool {
		return m.SequencePoints[i].Address >= address
	})
	return i < len(m.SequencePoints) && m.SequencePoints[i].Address == address
}

// StructField is one named field of a struct layout.
type StructField struct {
	Name string
	Type string
}

// Struct is the field layout of a compiler generated struct type.
type Struct struct {
	Name   string
	Fields []StructField
}

// FieldIndex returns the position of the named field.
func (s *Struct) FieldIndex(name string) (int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Event describes a notification a contract may raise.
type Event struct {
	ID         string
	Namespace  string
	Name       string
	Parameters []SlotVariable
}

// DebugInfo is the symbol data of one contract. It is read-only once
// loaded.
type DebugInfo struct {
	Hash            neovm.Hash160
	DocumentRoot    string
	Documents       []string
	Methods         []*Method
	Events          []Event
	StaticVariables []SlotVariable
	Structs         map[string]*Struct
}

// MethodAt returns the method whose range contains address.
func (d *DebugInfo) MethodAt(address int) (*Method, bool) {
	if d == nil {
		return nil, false
	}
	for _, m := range d.Methods {
		if m.Range.Contains(address) {
			return m, true
		}
	}
	return nil, false
}

// FindMethod looks a method up by bare or namespace-qualified name. Names
// are matched case-insensitively, as contract ABIs use camel case while
// compilers may not.
func (d *DebugInfo) FindMethod(name string) (*Method, bool) {
	for _, m := range d.Methods {
		if strings.EqualFold(m.Name, name) || strings.EqualFold(m.DisplayName(), name) {
			return m, true
		}
	}
	return nil, false
}

// Document returns the path of document index i, or "" when out of range.
func (d *DebugInfo) Document(i int) string {
	if d == nil || i < 0 || i >= len(d.Documents) {
		return ""
	}
	return d.Documents[i]
}

// Struct returns the layout registered for a type name.
func (d *DebugInfo) Struct(typeName string) (*Struct, bool) {
	if d == nil {
		return nil, false
	}
	s, ok := d.Structs[typeName]
	return s, ok
}

// SequencePointsForDocument returns every sequence point, across all
// methods, whose document matches path after normalisation.
func (d *DebugInfo) SequencePointsForDocument(path string) []SequencePoint {
	want := NormalizePath(path)
	var out []SequencePoint
	for _, m := range d.Methods {
		for _, sp := range m.SequencePoints {
			if SamePath(NormalizePath(d.Document(sp.Document)), want) {
				out = append(out, sp)
			}
		}
	}
	return out
}
