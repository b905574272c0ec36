package debuginfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "hash": "0x0102030405060708090a0b0c0d0e0f1011121314",
  "documents": ["src/Contract.cs"],
  "methods": [
    {
      "id": "m1",
      "name": "Sample.Contract,Add",
      "range": "0-9",
      "params": ["a,Integer,0", "b,Integer,1"],
      "variables": ["sum,Integer,0"],
      "return": "Integer",
      "sequence-points": ["5[0]10:9-10:30", "0[0]9:5-9:6", "8[0]11:9-11:20"]
    },
    {
      "id": "m2",
      "name": "Sample.Contract,Point",
      "range": "10-20",
      "variables": ["p,Sample.Point"],
      "sequence-points": ["12[0]20:9-20:12"]
    }
  ],
  "events": [{"id": "e1", "name": "Sample.Contract,Transfer", "params": ["from,Hash160", "to,Hash160"]}],
  "static-variables": ["owner,Hash160,0"],
  "structs": [{"name": "Sample.Point", "fields": ["x,Integer", "y,Integer"]}]
}`

func TestParse(t *testing.T) {
	info, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "0x0102030405060708090a0b0c0d0e0f1011121314", info.Hash.String())
	require.Len(t, info.Methods, 2)

	add := info.Methods[0]
	assert.Equal(t, "Add", add.Name)
	assert.Equal(t, "Sample.Contract.Add", add.DisplayName())
	assert.Equal(t, Range{Start: 0, End: 9}, add.Range)
	assert.Equal(t, []SlotVariable{{"a", "Integer", 0}, {"b", "Integer", 1}}, add.Parameters)
	assert.Equal(t, "sum", add.Variables[0].Name)

	// Sequence points are sorted by address.
	require.Len(t, add.SequencePoints, 3)
	assert.Equal(t, 0, add.SequencePoints[0].Address)
	assert.Equal(t, 5, add.SequencePoints[1].Address)
	assert.Equal(t, Position{Line: 10, Column: 9}, add.SequencePoints[1].Start)
	assert.Equal(t, Position{Line: 10, Column: 30}, add.SequencePoints[1].End)

	// Slots without an explicit index take their position.
	assert.Equal(t, 0, info.Methods[1].Variables[0].Index)

	st, ok := info.Struct("Sample.Point")
	require.True(t, ok)
	idx, ok := st.FieldIndex("y")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	assert.Equal(t, "owner", info.StaticVariables[0].Name)
	assert.Equal(t, "Transfer", info.Events[0].Name)
}

func TestParse_ReportsEveryError(t *testing.T) {
	_, err := Parse([]byte(`{"methods": [
		{"name": "a", "range": "x", "sequence-points": ["bogus"]},
		{"name": "b", "range": "0-1", "params": ["too,many,parts,here"]}
	]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid sequence point "bogus"`)
	assert.Contains(t, err.Error(), `invalid slot "too,many,parts,here"`)
}

func TestMethod_Lookup(t *testing.T) {
	info, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)

	m, ok := info.MethodAt(7)
	require.True(t, ok)
	assert.Equal(t, "Add", m.Name)
	_, ok = info.MethodAt(30)
	assert.False(t, ok)

	sp, ok := m.SequencePointAt(7)
	require.True(t, ok)
	assert.Equal(t, 5, sp.Address)
	assert.True(t, m.IsBoundary(5))
	assert.False(t, m.IsBoundary(6))

	found, ok := info.FindMethod("point")
	require.True(t, ok)
	assert.Equal(t, "m2", found.ID)
}

func TestLoad_PackedAndLocate(t *testing.T) {
	dir := t.TempDir()
	packed, err := Pack("contract", []byte(sampleJSON))
	require.NoError(t, err)
	program := filepath.Join(dir, "contract.nef")
	require.NoError(t, os.WriteFile(program, []byte{}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contract.nefdbgnfo"), packed, 0o600))

	path, err := Locate(program)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "contract.nefdbgnfo"), path)

	info, err := Load(path)
	require.NoError(t, err)
	// Relative documents resolve against the debug info location.
	assert.Equal(t, filepath.Join(dir, "src", "Contract.cs"), info.Documents[0])

	sps := info.SequencePointsForDocument(filepath.Join(dir, "SRC", "contract.cs"))
	assert.Len(t, sps, 4)

	_, err = Locate(filepath.Join(dir, "missing.nef"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemap(t *testing.T) {
	info := &DebugInfo{Documents: []string{
		"/build/agent/src/Contract.cs",
		"/build/agent/src/lib/Util.cs",
		"/elsewhere/Other.cs",
	}}
	info.Remap(map[string]string{
		"/build/agent":         "/home/dev/project",
		"/build/agent/src/lib": "/home/dev/lib",
	})
	assert.Equal(t, filepath.FromSlash("/home/dev/project/src/Contract.cs"), info.Documents[0])
	assert.Equal(t, filepath.FromSlash("/home/dev/lib/Util.cs"), info.Documents[1])
	assert.Equal(t, "/elsewhere/Other.cs", info.Documents[2])
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/a/c", NormalizePath("/a/b/../c"))
	assert.True(t, SamePath(NormalizePath("/A/B.cs"), NormalizePath("/a/b.cs")))
	assert.False(t, SamePath("", ""))
	assert.Equal(t, "C:/src/x.cs", NormalizePath(`C:\src\x.cs`))
}
