package debugger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/stretchr/testify/assert"
)

func TestFormatItem(t *testing.T) {
	t.Parallel()
	script := neovm.NewScript([]byte{byte(neovm.RET)})
	tests := []struct {
		item neovm.StackItem
		want string
	}{
		{nil, "<nil>"},
		{neovm.Null{}, "null"},
		{neovm.Boolean(true), "true"},
		{neovm.Boolean(false), "false"},
		{neovm.NewInt(-42), "-42"},
		{neovm.ByteString{}, "0x"},
		{neovm.ByteString{0xde, 0xad}, "0xdead"},
		{&neovm.Buffer{Value: []byte{1}}, "0x01"},
		{neovm.NewArray(neovm.NewInt(1)), "Array[1]"},
		{neovm.NewStruct(), "Struct[0]"},
		{&neovm.Map{}, "Map[0]"},
		{neovm.Pointer{Script: script, Position: 3}, "Pointer " + script.Hash().String() + ":3"},
		{neovm.Pointer{Position: 3}, "Pointer 3"},
		{neovm.InteropInterface{Value: neovm.StorageContext{}}, "InteropInterface<neovm.StorageContext>"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatItem(tt.item))
	}
}

func TestFormatItem_TruncatesLongBytes(t *testing.T) {
	t.Parallel()
	got := FormatItem(neovm.ByteString(bytes.Repeat([]byte{0xab}, 100)))
	assert.Len(t, got, maxDisplayWidth)
	assert.True(t, strings.HasPrefix(got, "0xabab"))
	assert.True(t, strings.HasSuffix(got, ellipsis))
}

func TestPrintableText(t *testing.T) {
	t.Parallel()
	s, ok := printableText([]byte("hello world"))
	assert.True(t, ok)
	assert.Equal(t, "hello world", s)

	for _, b := range [][]byte{nil, {0xff}, []byte("tab\there"), {0x00}} {
		_, ok := printableText(b)
		assert.False(t, ok, "%q", b)
	}
}

func TestChildInfo(t *testing.T) {
	t.Parallel()
	m := &neovm.Map{}
	m.Set(neovm.NewInt(1), neovm.NewInt(2))
	tests := []struct {
		item           neovm.StackItem
		indexed, named int
		expandable     bool
	}{
		{neovm.NewArray(neovm.NewInt(1), neovm.NewInt(2)), 2, 0, true},
		{neovm.NewArray(), 0, 0, true},
		{m, 0, 1, true},
		{neovm.ByteString("abc"), 3, 0, true},
		{neovm.ByteString{}, 0, 0, false},
		{neovm.NewInt(5), 0, 0, false},
	}
	for _, tt := range tests {
		indexed, named := childInfo(tt.item)
		assert.Equal(t, tt.indexed, indexed)
		assert.Equal(t, tt.named, named)
		assert.Equal(t, tt.expandable, isContainer(tt.item))
	}
}
