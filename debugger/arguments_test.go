package debugger

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeArg decodes one JSON value the way launch configurations are read.
func decodeArg(t *testing.T, raw string) any {
	t.Helper()
	var v any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&v))
	return v
}

func TestParseArgument(t *testing.T) {
	t.Parallel()
	hash := neovm.HashScript([]byte("contract"))
	tests := []struct {
		name string
		raw  string
		want string
		typ  string
	}{
		{"null", `null`, "null", "Any"},
		{"bool", `true`, "true", "Boolean"},
		{"integer", `42`, "42", "Integer"},
		{"big integer", `123456789012345678901234567890`, "123456789012345678901234567890", "Integer"},
		{"negative", `-7`, "-7", "Integer"},
		{"text", `"hello"`, "0x68656c6c6f", "ByteString"},
		{"hex", `"0x0102"`, "0x0102", "ByteString"},
		{"script hash", `"` + hash.String() + `"`, FormatItem(neovm.ByteString(hash.Bytes())), "ByteString"},
		{"address", `"@` + hash.ToAddress() + `"`, FormatItem(neovm.ByteString(hash.Bytes())), "ByteString"},
		{"array", `[1, "a"]`, "Array[2]", "Array"},
		{"typed integer", `{"type": "Integer", "value": "0x10"}`, "16", "Integer"},
		{"typed integer number", `{"type": "integer", "value": 9}`, "9", "Integer"},
		{"typed boolean", `{"type": "Boolean", "value": "TRUE"}`, "true", "Boolean"},
		{"typed string", `{"type": "String", "value": "0x01"}`, "0x30783031", "ByteString"},
		{"typed bytes", `{"type": "ByteArray", "value": "0xcafe"}`, "0xcafe", "ByteString"},
		{"typed hash160", `{"Type": "Hash160", "Value": "` + hash.ToAddress() + `"}`, FormatItem(neovm.ByteString(hash.Bytes())), "ByteString"},
		{"typed any", `{"type": "Any"}`, "null", "Any"},
		{"typed array", `{"type": "Array", "value": [1, 2, 3]}`, "Array[3]", "Array"},
		{"typed map", `{"type": "Map", "value": [{"key": "a", "value": 1}]}`, "Map[1]", "Map"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			it, err := ParseArgument(decodeArg(t, tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatItem(it))
			assert.Equal(t, tt.typ, ItemTypeName(it))
		})
	}
}

func TestParseArgument_GoValues(t *testing.T) {
	t.Parallel()
	it, err := ParseArgument(float64(12))
	require.NoError(t, err)
	assert.Equal(t, "12", FormatItem(it))

	it, err = ParseArgument(5)
	require.NoError(t, err)
	assert.Equal(t, "5", FormatItem(it))

	_, err = ParseArgument(1.5)
	assert.Error(t, err)
	_, err = ParseArgument(struct{}{})
	assert.ErrorContains(t, err, "unsupported argument")
}

func TestParseArgument_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		message string
	}{
		{`"0xzz"`, "invalid hex argument"},
		{`"@notanaddress"`, ""},
		{`{"type": "Float", "value": 1}`, "unknown argument type"},
		{`{"type": "Integer", "value": "ten"}`, "invalid integer"},
		{`{"type": "Boolean", "value": 1}`, "invalid Boolean argument value"},
		{`{"type": "Map", "value": [1]}`, "map entry 0 is not an object"},
		{`{"type": "Map", "value": [{"key": [1], "value": 1}]}`, "not a valid map key"},
		{`[1, "0xq"]`, "argument [1]"},
	}
	for _, tt := range tests {
		_, err := ParseArgument(decodeArg(t, tt.raw))
		require.Error(t, err, tt.raw)
		assert.Contains(t, err.Error(), tt.message, tt.raw)
	}
}

func TestParseArguments(t *testing.T) {
	t.Parallel()
	items, err := ParseArguments([]any{json.Number("2"), "x"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2", FormatItem(items[0]))

	_, err = ParseArguments([]any{true, map[string]any{"type": "nope"}})
	assert.ErrorContains(t, err, "argument 1")
}

func TestParseSigner(t *testing.T) {
	t.Parallel()
	hash := neovm.HashScript([]byte("signer"))
	for _, s := range []string{hash.String(), hash.ToAddress(), "@" + hash.ToAddress(), " " + hash.String() + " "} {
		got, err := ParseSigner(s)
		require.NoError(t, err, s)
		assert.Equal(t, hash, got, s)
	}
	_, err := ParseSigner("0x1234")
	assert.Error(t, err)
}

func TestArgumentBytes(t *testing.T) {
	t.Parallel()
	b, err := ArgumentBytes(json.Number("255"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0x00}, b)

	b, err = ArgumentBytes("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("key"), b)

	_, err = ArgumentBytes([]any{1})
	assert.Error(t, err)
}
