package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neo-project/neo-debugger-sub000/debugger"
	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addDebugJSON = `{
  "documents": ["/build/Contract.cs"],
  "methods": [
    {
      "id": "main",
      "name": "Sample.Contract,Main",
      "range": "0-9",
      "params": ["a,Integer,0", "b,Integer,1"],
      "variables": ["sum,Integer,0"],
      "sequence-points": ["0[0]10:9-10:30", "3[0]11:9-11:30", "7[0]12:9-12:30", "8[0]13:9-13:30"]
    },
    {
      "id": "add",
      "name": "Sample.Contract,Add",
      "range": "10-11",
      "sequence-points": ["10[0]20:9-20:30", "11[0]21:9-21:30"]
    }
  ]
}`

func addScript() *neovm.Script {
	sb := &neovm.ScriptBuilder{}
	sb.Emit(neovm.INITSLOT, 1, 2) // 0
	sb.Emit(neovm.LDARG0)         // 3
	sb.Emit(neovm.LDARG1)         // 4
	sb.EmitJump(neovm.CALL, 5)    // 5: call 10
	sb.Emit(neovm.STLOC0)         // 7
	sb.Emit(neovm.LDLOC0)         // 8
	sb.Emit(neovm.RET)            // 9
	sb.Emit(neovm.ADD)            // 10
	sb.Emit(neovm.RET)            // 11
	return sb.Script()
}

// writeProgram writes contract.nef to a temporary directory, with debug
// info next to it when debugJSON is not empty.
func writeProgram(t *testing.T, debugJSON string) string {
	t.Helper()
	dir := t.TempDir()
	program := filepath.Join(dir, "contract.nef")
	nef := &neovm.NEF{Compiler: "neodbg-test", Script: addScript().Bytes()}
	require.NoError(t, os.WriteFile(program, nef.Bytes(), 0o600))
	if debugJSON != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "contract.debug.json"), []byte(debugJSON), 0o600))
	}
	return program
}

// runCommand executes the root command with args and returns its stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	disasmDebugInfo = ""
	disasmNoInfo = false
	traceOutput = ""
	traceLaunch = launchFlags{}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--log-level=error"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDebugCommand_Flags(t *testing.T) {
	f := debugCmd.Flags().Lookup("port")
	require.NotNil(t, f, "debug command should have --port flag")
	assert.Equal(t, "4711", f.DefValue)

	for _, name := range []string{"stdio", "repl", "source-root", "launch", "operation", "arg", "debug-info", "checkpoint", "signer", "debug-view"} {
		assert.NotNil(t, debugCmd.Flags().Lookup(name), "debug command should have --%s flag", name)
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	f := rootCmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, f)
	assert.Equal(t, "info", f.DefValue)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-file"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestParseArgFlag(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", json.Number("42")},
		{"true", true},
		{`"@NVg7LjGcUSrgxgjX3zEgqaksfMaiS8Z6e1"`, "@NVg7LjGcUSrgxgjX3zEgqaksfMaiS8Z6e1"},
		{"hello", "hello"},
		{"0x0102", "0x0102"},
		{"1 2", "1 2"},
		{`[1,"a"]`, []any{json.Number("1"), "a"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseArgFlag(tt.in), tt.in)
	}
}

func TestLaunchFlags_Config(t *testing.T) {
	dir := t.TempDir()
	launchFile := filepath.Join(dir, "launch.json")
	require.NoError(t, os.WriteFile(launchFile, []byte(`{
  "program": "from-file.nef",
  "invocation": {"operation": "main", "args": [1, 2]},
  "sourceFileMap": {"/build/": "/src/"},
  "return-types": ["int"]
}`), 0o600))

	f := &launchFlags{
		launchFile: launchFile,
		args:       []string{"7", "hello"},
		signers:    []string{"@NVg7LjGcUSrgxgjX3zEgqaksfMaiS8Z6e1"},
		debugView:  "disassembly",
	}
	cfg, err := f.config("contract.nef")
	require.NoError(t, err)
	assert.Equal(t, "contract.nef", cfg.Program)
	assert.Equal(t, "main", cfg.Invocation.Operation)
	assert.Equal(t, []any{json.Number("7"), "hello"}, cfg.Invocation.Args)
	assert.Equal(t, map[string]string{"/build/": "/src/"}, cfg.SourceFileMap)
	assert.Equal(t, []string{"int"}, cfg.ReturnTypes)
	assert.Equal(t, []string{"@NVg7LjGcUSrgxgjX3zEgqaksfMaiS8Z6e1"}, cfg.Signers)
	assert.Equal(t, "disassembly", cfg.DebugView)

	// Without a program argument the file's program is kept.
	cfg, err = (&launchFlags{launchFile: launchFile, operation: "add"}).config("")
	require.NoError(t, err)
	assert.Equal(t, "from-file.nef", cfg.Program)
	assert.Equal(t, "add", cfg.Invocation.Operation)
	assert.Equal(t, []any{json.Number("1"), json.Number("2")}, cfg.Invocation.Args)
}

func TestLaunchFlags_ConfigErrors(t *testing.T) {
	_, err := (&launchFlags{launchFile: filepath.Join(t.TempDir(), "missing.json")}).config("")
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = (&launchFlags{launchFile: bad}).config("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")
}

func TestDisasmCommand(t *testing.T) {
	program := writeProgram(t, addDebugJSON)

	out, err := runCommand(t, "disasm", program)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "# Method Start Sample.Contract.Main", lines[0])
	assert.Contains(t, out, "# Code Contract.cs line 10")
	assert.Contains(t, out, "0010 ADD")

	out, err = runCommand(t, "disasm", "--no-debug-info", program)
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 9)
	assert.True(t, strings.HasPrefix(lines[0], "0000 INITSLOT"), lines[0])
	assert.NotContains(t, out, "# Method")
}

func TestDisasmCommand_Errors(t *testing.T) {
	_, err := runCommand(t, "disasm", filepath.Join(t.TempDir(), "missing.nef"))
	assert.Error(t, err)

	program := writeProgram(t, "")
	_, err = runCommand(t, "disasm", "--debug-info", filepath.Join(t.TempDir(), "missing.debug.json"), program)
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.nef")
	require.NoError(t, os.WriteFile(bad, []byte("not a nef"), 0o600))
	_, err = runCommand(t, "disasm", bad)
	assert.ErrorIs(t, err, neovm.ErrInvalidNEF)
}

func TestTraceCommand(t *testing.T) {
	program := writeProgram(t, addDebugJSON)
	out := filepath.Join(t.TempDir(), "run.neotrace")

	stdout, err := runCommand(t, "trace", "-o", out, "--arg", "2", "--arg", "3", program)
	require.NoError(t, err)
	assert.Equal(t, out+"\n", stdout)

	engine, err := debugger.LoadTrace(out)
	require.NoError(t, err)
	assert.NoError(t, engine.Close())
}

func TestTraceCommand_DefaultOutput(t *testing.T) {
	program := writeProgram(t, "")

	stdout, err := runCommand(t, "trace", "--arg", "4", "--arg", "5", program)
	require.NoError(t, err)
	want := strings.TrimSuffix(program, ".nef") + TraceExtension
	assert.Equal(t, want+"\n", stdout)
	assert.FileExists(t, want)
}

func TestTraceCommand_Errors(t *testing.T) {
	_, err := runCommand(t, "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "program is required")

	program := writeProgram(t, "")
	_, err = runCommand(t, "trace", "--launch", filepath.Join(t.TempDir(), "missing.json"), program)
	assert.Error(t, err)
}
