package dapserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/neo-project/neo-debugger-sub000/debugger"
	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contractDoc = "/src/Contract.cs"

// callDebugJSON describes mainScript: Main(a, b) { sum = Add(a, b); return sum; }.
const callDebugJSON = `{
  "documents": ["/src/Contract.cs"],
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

func mainScript() []byte {
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
	return sb.Bytes()
}

// writeProgram writes the contract, with debug info when withInfo is set,
// and returns the program path.
func writeProgram(t *testing.T, withInfo bool) string {
	t.Helper()
	dir := t.TempDir()
	program := filepath.Join(dir, "contract.nef")
	nef := &neovm.NEF{Compiler: "neodbg-test", Script: mainScript()}
	require.NoError(t, os.WriteFile(program, nef.Bytes(), 0o600))
	if withInfo {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "contract.debug.json"), []byte(callDebugJSON), 0o600))
	}
	return program
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type dapTestSession struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	seq    int
}

func setupDAPSession(t *testing.T, opts ...Option) *dapTestSession {
	t.Helper()
	srv := New(append([]Option{WithLogger(quietLogger())}, opts...)...)

	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() }) //nolint:errcheck,gosec

	go func() {
		_ = srv.ServeConn(server)
	}()

	return &dapTestSession{
		t:      t,
		conn:   client,
		reader: bufio.NewReader(client),
	}
}

func (s *dapTestSession) request(command string) dap.Request {
	s.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: s.seq, Type: "request"},
		Command:         command,
	}
}

func (s *dapTestSession) send(msg dap.Message) {
	s.t.Helper()
	sendDAPRequest(s.t, s.conn, msg)
}

func (s *dapTestSession) read() dap.Message {
	s.t.Helper()
	return readDAPMessage(s.t, s.reader)
}

// readRaw reads one message as a generic response, for responses to
// custom requests go-dap cannot decode.
func (s *dapTestSession) readRaw() dap.Response {
	s.t.Helper()
	content, err := dap.ReadBaseMessage(s.reader)
	require.NoError(s.t, err)
	var resp dap.Response
	require.NoError(s.t, json.Unmarshal(content, &resp))
	return resp
}

func (s *dapTestSession) initialize() *dap.InitializeResponse {
	s.t.Helper()
	s.send(&dap.InitializeRequest{
		Request:   s.request("initialize"),
		Arguments: dap.InitializeRequestArguments{AdapterID: "neo", LinesStartAt1: true},
	})
	resp, ok := s.read().(*dap.InitializeResponse)
	require.True(s.t, ok)
	return resp
}

func (s *dapTestSession) launch(args map[string]any) {
	s.t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(s.t, err)
	s.send(&dap.LaunchRequest{Request: s.request("launch"), Arguments: raw})
	msg := s.read()
	resp, ok := msg.(*dap.LaunchResponse)
	require.True(s.t, ok, "expected LaunchResponse, got %#v", msg)
	assert.True(s.t, resp.Success)
	_, ok = s.read().(*dap.InitializedEvent)
	require.True(s.t, ok)
}

func (s *dapTestSession) configurationDone() {
	s.t.Helper()
	s.send(&dap.ConfigurationDoneRequest{Request: s.request("configurationDone")})
	_, ok := s.read().(*dap.ConfigurationDoneResponse)
	require.True(s.t, ok)
}

func (s *dapTestSession) expectStopped(reason string) *dap.StoppedEvent {
	s.t.Helper()
	msg := s.read()
	evt, ok := msg.(*dap.StoppedEvent)
	require.True(s.t, ok, "expected StoppedEvent, got %#v", msg)
	assert.Equal(s.t, reason, evt.Body.Reason)
	assert.Equal(s.t, neoThreadID, evt.Body.ThreadId)
	return evt
}

func (s *dapTestSession) stackTrace() []dap.StackFrame {
	s.t.Helper()
	s.send(&dap.StackTraceRequest{Request: s.request("stackTrace"), Arguments: dap.StackTraceArguments{ThreadId: neoThreadID}})
	resp, ok := s.read().(*dap.StackTraceResponse)
	require.True(s.t, ok)
	assert.Equal(s.t, len(resp.Body.StackFrames), resp.Body.TotalFrames)
	return resp.Body.StackFrames
}

func (s *dapTestSession) expectError(contains string) {
	s.t.Helper()
	msg := s.read()
	resp, ok := msg.(*dap.ErrorResponse)
	require.True(s.t, ok, "expected ErrorResponse, got %#v", msg)
	assert.False(s.t, resp.Success)
	assert.Contains(s.t, resp.Message, contains)
}

func sendDAPRequest(t *testing.T, w io.Writer, msg dap.Message) {
	t.Helper()
	err := dap.WriteProtocolMessage(w, msg)
	require.NoError(t, err)
}

func readDAPMessage(t *testing.T, r *bufio.Reader) dap.Message {
	t.Helper()
	done := make(chan dap.Message, 1)
	errCh := make(chan error, 1)
	go func() {
		msg, err := dap.ReadProtocolMessage(r)
		if err != nil {
			errCh <- err
			return
		}
		done <- msg
	}()
	select {
	case msg := <-done:
		return msg
	case err := <-errCh:
		t.Fatalf("read DAP message: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for DAP message")
	}
	return nil
}

func TestDAPServer_InitializeAndDisconnect(t *testing.T) {
	t.Parallel()
	s := setupDAPSession(t)

	resp := s.initialize()
	assert.True(t, resp.Success)
	assert.True(t, resp.Body.SupportsConfigurationDoneRequest)
	assert.True(t, resp.Body.SupportsStepBack)
	assert.True(t, resp.Body.SupportsExceptionInfoRequest)
	require.Len(t, resp.Body.ExceptionBreakpointFilters, 1)
	assert.Equal(t, debugger.ExceptionFilterCaught, resp.Body.ExceptionBreakpointFilters[0].Filter)

	s.send(&dap.DisconnectRequest{Request: s.request("disconnect")})
	disc, ok := s.read().(*dap.DisconnectResponse)
	require.True(t, ok)
	assert.True(t, disc.Success)
}

func TestDAPServer_RequestsBeforeLaunch(t *testing.T) {
	t.Parallel()
	s := setupDAPSession(t)
	s.initialize()

	s.send(&dap.ThreadsRequest{Request: s.request("threads")})
	s.expectError("session not launched")

	s.send(&dap.SetBreakpointsRequest{
		Request:   s.request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{Source: dap.Source{Path: contractDoc}},
	})
	s.expectError("session not launched")

	s.send(&DebugViewRequest{Request: s.request(DebugViewCommand), Arguments: DebugViewArguments{DebugView: "toggle"}})
	s.expectError("session not launched")
}

func TestDAPServer_LaunchErrors(t *testing.T) {
	t.Parallel()
	s := setupDAPSession(t)
	s.initialize()

	raw, err := json.Marshal(map[string]any{"stopOnEntry": true})
	require.NoError(t, err)
	s.send(&dap.LaunchRequest{Request: s.request("launch"), Arguments: raw})
	s.expectError("program is required")

	s.send(&dap.LaunchRequest{Request: s.request("launch"), Arguments: json.RawMessage(`{"program": `)})
	s.expectError("launch arguments")
}

func TestDAPServer_DebugSession(t *testing.T) {
	t.Parallel()
	s := setupDAPSession(t)
	s.initialize()
	s.launch(map[string]any{
		"program":     writeProgram(t, true),
		"invocation":  map[string]any{"operation": "main", "args": []any{2, 3}},
		"stopOnEntry": true,
	})

	s.send(&dap.SetBreakpointsRequest{
		Request: s.request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: contractDoc},
			Breakpoints: []dap.SourceBreakpoint{{Line: 13}, {Line: 99}},
		},
	})
	bpResp, ok := s.read().(*dap.SetBreakpointsResponse)
	require.True(t, ok)
	require.Len(t, bpResp.Body.Breakpoints, 2)
	assert.True(t, bpResp.Body.Breakpoints[0].Verified)
	assert.Equal(t, 13, bpResp.Body.Breakpoints[0].Line)
	assert.Equal(t, "8", bpResp.Body.Breakpoints[0].InstructionReference)
	assert.Equal(t, contractDoc, bpResp.Body.Breakpoints[0].Source.Path)
	assert.False(t, bpResp.Body.Breakpoints[1].Verified)

	s.configurationDone()
	s.expectStopped("entry")

	s.send(&dap.ThreadsRequest{Request: s.request("threads")})
	threads, ok := s.read().(*dap.ThreadsResponse)
	require.True(t, ok)
	require.Len(t, threads.Body.Threads, 1)
	assert.Equal(t, neoThreadID, threads.Body.Threads[0].Id)

	frames := s.stackTrace()
	require.Len(t, frames, 1)
	assert.Equal(t, "Sample.Contract.Main", frames[0].Name)
	assert.Equal(t, 10, frames[0].Line)
	require.NotNil(t, frames[0].Source)
	assert.Equal(t, contractDoc, frames[0].Source.Path)
	assert.Equal(t, "Contract.cs", frames[0].Source.Name)

	s.send(&dap.ScopesRequest{Request: s.request("scopes"), Arguments: dap.ScopesArguments{FrameId: frames[0].Id}})
	scopes, ok := s.read().(*dap.ScopesResponse)
	require.True(t, ok)
	require.Len(t, scopes.Body.Scopes, 5)
	assert.Equal(t, "Arguments", scopes.Body.Scopes[0].Name)

	s.send(&dap.VariablesRequest{
		Request:   s.request("variables"),
		Arguments: dap.VariablesArguments{VariablesReference: scopes.Body.Scopes[0].VariablesReference},
	})
	vars, ok := s.read().(*dap.VariablesResponse)
	require.True(t, ok)
	require.Len(t, vars.Body.Variables, 2)
	assert.Equal(t, "a", vars.Body.Variables[0].Name)
	assert.Equal(t, "2", vars.Body.Variables[0].Value)

	// Paging.
	s.send(&dap.VariablesRequest{
		Request:   s.request("variables"),
		Arguments: dap.VariablesArguments{VariablesReference: scopes.Body.Scopes[0].VariablesReference, Start: 1, Count: 1},
	})
	vars, ok = s.read().(*dap.VariablesResponse)
	require.True(t, ok)
	require.Len(t, vars.Body.Variables, 1)
	assert.Equal(t, "b", vars.Body.Variables[0].Name)

	s.send(&dap.ContinueRequest{Request: s.request("continue")})
	_, ok = s.read().(*dap.ContinueResponse)
	require.True(t, ok)
	s.expectStopped("breakpoint")

	// Handles from the previous stop are gone.
	s.send(&dap.VariablesRequest{
		Request:   s.request("variables"),
		Arguments: dap.VariablesArguments{VariablesReference: scopes.Body.Scopes[0].VariablesReference},
	})
	s.expectError("unknown variables reference")

	s.send(&dap.EvaluateRequest{Request: s.request("evaluate"), Arguments: dap.EvaluateArguments{Expression: "sum"}})
	eval, ok := s.read().(*dap.EvaluateResponse)
	require.True(t, ok)
	assert.Equal(t, "5", eval.Body.Result)
	assert.Equal(t, "Integer", eval.Body.Type)

	s.send(&dap.EvaluateRequest{Request: s.request("evaluate"), Arguments: dap.EvaluateArguments{Expression: "nosuch"}})
	eval, ok = s.read().(*dap.EvaluateResponse)
	require.True(t, ok)
	assert.True(t, eval.Success)
	assert.Contains(t, eval.Body.Result, "nosuch")
	assert.Zero(t, eval.Body.VariablesReference)
	require.NotNil(t, eval.Body.PresentationHint)
	assert.Equal(t, []string{FailedEvaluationAttribute}, eval.Body.PresentationHint.Attributes)

	s.send(&dap.StepBackRequest{Request: s.request("stepBack")})
	s.expectError("does not support reverse execution")

	s.send(&dap.ContinueRequest{Request: s.request("continue")})
	_, ok = s.read().(*dap.ContinueResponse)
	require.True(t, ok)
	out, ok := s.read().(*dap.OutputEvent)
	require.True(t, ok)
	assert.Equal(t, "stdout", out.Body.Category)
	assert.Equal(t, "result 0: 5\n", out.Body.Output)
	exited, ok := s.read().(*dap.ExitedEvent)
	require.True(t, ok)
	assert.Equal(t, 0, exited.Body.ExitCode)
	_, ok = s.read().(*dap.TerminatedEvent)
	require.True(t, ok)

	s.send(&dap.NextRequest{Request: s.request("next")})
	s.expectError("execution has ended")

	// The session already reported its end: no second terminated event.
	s.send(&dap.DisconnectRequest{Request: s.request("disconnect")})
	_, ok = s.read().(*dap.DisconnectResponse)
	require.True(t, ok)
}

func TestDAPServer_DisassemblySource(t *testing.T) {
	t.Parallel()
	s := setupDAPSession(t)
	s.initialize()
	s.launch(map[string]any{
		"program":     writeProgram(t, false),
		"invocation":  map[string]any{"args": []any{2, 3}},
		"stopOnEntry": true,
	})
	s.configurationDone()
	s.expectStopped("entry")

	frames := s.stackTrace()
	require.Len(t, frames, 1)
	require.NotNil(t, frames[0].Source)
	ref := frames[0].Source.SourceReference
	require.Positive(t, ref)
	assert.Equal(t, 1, frames[0].Line)
	assert.Equal(t, "0", frames[0].InstructionPointerReference)

	s.send(&dap.SourceRequest{Request: s.request("source"), Arguments: dap.SourceArguments{SourceReference: ref}})
	src, ok := s.read().(*dap.SourceResponse)
	require.True(t, ok)
	assert.Equal(t, DisassemblyMimeType, src.Body.MimeType)
	assert.True(t, strings.HasPrefix(src.Body.Content, "0000 INITSLOT"), src.Body.Content)

	s.send(&dap.SourceRequest{Request: s.request("source"), Arguments: dap.SourceArguments{SourceReference: ref + 1}})
	s.expectError("unknown source reference")

	// Line 4 of the listing is the CALL at address 5.
	s.send(&dap.SetBreakpointsRequest{
		Request: s.request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Name: frames[0].Source.Name, SourceReference: ref},
			Breakpoints: []dap.SourceBreakpoint{{Line: 4}},
		},
	})
	bpResp, ok := s.read().(*dap.SetBreakpointsResponse)
	require.True(t, ok)
	require.Len(t, bpResp.Body.Breakpoints, 1)
	assert.True(t, bpResp.Body.Breakpoints[0].Verified)
	assert.Equal(t, "5", bpResp.Body.Breakpoints[0].InstructionReference)

	s.send(&dap.ContinueRequest{Request: s.request("continue")})
	_, ok = s.read().(*dap.ContinueResponse)
	require.True(t, ok)
	s.expectStopped("breakpoint")
	frames = s.stackTrace()
	assert.Equal(t, 4, frames[0].Line)
}

func TestDAPServer_DebugView(t *testing.T) {
	t.Parallel()
	s := setupDAPSession(t)
	s.initialize()
	s.launch(map[string]any{"program": writeProgram(t, true), "stopOnEntry": true})
	s.configurationDone()
	s.expectStopped("entry")

	frames := s.stackTrace()
	assert.Equal(t, contractDoc, frames[0].Source.Path)

	s.send(&DebugViewRequest{Request: s.request(DebugViewCommand), Arguments: DebugViewArguments{DebugView: "toggle"}})
	resp := s.readRaw()
	assert.True(t, resp.Success)
	assert.Equal(t, DebugViewCommand, resp.Command)
	s.expectStopped("step")

	frames = s.stackTrace()
	assert.Empty(t, frames[0].Source.Path)
	assert.Positive(t, frames[0].Source.SourceReference)

	s.send(&DebugViewRequest{Request: s.request(DebugViewCommand), Arguments: DebugViewArguments{DebugView: "sideways"}})
	s.expectError("unknown debug view")
}

func TestDAPServer_UnknownCommand(t *testing.T) {
	t.Parallel()
	s := setupDAPSession(t)
	s.initialize()

	s.send(&dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: 42, Type: "request"},
		Command:         "frobnicate",
	})
	resp := s.readRaw()
	assert.False(t, resp.Success)
	assert.Equal(t, 42, resp.RequestSeq)

	// The server keeps serving.
	s.initialize()
}

func TestDAPServer_CaughtException(t *testing.T) {
	t.Parallel()
	sb := &neovm.ScriptBuilder{}
	sb.Emit(neovm.TRY, 10, 0)       // 0: catch at 10
	sb.EmitPushData([]byte("boom")) // 3
	sb.Emit(neovm.THROW)            // 9
	sb.Emit(neovm.ENDTRY, 2)        // 10: end at 12
	sb.Emit(neovm.PUSH7)            // 12
	dir := t.TempDir()
	program := filepath.Join(dir, "thrower.nef")
	require.NoError(t, os.WriteFile(program, (&neovm.NEF{Script: sb.Bytes()}).Bytes(), 0o600))

	s := setupDAPSession(t)
	s.initialize()
	s.launch(map[string]any{"program": program})
	s.send(&dap.SetExceptionBreakpointsRequest{
		Request:   s.request("setExceptionBreakpoints"),
		Arguments: dap.SetExceptionBreakpointsArguments{Filters: []string{debugger.ExceptionFilterCaught}},
	})
	_, ok := s.read().(*dap.SetExceptionBreakpointsResponse)
	require.True(t, ok)

	s.configurationDone()
	evt := s.expectStopped("exception")
	assert.Equal(t, "boom", evt.Body.Text)

	s.send(&dap.ExceptionInfoRequest{Request: s.request("exceptionInfo"), Arguments: dap.ExceptionInfoArguments{ThreadId: neoThreadID}})
	info, ok := s.read().(*dap.ExceptionInfoResponse)
	require.True(t, ok)
	assert.Equal(t, "ByteString", info.Body.ExceptionId)
	assert.Equal(t, "boom", info.Body.Description)
	assert.Equal(t, dap.ExceptionBreakMode("always"), info.Body.BreakMode)
}

func TestDAPServer_Terminate(t *testing.T) {
	t.Parallel()
	s := setupDAPSession(t)
	s.initialize()
	s.launch(map[string]any{"program": writeProgram(t, true), "stopOnEntry": true})
	s.configurationDone()
	s.expectStopped("entry")

	s.send(&dap.TerminateRequest{Request: s.request("terminate")})
	_, ok := s.read().(*dap.TerminateResponse)
	require.True(t, ok)
	_, ok = s.read().(*dap.TerminatedEvent)
	require.True(t, ok)

	s.send(&dap.ThreadsRequest{Request: s.request("threads")})
	s.expectError("session not launched")
}

func TestDAPServer_Launcher(t *testing.T) {
	t.Parallel()
	var got *debugger.LaunchConfig
	launcher := func(ctx context.Context, cfg *debugger.LaunchConfig, opts ...debugger.Option) (*debugger.Session, error) {
		got = cfg
		return nil, errors.New("launcher refused")
	}
	s := setupDAPSession(t, WithLauncher(launcher))
	s.initialize()

	raw, err := json.Marshal(map[string]any{"program": "x.nef", "return-types": []string{"int"}})
	require.NoError(t, err)
	s.send(&dap.LaunchRequest{Request: s.request("launch"), Arguments: raw})
	s.expectError("launcher refused")
	require.NotNil(t, got)
	assert.Equal(t, "x.nef", got.Program)
	assert.Equal(t, []string{"int"}, got.ReturnTypes)
}

func TestDAPServer_ServeListener(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close() //nolint:errcheck

	srv := New(WithLogger(quietLogger()))
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ServeListener(ln)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck
	reader := bufio.NewReader(conn)

	sendDAPRequest(t, conn, &dap.InitializeRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
			Command:         "initialize",
		},
	})
	_, ok := readDAPMessage(t, reader).(*dap.InitializeResponse)
	require.True(t, ok)

	sendDAPRequest(t, conn, &dap.DisconnectRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 2, Type: "request"},
			Command:         "disconnect",
		},
	})
	_, ok = readDAPMessage(t, reader).(*dap.DisconnectResponse)
	require.True(t, ok)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after disconnect")
	}
}

func TestDAPServer_ServeStdio(t *testing.T) {
	t.Parallel()
	var in strings.Builder
	require.NoError(t, dap.WriteProtocolMessage(&in, &dap.InitializeRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
			Command:         "initialize",
		},
	}))
	var out strings.Builder
	srv := New(WithLogger(quietLogger()))
	require.NoError(t, srv.ServeStdio(strings.NewReader(in.String()), &out))

	msg, err := dap.ReadProtocolMessage(bufio.NewReader(strings.NewReader(out.String())))
	require.NoError(t, err)
	_, ok := msg.(*dap.InitializeResponse)
	assert.True(t, ok)
}
