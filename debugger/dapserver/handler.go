// Copyright © 2018 The ELPS authors

package dapserver

import (
	"errors"
	"fmt"

	"github.com/google/go-dap"
	"github.com/neo-project/neo-debugger-sub000/debugger"
	log "github.com/sirupsen/logrus"
)

// FailedEvaluationAttribute marks the presentation hint of an evaluate
// response whose expression could not be evaluated. The result then holds
// the reason.
const FailedEvaluationAttribute = "failedEvaluation"

// handler dispatches incoming DAP messages to the session. Requests are
// handled one at a time on the server goroutine.
type handler struct {
	server *Server
	logger *log.Entry

	session     *debugger.Session
	stopOnEntry bool

	// While a request runs, session events are queued so that they reach
	// the client after the request's response.
	buffering bool
	queued    []dap.Message
}

func newHandler(s *Server) *handler {
	return &handler{
		server: s,
		logger: s.logger,
	}
}

// send sends a DAP message and logs any write error.
func (h *handler) send(msg dap.Message) {
	if err := h.server.send(msg); err != nil {
		h.logger.WithError(err).Error("send failed")
	}
}

func (h *handler) handle(msg dap.Message) {
	if req, ok := msg.(dap.RequestMessage); ok {
		r := req.GetRequest()
		h.logger.WithFields(log.Fields{"command": r.Command, "seq": r.Seq}).Debug("request")
	}
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		h.onInitialize(req)
	case *dap.LaunchRequest:
		h.onLaunch(req)
	case *dap.DisconnectRequest:
		h.onDisconnect(req)
	case *dap.TerminateRequest:
		h.onTerminate(req)
	case dap.RequestMessage:
		if h.session == nil {
			r := req.GetRequest()
			h.sendError(r.Seq, r.Command, debugger.ErrNotLaunched)
			return
		}
		h.handleSession(req)
	default:
		h.logger.Errorf("unhandled message type: %T", msg)
	}
}

// handleSession dispatches requests that need a launched session.
func (h *handler) handleSession(msg dap.RequestMessage) {
	switch req := msg.(type) {
	case *dap.SetBreakpointsRequest:
		h.onSetBreakpoints(req)
	case *dap.SetExceptionBreakpointsRequest:
		h.onSetExceptionBreakpoints(req)
	case *dap.ConfigurationDoneRequest:
		h.onConfigurationDone(req)
	case *dap.ThreadsRequest:
		h.onThreads(req)
	case *dap.StackTraceRequest:
		h.onStackTrace(req)
	case *dap.ScopesRequest:
		h.onScopes(req)
	case *dap.VariablesRequest:
		h.onVariables(req)
	case *dap.EvaluateRequest:
		h.onEvaluate(req)
	case *dap.SourceRequest:
		h.onSource(req)
	case *dap.ExceptionInfoRequest:
		h.onExceptionInfo(req)
	case *dap.ContinueRequest:
		resp := &dap.ContinueResponse{}
		resp.Response = h.newResponse(req.Seq, req.Command)
		resp.Body.AllThreadsContinued = true
		h.run(req.Seq, req.Command, resp, h.session.Continue)
	case *dap.NextRequest:
		resp := &dap.NextResponse{}
		resp.Response = h.newResponse(req.Seq, req.Command)
		h.run(req.Seq, req.Command, resp, h.session.StepOver)
	case *dap.StepInRequest:
		resp := &dap.StepInResponse{}
		resp.Response = h.newResponse(req.Seq, req.Command)
		h.run(req.Seq, req.Command, resp, h.session.StepIn)
	case *dap.StepOutRequest:
		resp := &dap.StepOutResponse{}
		resp.Response = h.newResponse(req.Seq, req.Command)
		h.run(req.Seq, req.Command, resp, h.session.StepOut)
	case *dap.ReverseContinueRequest:
		resp := &dap.ReverseContinueResponse{}
		resp.Response = h.newResponse(req.Seq, req.Command)
		h.run(req.Seq, req.Command, resp, h.session.ReverseContinue)
	case *dap.StepBackRequest:
		resp := &dap.StepBackResponse{}
		resp.Response = h.newResponse(req.Seq, req.Command)
		h.run(req.Seq, req.Command, resp, h.session.StepBack)
	case *DebugViewRequest:
		h.onDebugView(req)
	default:
		r := msg.GetRequest()
		h.sendError(r.Seq, r.Command, fmt.Errorf("unsupported command %q", r.Command))
	}
}

func (h *handler) onInitialize(req *dap.InitializeRequest) {
	resp := &dap.InitializeResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body = dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsEvaluateForHovers:        true,
		SupportsStepBack:                 true,
		SupportsExceptionInfoRequest:     true,
		SupportsTerminateRequest:         true,
		SupportTerminateDebuggee:         true,
		ExceptionBreakpointFilters: []dap.ExceptionBreakpointsFilter{
			{
				Filter:  debugger.ExceptionFilterCaught,
				Label:   "Caught Exceptions",
				Default: false,
			},
		},
	}
	h.send(resp)
}

// onLaunch builds the session. The initialized event follows, since
// breakpoints can only be resolved once the contract is loaded.
func (h *handler) onLaunch(req *dap.LaunchRequest) {
	if h.session != nil {
		h.sendError(req.Seq, req.Command, errors.New("session already launched"))
		return
	}
	cfg, err := debugger.DecodeLaunchConfig(req.Arguments)
	if err != nil {
		h.sendError(req.Seq, req.Command, err)
		return
	}
	session, err := h.server.launch(h.server.ctx, cfg,
		debugger.WithEventCallback(h.onEvent),
		debugger.WithLogger(h.logger.WithField("component", "session")))
	if err != nil {
		h.sendError(req.Seq, req.Command, err)
		return
	}
	h.session = session
	h.stopOnEntry = cfg.StopOnEntry

	resp := &dap.LaunchResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)
	h.send(&dap.InitializedEvent{
		Event: h.newEvent("initialized"),
	})
}

func (h *handler) onSetBreakpoints(req *dap.SetBreakpointsRequest) {
	src := req.Arguments.Source
	key := src.Path
	if src.SourceReference > 0 {
		dis, ok := h.session.Disassembler().Lookup(src.SourceReference)
		if !ok {
			h.sendError(req.Seq, req.Command, fmt.Errorf("unknown source reference %d", src.SourceReference))
			return
		}
		key = dis.ScriptHash.String()
	}
	if key == "" {
		key = src.Name
	}

	bps := h.session.Breakpoints().SetBreakpoints(key, translateSourceBreakpoints(req.Arguments.Breakpoints))

	resp := &dap.SetBreakpointsResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Breakpoints = translateBreakpoints(bps, src)
	h.send(resp)
}

func (h *handler) onSetExceptionBreakpoints(req *dap.SetExceptionBreakpointsRequest) {
	h.session.Breakpoints().SetExceptionFilters(req.Arguments.Filters)

	resp := &dap.SetExceptionBreakpointsResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)
}

func (h *handler) onConfigurationDone(req *dap.ConfigurationDoneRequest) {
	resp := &dap.ConfigurationDoneResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.run(req.Seq, req.Command, resp, func() error {
		return h.session.Start(h.stopOnEntry)
	})
}

func (h *handler) onThreads(req *dap.ThreadsRequest) {
	resp := &dap.ThreadsResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Threads = []dap.Thread{
		{Id: neoThreadID, Name: "NeoVM"},
	}
	h.send(resp)
}

func (h *handler) onStackTrace(req *dap.StackTraceRequest) {
	frames, total := h.session.StackFrames(req.Arguments.StartFrame, req.Arguments.Levels)

	resp := &dap.StackTraceResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.StackFrames = translateStackFrames(frames)
	resp.Body.TotalFrames = total
	h.send(resp)
}

func (h *handler) onScopes(req *dap.ScopesRequest) {
	resp := &dap.ScopesResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Scopes = translateScopes(h.session.Scopes(req.Arguments.FrameId))
	h.send(resp)
}

func (h *handler) onVariables(req *dap.VariablesRequest) {
	vars, err := h.session.Variables(req.Arguments.VariablesReference)
	if err != nil {
		h.sendError(req.Seq, req.Command, err)
		return
	}
	resp := &dap.VariablesResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Variables = pageVariables(translateVariables(vars), req.Arguments.Start, req.Arguments.Count)
	h.send(resp)
}

func (h *handler) onEvaluate(req *dap.EvaluateRequest) {
	result := h.session.Evaluate(req.Arguments.Expression, req.Arguments.FrameId)
	resp := &dap.EvaluateResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	if !result.Success {
		h.logger.WithFields(log.Fields{
			"seq":        req.Seq,
			"expression": req.Arguments.Expression,
			"reason":     result.Message,
		}).Debug("evaluation failed")
		resp.Body.Result = result.Message
		resp.Body.PresentationHint = &dap.VariablePresentationHint{
			Attributes: []string{FailedEvaluationAttribute},
		}
		h.send(resp)
		return
	}
	resp.Body.Result = result.Result
	resp.Body.Type = result.Type
	resp.Body.VariablesReference = result.VariablesReference
	h.send(resp)
}

func (h *handler) onSource(req *dap.SourceRequest) {
	ref := req.Arguments.SourceReference
	if req.Arguments.Source != nil && req.Arguments.Source.SourceReference > 0 {
		ref = req.Arguments.Source.SourceReference
	}
	dis, ok := h.session.Disassembler().Lookup(ref)
	if !ok {
		h.sendError(req.Seq, req.Command, fmt.Errorf("unknown source reference %d", ref))
		return
	}
	resp := &dap.SourceResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Content = dis.Source
	resp.Body.MimeType = DisassemblyMimeType
	h.send(resp)
}

func (h *handler) onExceptionInfo(req *dap.ExceptionInfoRequest) {
	info, ok := h.session.ExceptionInfo()
	if !ok {
		h.sendError(req.Seq, req.Command, errors.New("no exception"))
		return
	}
	resp := &dap.ExceptionInfoResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.ExceptionId = info.ExceptionID
	resp.Body.Description = info.Description
	resp.Body.BreakMode = dap.ExceptionBreakMode(info.BreakMode)
	h.send(resp)
}

// onDebugView switches the view and, while paused, reports a fresh stop so
// the client redraws its frames.
func (h *handler) onDebugView(req *DebugViewRequest) {
	if err := h.session.SetDebugView(req.Arguments.DebugView); err != nil {
		h.sendError(req.Seq, req.Command, err)
		return
	}
	h.send(&dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: h.server.nextSeq(), Type: "response"},
		RequestSeq:      req.Seq,
		Success:         true,
		Command:         req.Command,
	})
	if !h.session.Finished() {
		h.sendStoppedEvent(debugger.StopStep)
	}
}

func (h *handler) onTerminate(req *dap.TerminateRequest) {
	resp := &dap.TerminateResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)
	if h.closeSession() {
		h.send(&dap.TerminatedEvent{
			Event: h.newEvent("terminated"),
		})
	}
}

func (h *handler) onDisconnect(req *dap.DisconnectRequest) {
	resp := &dap.DisconnectResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)
	if h.closeSession() {
		h.send(&dap.TerminatedEvent{
			Event: h.newEvent("terminated"),
		})
	}
	h.server.close()
}

// closeSession closes the session, if any, and reports whether it had not
// yet reported its end.
func (h *handler) closeSession() bool {
	if h.session == nil {
		return false
	}
	running := !h.session.Finished()
	h.session.Close()
	h.session = nil
	return running
}

// run executes a session operation, then sends either resp or an error
// response followed by the events the operation produced.
func (h *handler) run(seq int, command string, resp dap.Message, op func() error) {
	h.buffering = true
	err := op()
	h.buffering = false
	if err != nil {
		h.sendError(seq, command, err)
	} else {
		h.send(resp)
	}
	queued := h.queued
	h.queued = nil
	for _, msg := range queued {
		h.send(msg)
	}
}

// onEvent forwards session events to the client.
func (h *handler) onEvent(evt debugger.Event) {
	var msg dap.Message
	switch evt.Type {
	case debugger.EventStopped:
		msg = h.stoppedEvent(evt.Reason)
	case debugger.EventOutput:
		out := &dap.OutputEvent{Event: h.newEvent("output")}
		out.Body.Category = string(evt.Category)
		out.Body.Output = evt.Output
		msg = out
	case debugger.EventExited:
		exited := &dap.ExitedEvent{Event: h.newEvent("exited")}
		exited.Body.ExitCode = evt.ExitCode
		msg = exited
	case debugger.EventTerminated:
		msg = &dap.TerminatedEvent{Event: h.newEvent("terminated")}
	default:
		return
	}
	if h.buffering {
		h.queued = append(h.queued, msg)
		return
	}
	h.send(msg)
}

func (h *handler) stoppedEvent(reason debugger.StopReason) *dap.StoppedEvent {
	evt := &dap.StoppedEvent{
		Event: h.newEvent("stopped"),
	}
	evt.Body.Reason = string(reason)
	evt.Body.ThreadId = neoThreadID
	evt.Body.AllThreadsStopped = true
	if reason == debugger.StopException && h.session != nil {
		if info, ok := h.session.ExceptionInfo(); ok {
			evt.Body.Text = info.Description
		}
	}
	return evt
}

// sendStoppedEvent sends a DAP stopped event to the client.
func (h *handler) sendStoppedEvent(reason debugger.StopReason) {
	h.send(h.stoppedEvent(reason))
}

// sendError sends a failed response carrying err's message.
func (h *handler) sendError(seq int, command string, err error) {
	h.logger.WithError(err).WithFields(log.Fields{"command": command, "seq": seq}).Error("request failed")
	resp := &dap.ErrorResponse{}
	resp.Response = h.newResponse(seq, command)
	resp.Success = false
	resp.Message = err.Error()
	resp.Body.Error = &dap.ErrorMessage{
		Id:     1,
		Format: err.Error(),
	}
	h.send(resp)
}

// --- helpers ---

func (h *handler) newResponse(reqSeq int, command string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: h.server.nextSeq(), Type: "response"},
		RequestSeq:      reqSeq,
		Success:         true,
		Command:         command,
	}
}

func (h *handler) newEvent(event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: h.server.nextSeq(), Type: "event"},
		Event:           event,
	}
}
