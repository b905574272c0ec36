// Copyright © 2018 The ELPS authors

// Package dapserver implements a DAP (Debug Adapter Protocol) server for
// the NeoVM debugger. It translates between the DAP wire protocol and
// debugger.Session.
//
// The server supports two transport modes:
//   - TCP: The server listens on a TCP port and accepts a single client
//     connection ("neodbg debug --port 4711").
//   - Stdio: The server reads from stdin and writes to stdout, as expected
//     by editors like VS Code when launching a debug adapter as a child
//     process ("neodbg debug --stdio").
package dapserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
	"github.com/neo-project/neo-debugger-sub000/debugger"
	log "github.com/sirupsen/logrus"
)

// LaunchFunc builds a session from launch arguments. debugger.Launch is
// the default.
type LaunchFunc func(ctx context.Context, cfg *debugger.LaunchConfig, opts ...debugger.Option) (*debugger.Session, error)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger of the server and of the sessions it
// launches.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithLauncher replaces the function that builds sessions.
func WithLauncher(fn LaunchFunc) Option {
	return func(s *Server) {
		s.launch = fn
	}
}

// WithContext sets the context sessions are launched with.
func WithContext(ctx context.Context) Option {
	return func(s *Server) {
		s.ctx = ctx
	}
}

// Server is a DAP protocol server for one debug session.
type Server struct {
	ctx    context.Context
	launch LaunchFunc
	logger *log.Entry

	mu     sync.Mutex
	seq    int
	writer io.Writer
	reader *bufio.Reader

	// done is closed when the server should stop processing messages.
	done chan struct{}
}

// New creates a DAP server.
func New(opts ...Option) *Server {
	s := &Server{
		ctx:    context.Background(),
		launch: debugger.Launch,
		logger: log.NewEntry(log.StandardLogger()),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "dap")
	return s
}

// ServeConn serves DAP messages on a single connection. It blocks until
// the connection is closed or a disconnect request is received.
func (s *Server) ServeConn(conn io.ReadWriteCloser) error {
	defer conn.Close() //nolint:errcheck // best-effort cleanup
	return s.serve(conn, conn)
}

// ServeTCP listens on the given address and serves a single DAP client.
// It blocks until the client disconnects.
func (s *Server) ServeTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close() //nolint:errcheck // best-effort cleanup
	s.logger.WithField("addr", ln.Addr().String()).Info("listening")
	return s.ServeListener(ln)
}

// ServeListener accepts a single connection from the listener and serves
// DAP messages on it.
func (s *Server) ServeListener(ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	s.logger.WithField("remote", conn.RemoteAddr().String()).Info("client connected")
	return s.ServeConn(conn)
}

// ServeStdio serves DAP messages on the given reader and writer,
// typically os.Stdin and os.Stdout.
func (s *Server) ServeStdio(r io.Reader, w io.Writer) error {
	return s.serve(r, w)
}

func (s *Server) serve(r io.Reader, w io.Writer) error {
	s.mu.Lock()
	s.writer = w
	s.reader = bufio.NewReader(r)
	s.mu.Unlock()

	h := newHandler(s)
	defer h.closeSession()

	for {
		select {
		case <-s.done:
			return nil
		default:
		}

		msg, err := s.readMessage()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			var fieldErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fieldErr) {
				s.logger.WithError(err).Error("undecodable message")
				h.sendError(fieldErr.Seq, fieldErr.FieldValue, err)
				continue
			}
			return err
		}

		h.handle(msg)
	}
}

// readMessage reads one message. Requests go-dap does not know are
// decoded here when they are custom requests of this adapter.
func (s *Server) readMessage() (dap.Message, error) {
	content, err := dap.ReadBaseMessage(s.reader)
	if err != nil {
		return nil, err
	}
	msg, err := dap.DecodeProtocolMessage(content)
	if err == nil {
		return msg, nil
	}
	var fieldErr *dap.DecodeProtocolMessageFieldError
	if errors.As(err, &fieldErr) && fieldErr.SubType == "request" && fieldErr.FieldName == "command" {
		if custom, ok := decodeCustomRequest(fieldErr.FieldValue, content); ok {
			return custom, nil
		}
	}
	return nil, err
}

func decodeCustomRequest(command string, content []byte) (dap.Message, bool) {
	switch command {
	case DebugViewCommand:
		req := &DebugViewRequest{}
		if err := json.Unmarshal(content, req); err != nil {
			return nil, false
		}
		return req, true
	}
	return nil, false
}

// send writes a DAP protocol message to the client.
// The caller is responsible for setting the Seq field before calling send
// (via the newResponse/newEvent helpers which call nextSeq).
func (s *Server) send(msg dap.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dap.WriteProtocolMessage(s.writer, msg)
}

// nextSeq returns the next sequence number for outgoing messages.
func (s *Server) nextSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// close signals the server to stop processing messages.
func (s *Server) close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
