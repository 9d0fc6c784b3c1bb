package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/llamabridge/internal/config"
	"github.com/wagiedev/llamabridge/internal/errors"
)

const (
	// PromptTool is the name of the tool that dispatches a request.
	PromptTool = "prompt"
	// StatusTool is the name of the tool that reports process state.
	StatusTool = "status"
)

// Server is a config.Transport that serves MCP tool calls. Each prompt call
// dispatches one request and waits for the next published reply.
type Server struct {
	log       *slog.Logger
	server    *mcp.Server
	transport mcp.Transport
	timeout   time.Duration
	status    StatusFunc

	callMu sync.Mutex // one outstanding prompt call

	mu      sync.Mutex
	handle  config.RequestHandler
	waiter  chan string
	closed  bool
	closeCh chan struct{}
}

// Compile-time verification that Server implements config.Transport.
var _ config.Transport = (*Server)(nil)

// ServerOptions configures a Server.
type ServerOptions struct {
	// Version is reported in the MCP initialize response.
	Version string
	// Timeout bounds the wait for a reply to one prompt call.
	Timeout time.Duration
	// Status backs the status tool. If nil, the tool is not registered.
	Status StatusFunc
	// Transport carries the MCP session. Defaults to stdio.
	Transport mcp.Transport
}

// NewServer creates an MCP server transport.
func NewServer(log *slog.Logger, opts ServerOptions) *Server {
	transport := opts.Transport
	if transport == nil {
		transport = &mcp.StdioTransport{}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = config.DefaultResponseTimeout
	}

	s := &Server{
		log:       log.With("component", "mcp_transport"),
		server:    mcp.NewServer(&mcp.Implementation{Name: "llamabridge", Version: opts.Version}, nil),
		transport: transport,
		timeout:   timeout,
		status:    opts.Status,
		closeCh:   make(chan struct{}),
	}

	s.server.AddTool(
		NewTool(PromptTool, "Send text to the local model and return its reply.",
			StringSchema(map[string]string{"text": "Request text, one instruction."})),
		s.handlePrompt,
	)

	if s.status != nil {
		s.server.AddTool(
			NewTool(StatusTool, "Report whether the model process is running.",
				StringSchema(nil)),
			s.handleStatus,
		)
	}

	return s
}

// Serve runs the MCP session until ctx is done or the peer disconnects.
func (s *Server) Serve(ctx context.Context, handle config.RequestHandler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return errors.ErrTransportClosed
	}

	s.handle = handle
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.closeCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, s.transport)
	if err != nil && ctx.Err() != nil {
		return nil
	}

	return err
}

// Publish hands text to the prompt call waiting for it. Replies that arrive
// with no call waiting are dropped.
func (s *Server) Publish(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrTransportClosed
	}

	if s.waiter == nil {
		s.log.Warn("Reply with no waiting call, dropping", "text_len", len(text))

		return nil
	}

	s.waiter <- text
	s.waiter = nil

	return nil
}

// Close stops Serve.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.closeCh)
	}

	return nil
}

func (s *Server) handlePrompt(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := ParseArguments(req)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	text, _ := args["text"].(string)
	if strings.TrimSpace(text) == "" {
		return ErrorResult(errors.ErrEmptyRequest.Error()), nil
	}

	s.callMu.Lock()
	defer s.callMu.Unlock()

	reply, err := s.roundTrip(ctx, text)
	if err != nil {
		s.log.Warn("Prompt call failed", "error", err)

		return ErrorResult(err.Error()), nil
	}

	return TextResult(reply), nil
}

func (s *Server) roundTrip(ctx context.Context, text string) (string, error) {
	waiter := make(chan string, 1)

	s.mu.Lock()
	handle := s.handle
	s.waiter = waiter
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.waiter == waiter {
			s.waiter = nil
		}
		s.mu.Unlock()
	}()

	if handle == nil {
		return "", stderrors.New("server is not serving")
	}

	if err := handle(ctx, text); err != nil {
		return "", err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case reply := <-waiter:
		return reply, nil
	case <-timer.C:
		return "", fmt.Errorf("%w after %s", errors.ErrResponseTimeout, s.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Server) handleStatus(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(s.status())
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	return TextResult(string(data)), nil
}
