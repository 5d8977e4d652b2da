package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"testmcp/internal/jsonrpc"
	"testmcp/internal/logging"
)

// Server answers MCP requests one at a time. It is not safe for concurrent
// use; Serve drives it from a single goroutine.
type Server struct {
	info             Implementation
	protocolVersion  string
	initialized      bool
	fs               afero.Fs
	lookupEnv        func(string) (string, bool)
	maskSensitiveEnv bool
	logger           *slog.Logger
}

type Option func(*Server)

// WithInfo overrides the advertised server name and version.
func WithInfo(info Implementation) Option {
	return func(s *Server) { s.info = info }
}

func WithProtocolVersion(version string) Option {
	return func(s *Server) { s.protocolVersion = version }
}

// WithFs sets the filesystem list_files reads from.
func WithFs(fs afero.Fs) Option {
	return func(s *Server) { s.fs = fs }
}

// WithLookupEnv sets the environment lookup used by get_env.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(s *Server) { s.lookupEnv = lookup }
}

// WithMaskSensitiveEnv makes get_env hide values of secret-looking variables.
func WithMaskSensitiveEnv(mask bool) Option {
	return func(s *Server) { s.maskSensitiveEnv = mask }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		info:            Implementation{Name: "test-mcp-server", Version: "1.0.0"},
		protocolVersion: "2024-11-05",
		fs:              afero.NewOsFs(),
		lookupEnv:       os.LookupEnv,
		logger:          logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialized reports whether an initialize request has been handled.
func (s *Server) Initialized() bool {
	return s.initialized
}

// Serve reads requests from r until EOF and writes one response line per
// non-empty input line to w. It returns nil at EOF and ctx.Err() if the
// context is cancelled between lines.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := jsonrpc.NewReader(r)
	writer := jsonrpc.NewWriter(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadLine()
		if errors.Is(err, io.EOF) {
			s.logger.Debug("input closed")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading request: %w", err)
		}

		resp := s.HandleLine(ctx, line)
		if resp == nil {
			continue
		}
		if err := writer.Write(resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
}

// HandleLine decodes and handles one input line. Blank lines return nil and
// must produce no output.
func (s *Server) HandleLine(ctx context.Context, line []byte) *jsonrpc.Response {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	req, err := jsonrpc.ParseRequest(line)
	if err != nil {
		var rpcErr *jsonrpc.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = jsonrpc.NewError(jsonrpc.CodeInternalError, "Internal error: %v", err)
		}
		s.logger.Warn("rejected input line", "code", rpcErr.Code, "error", rpcErr.Message)
		return jsonrpc.NewErrorResponse(nil, rpcErr)
	}
	return s.Handle(ctx, req)
}

// Handle dispatches one request and always returns a response. Panics and
// unexpected errors become internal errors with a null id.
func (s *Server) Handle(ctx context.Context, req *jsonrpc.Request) (resp *jsonrpc.Response) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while handling request", "method", req.Method, "panic", r)
			resp = jsonrpc.NewErrorResponse(nil, jsonrpc.NewError(jsonrpc.CodeInternalError, "Internal error: %v", r))
		}
		attrs := []any{"method", req.Method, "id", string(req.ID), "duration", time.Since(start)}
		if resp.Error != nil {
			attrs = append(attrs, "code", resp.Error.Code)
		}
		s.logger.Debug("handled request", attrs...)
	}()

	var (
		result any
		err    error
	)
	switch req.Method {
	case MethodInitialize:
		result = s.initialize()
	case MethodToolsList:
		result, err = s.listTools()
	case MethodToolsCall:
		result, err = s.callTool(ctx, req.Params)
	default:
		return jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.NewError(jsonrpc.CodeMethodNotFound, "Unknown method: %s", req.Method))
	}

	if err != nil {
		var rpcErr *jsonrpc.Error
		if errors.As(err, &rpcErr) {
			return jsonrpc.NewErrorResponse(req.ID, rpcErr)
		}
		s.logger.Warn("internal error", "method", req.Method, "error", err)
		return jsonrpc.NewErrorResponse(nil, jsonrpc.NewError(jsonrpc.CodeInternalError, "Internal error: %v", err))
	}

	resp, err = jsonrpc.NewResult(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(nil, jsonrpc.NewError(jsonrpc.CodeInternalError, "Internal error: %v", err))
	}
	return resp
}

func (s *Server) initialize() *InitializeResult {
	if !s.initialized {
		s.logger.Info("client initialized", "server", s.info.Name, "protocol", s.protocolVersion)
	}
	s.initialized = true
	return &InitializeResult{
		ProtocolVersion: s.protocolVersion,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
		ServerInfo:      s.info,
	}
}

func (s *Server) listTools() (*ListToolsResult, error) {
	if !s.initialized {
		return nil, errNotInitialized()
	}
	return &ListToolsResult{Tools: Tools()}, nil
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (*CallToolResult, error) {
	if !s.initialized {
		return nil, errNotInitialized()
	}

	var params CallToolParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("decoding tools/call params: %w", err)
		}
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return nil, jsonrpc.NewError(jsonrpc.CodeServerError, "Unknown tool: %s", params.Name)
	}

	if s.logger.Enabled(ctx, slog.LevelDebug) {
		s.logger.Debug("calling tool", "tool", params.Name, "arguments", MaskArguments(params.Arguments))
	}
	return handler(ctx, s, params.Arguments)
}

func errNotInitialized() *jsonrpc.Error {
	return jsonrpc.NewError(jsonrpc.CodeServerError, "Server not initialized")
}
