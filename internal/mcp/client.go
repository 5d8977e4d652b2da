package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"testmcp/internal/jsonrpc"
)

// ErrClosed is returned when the server closes its output before answering.
var ErrClosed = errors.New("server closed the connection")

// Client speaks the line protocol to a server over a reader/writer pair. It
// issues one request at a time. After a call fails because its context ended,
// the client is unusable since a read may still be pending.
type Client struct {
	r      *jsonrpc.Reader
	w      *jsonrpc.Writer
	nextID int
	broken error
}

func NewClient(r io.Reader, w io.Writer) *Client {
	return &Client{
		r:      jsonrpc.NewReader(r),
		w:      jsonrpc.NewWriter(w),
		nextID: 1,
	}
}

// Call sends one request and waits for the next response line. Protocol
// errors are returned as *jsonrpc.Error alongside the response.
func (c *Client) Call(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	if c.broken != nil {
		return nil, c.broken
	}

	req, err := jsonrpc.NewRequest(c.nextID, method, params)
	if err != nil {
		return nil, err
	}
	c.nextID++

	if err := c.w.Write(req); err != nil {
		return nil, fmt.Errorf("sending %s: %w", method, err)
	}

	type readResult struct {
		line []byte
		err  error
	}
	done := make(chan readResult, 1)
	go func() {
		line, err := c.readNonEmpty()
		done <- readResult{line, err}
	}()

	select {
	case <-ctx.Done():
		c.broken = fmt.Errorf("waiting for %s: %w", method, ctx.Err())
		return nil, c.broken
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return nil, fmt.Errorf("waiting for %s: %w", method, ErrClosed)
			}
			return nil, fmt.Errorf("waiting for %s: %w", method, res.err)
		}
		resp, err := jsonrpc.ParseResponse(res.line)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		if resp.Error != nil {
			return resp, resp.Error
		}
		return resp, nil
	}
}

func (c *Client) readNonEmpty() ([]byte, error) {
	for {
		line, err := c.r.ReadLine()
		if err != nil {
			return nil, err
		}
		if line = bytes.TrimSpace(line); len(line) > 0 {
			return line, nil
		}
	}
}

// Initialize performs the handshake.
func (c *Client) Initialize(ctx context.Context, clientInfo Implementation, protocolVersion string) (*InitializeResult, error) {
	var result InitializeResult
	err := c.callInto(ctx, MethodInitialize, InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result ListToolsResult
	if err := c.callInto(ctx, MethodToolsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool by name. A nil arguments map sends no arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*CallToolResult, error) {
	params := map[string]any{"name": name}
	if arguments != nil {
		params["arguments"] = arguments
	}

	var result CallToolResult
	if err := c.callInto(ctx, MethodToolsCall, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) callInto(ctx context.Context, method string, params any, out any) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

// ConnectInProcess runs srv on a pair of pipes and returns a client wired to
// it. Closing the returned closer ends the session and waits for Serve to
// return.
func ConnectInProcess(ctx context.Context, srv *Server) (*Client, io.Closer) {
	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()

	done := make(chan error, 1)
	go func() {
		err := srv.Serve(ctx, serverIn, serverOut)
		serverOut.CloseWithError(err)
		serverIn.Close()
		done <- err
	}()

	return NewClient(clientIn, clientOut), &inProcessSession{
		clientOut: clientOut,
		clientIn:  clientIn,
		done:      done,
	}
}

type inProcessSession struct {
	clientOut *io.PipeWriter
	clientIn  *io.PipeReader
	done      chan error
}

func (s *inProcessSession) Close() error {
	s.clientOut.Close()
	s.clientIn.Close()
	err := <-s.done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
