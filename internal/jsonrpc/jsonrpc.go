// Package jsonrpc implements the newline-delimited JSON-RPC 2.0 framing used
// by the stdio transport.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the only protocol version accepted and emitted.
const Version = "2.0"

// Reserved and server-defined error codes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Request is a decoded JSON-RPC request. ID is kept as raw bytes so it can be
// echoed back exactly as received.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON accepts any JSON type for jsonrpc and method. A method that
// is not a string keeps its raw JSON text so it can be reported as unknown;
// a non-string jsonrpc is dropped.
func (r *Request) UnmarshalJSON(data []byte) error {
	var wire struct {
		JSONRPC json.RawMessage `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  json.RawMessage `json:"method"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*r = Request{ID: wire.ID, Params: wire.Params}
	if json.Unmarshal(wire.JSONRPC, &r.JSONRPC) != nil {
		r.JSONRPC = ""
	}
	if len(wire.Method) > 0 && string(wire.Method) != "null" {
		if err := json.Unmarshal(wire.Method, &r.Method); err != nil {
			r.Method = string(wire.Method)
		}
	}
	return nil
}

// Response carries exactly one of Result or Error. A nil ID encodes as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object. It doubles as a Go error so handlers can
// return it directly.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError builds an error object with a formatted message.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ParseRequest decodes one trimmed input line. Malformed JSON yields a parse
// error; well-formed JSON that is not a request object yields an internal
// error. Both are returned as *Error.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, NewError(CodeParseError, "Parse error: %v", err)
		}
		return nil, NewError(CodeInternalError, "Internal error: %v", err)
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, NewError(CodeInternalError, "Internal error: request is not a JSON object")
	}
	return &req, nil
}

// ParseResponse decodes one response line.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if resp.Result == nil && resp.Error == nil {
		return nil, fmt.Errorf("response has neither result nor error")
	}
	return &resp, nil
}

// NewRequest builds a request with a numeric id. A negative id produces a
// notification without an id.
func NewRequest(id int, method string, params any) (*Request, error) {
	req := &Request{JSONRPC: Version, Method: method}
	if id >= 0 {
		req.ID = json.RawMessage(fmt.Sprintf("%d", id))
	}
	if params != nil {
		raw, err := Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding params: %w", err)
		}
		req.Params = raw
	}
	return req, nil
}

// NewResult builds a success response.
func NewResult(id json.RawMessage, result any) (*Response, error) {
	raw, err := Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id json.RawMessage, e *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: e}
}

// Marshal encodes v as compact JSON without HTML escaping, so text payloads
// reach the client byte-for-byte.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
