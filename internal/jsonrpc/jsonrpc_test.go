package jsonrpc

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantCode int
		wantID   string
		method   string
	}{
		{
			name:   "numeric id",
			line:   `{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
			wantID: "1",
			method: "initialize",
		},
		{
			name:   "string id",
			line:   `{"jsonrpc":"2.0","id":"abc","method":"tools/list","params":{}}`,
			wantID: `"abc"`,
			method: "tools/list",
		},
		{
			name:   "absent id",
			line:   `{"jsonrpc":"2.0","method":"tools/list"}`,
			method: "tools/list",
		},
		{
			name:     "truncated object",
			line:     `{"jsonrpc":"2.0","id":1`,
			wantCode: CodeParseError,
		},
		{
			name:     "not json",
			line:     `hello world`,
			wantCode: CodeParseError,
		},
		{
			name:     "array instead of object",
			line:     `[1,2,3]`,
			wantCode: CodeInternalError,
		},
		{
			name:     "null literal",
			line:     `null`,
			wantCode: CodeInternalError,
		},
		{
			name:   "numeric method keeps its raw text",
			line:   `{"jsonrpc":"2.0","id":1,"method":5}`,
			wantID: "1",
			method: "5",
		},
		{
			name:   "object method keeps its raw text",
			line:   `{"jsonrpc":"2.0","id":2,"method":{"a":1}}`,
			wantID: "2",
			method: `{"a":1}`,
		},
		{
			name:   "null method",
			line:   `{"jsonrpc":"2.0","id":3,"method":null}`,
			wantID: "3",
		},
		{
			name:   "non-string jsonrpc is ignored",
			line:   `{"jsonrpc":2.0,"id":8,"method":"initialize"}`,
			wantID: "8",
			method: "initialize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.line))
			if tt.wantCode != 0 {
				var rpcErr *Error
				require.True(t, errors.As(err, &rpcErr), "expected *Error, got %v", err)
				assert.Equal(t, tt.wantCode, rpcErr.Code)
				assert.Nil(t, req)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.method, req.Method)
			assert.Equal(t, tt.wantID, string(req.ID))
		})
	}
}

func TestParseErrorMessage(t *testing.T) {
	_, err := ParseRequest([]byte(`{bad`))
	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.True(t, strings.HasPrefix(rpcErr.Message, "Parse error: "), rpcErr.Message)
}

func TestResponseEncoding(t *testing.T) {
	t.Run("nil id encodes as null", func(t *testing.T) {
		resp := NewErrorResponse(nil, NewError(CodeParseError, "Parse error: x"))
		data, err := Marshal(resp)
		require.NoError(t, err)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error: x"}}`, string(data))
	})

	t.Run("id is echoed verbatim", func(t *testing.T) {
		resp, err := NewResult([]byte(`"req-7"`), map[string]any{"ok": true})
		require.NoError(t, err)
		data, err := Marshal(resp)
		require.NoError(t, err)
		assert.Equal(t, `{"jsonrpc":"2.0","id":"req-7","result":{"ok":true}}`, string(data))
	})

	t.Run("html is not escaped", func(t *testing.T) {
		resp, err := NewResult([]byte(`1`), map[string]string{"text": "<a & b>"})
		require.NoError(t, err)
		data, err := Marshal(resp)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"<a & b>"`)
	})
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(3, "tools/call", map[string]any{"name": "echo"})
	require.NoError(t, err)
	data, err := Marshal(req)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo"}}`, string(data))

	notification, err := NewRequest(-1, "notifications/initialized", nil)
	require.NoError(t, err)
	data, err = Marshal(notification)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, string(data))
}

func TestParseResponse(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"Server not initialized"}}`))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeServerError, resp.Error.Code)

	_, err = ParseResponse([]byte(`{"jsonrpc":"2.0","id":1}`))
	assert.Error(t, err)

	_, err = ParseResponse([]byte(`{invalid json: true}`))
	assert.Error(t, err)
}

func TestReaderLines(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	r := NewReader(strings.NewReader("first\r\n\n" + long + "\nlast"))

	var lines []string
	for {
		line, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		lines = append(lines, string(line))
	}

	require.Len(t, lines, 4)
	assert.Equal(t, "first", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Len(t, lines[2], len(long))
	assert.Equal(t, "last", lines[3])
}

func TestWriterFlushesEachValue(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Write(map[string]int{"a": 1}))
	assert.Equal(t, "{\"a\":1}\n", buf.String())

	require.NoError(t, w.Write(map[string]int{"b": 2}))
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", buf.String())
}
