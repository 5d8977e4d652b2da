package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testmcp/internal/jsonrpc"
)

const initializeLine = `{"jsonrpc":"2.0","id":1,"method":"initialize"}`

// serve runs input through a fresh Serve loop and returns the raw output lines.
func serve(t *testing.T, s *Server, input string) []string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(input), &out))

	text := strings.TrimRight(out.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func decode(t *testing.T, line string) *jsonrpc.Response {
	t.Helper()
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal([]byte(line), &resp), "line: %s", line)
	assert.Equal(t, "2.0", resp.JSONRPC)
	return &resp
}

func handle(t *testing.T, s *Server, line string) *jsonrpc.Response {
	t.Helper()
	resp := s.HandleLine(context.Background(), []byte(line))
	require.NotNil(t, resp)
	return resp
}

func callTool(t *testing.T, s *Server, name string, args string) string {
	t.Helper()
	line := fmt.Sprintf(`{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":%q,"arguments":%s}}`, name, args)
	resp := handle(t, s, line)
	require.Nil(t, resp.Error, "unexpected error: %+v", resp.Error)

	var result CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	return result.Content[0].Text
}

func initialized(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s := NewServer(opts...)
	handle(t, s, initializeLine)
	require.True(t, s.Initialized())
	return s
}

func TestInitializeScenario(t *testing.T) {
	lines := serve(t, NewServer(), initializeLine+"\n")

	require.Len(t, lines, 1)
	assert.JSONEq(t, `{
		"jsonrpc": "2.0",
		"id": 1,
		"result": {
			"protocolVersion": "2024-11-05",
			"capabilities": {"tools": {}},
			"serverInfo": {"name": "test-mcp-server", "version": "1.0.0"}
		}
	}`, lines[0])
}

func TestInitializeUsesConfiguredIdentity(t *testing.T) {
	s := NewServer(
		WithInfo(Implementation{Name: "custom", Version: "9.9.9"}),
		WithProtocolVersion("2025-03-26"),
	)
	resp := handle(t, s, initializeLine)

	var result InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "custom", result.ServerInfo.Name)
	assert.Equal(t, "9.9.9", result.ServerInfo.Version)
	assert.Equal(t, "2025-03-26", result.ProtocolVersion)
}

func TestUnknownMethodEchoesID(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		wantID string
	}{
		{"numeric id", `{"jsonrpc":"2.0","id":7,"method":"resources/list"}`, "7"},
		{"string id", `{"jsonrpc":"2.0","id":"abc","method":"prompts/list"}`, `"abc"`},
		{"absent id", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "null"},
		{"null id", `{"jsonrpc":"2.0","id":null,"method":"ping"}`, "null"},
		{"missing method", `{"jsonrpc":"2.0","id":3}`, "3"},
		{"numeric method", `{"jsonrpc":"2.0","id":7,"method":5}`, "7"},
		{"array method", `{"jsonrpc":"2.0","id":"x","method":["tools/list"]}`, `"x"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := serve(t, NewServer(), tt.line+"\n")
			require.Len(t, lines, 1)

			resp := decode(t, lines[0])
			require.NotNil(t, resp.Error)
			assert.Equal(t, jsonrpc.CodeMethodNotFound, resp.Error.Code)
			assert.Contains(t, resp.Error.Message, "Unknown method")
			assert.Equal(t, tt.wantID, string(resp.ID))
			assert.Nil(t, resp.Result)
		})
	}
}

func TestLooselyTypedEnvelope(t *testing.T) {
	s := NewServer()

	resp := handle(t, s, `{"jsonrpc":"2.0","id":7,"method":5}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Unknown method: 5", resp.Error.Message)
	assert.Equal(t, "7", string(resp.ID))

	resp = handle(t, s, `{"jsonrpc":2.0,"id":8,"method":"initialize"}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, "8", string(resp.ID))
	assert.True(t, s.Initialized())
}

func TestBusinessMethodsRequireInitialize(t *testing.T) {
	lines := []string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"no_such_tool"}}`,
	}

	s := NewServer()
	for i, line := range lines {
		resp := handle(t, s, line)
		require.NotNil(t, resp.Error)
		assert.Equal(t, jsonrpc.CodeServerError, resp.Error.Code)
		assert.Equal(t, "Server not initialized", resp.Error.Message)
		assert.Contains(t, resp.Error.Message, "not initialized")
		assert.Equal(t, fmt.Sprint(i+1), string(resp.ID))
	}
	assert.False(t, s.Initialized())
}

func TestInitializeIsIdempotent(t *testing.T) {
	s := NewServer()
	first := handle(t, s, initializeLine)
	second := handle(t, s, initializeLine)
	assert.Equal(t, first.Result, second.Result)

	for i := 0; i < 3; i++ {
		resp := handle(t, s, `{"jsonrpc":"2.0","id":5,"method":"tools/list"}`)
		assert.Nil(t, resp.Error)
	}
}

func TestToolsList(t *testing.T) {
	s := initialized(t)
	resp := handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Nil(t, resp.Error)

	var result struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			InputSchema struct {
				Type       string                       `json:"type"`
				Properties map[string]map[string]string `json:"properties"`
				Required   []string                     `json:"required"`
			} `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Tools, 3)

	expected := []struct{ name, field string }{
		{"echo", "message"},
		{"get_env", "name"},
		{"list_files", "path"},
	}
	for i, want := range expected {
		tool := result.Tools[i]
		assert.Equal(t, want.name, tool.Name)
		assert.NotEmpty(t, tool.Description)
		assert.Equal(t, "object", tool.InputSchema.Type)
		assert.Equal(t, []string{want.field}, tool.InputSchema.Required)
		assert.Equal(t, "string", tool.InputSchema.Properties[want.field]["type"])
	}
}

func TestToolsCatalogueIsImmutable(t *testing.T) {
	tools := Tools()
	tools[0].Name = "mutated"
	tools[0].InputSchema.Required = nil

	fresh := Tools()
	assert.Equal(t, "echo", fresh[0].Name)
	assert.Equal(t, []string{"message"}, fresh[0].InputSchema.Required)
}

func TestEcho(t *testing.T) {
	s := initialized(t)

	assert.Equal(t, "Echo: hi", callTool(t, s, "echo", `{"message":"hi"}`))
	assert.Equal(t, "Echo: ", callTool(t, s, "echo", `{}`))

	// arguments omitted entirely
	resp := handle(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"echo"}}`)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"Echo: "}]}`, string(resp.Result))
}

func TestEchoPreservesText(t *testing.T) {
	s := initialized(t)
	lines := serve(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"message":"<b> & ünïcode"}}}`+"\n")

	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"text":"Echo: <b> & ünïcode"`)
}

func TestGetEnv(t *testing.T) {
	env := map[string]string{
		"HOME_DIR":  "/home/tester",
		"API_TOKEN": "s3cr3t",
		"EMPTY":     "",
	}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	t.Run("present", func(t *testing.T) {
		s := initialized(t, WithLookupEnv(lookup))
		text := callTool(t, s, "get_env", `{"name":"HOME_DIR"}`)
		assert.Equal(t, "Environment variable 'HOME_DIR' = '/home/tester'", text)
	})

	t.Run("present but empty", func(t *testing.T) {
		s := initialized(t, WithLookupEnv(lookup))
		text := callTool(t, s, "get_env", `{"name":"EMPTY"}`)
		assert.Equal(t, "Environment variable 'EMPTY' = ''", text)
	})

	t.Run("absent is a successful result", func(t *testing.T) {
		s := initialized(t, WithLookupEnv(lookup))
		text := callTool(t, s, "get_env", `{"name":"NOPE"}`)
		assert.Contains(t, text, "not found")
		assert.Contains(t, text, "NOPE")
	})

	t.Run("missing name", func(t *testing.T) {
		s := initialized(t, WithLookupEnv(lookup))
		text := callTool(t, s, "get_env", `{}`)
		assert.Equal(t, "Environment variable '' not found", text)
	})

	t.Run("sensitive values shown by default", func(t *testing.T) {
		s := initialized(t, WithLookupEnv(lookup))
		text := callTool(t, s, "get_env", `{"name":"API_TOKEN"}`)
		assert.Contains(t, text, "s3cr3t")
	})

	t.Run("sensitive values masked when enabled", func(t *testing.T) {
		s := initialized(t, WithLookupEnv(lookup), WithMaskSensitiveEnv(true))
		text := callTool(t, s, "get_env", `{"name":"API_TOKEN"}`)
		assert.Equal(t, "Environment variable 'API_TOKEN' = '***'", text)

		text = callTool(t, s, "get_env", `{"name":"HOME_DIR"}`)
		assert.Contains(t, text, "/home/tester")
	})

	t.Run("process environment", func(t *testing.T) {
		t.Setenv("TESTMCP_PROBE_VALUE", "from-process")
		s := initialized(t)
		text := callTool(t, s, "get_env", `{"name":"TESTMCP_PROBE_VALUE"}`)
		assert.Contains(t, text, "TESTMCP_PROBE_VALUE")
		assert.Contains(t, text, "from-process")
	})
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt", "Zeta", "_under"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	t.Run("sorted and newline joined", func(t *testing.T) {
		s := initialized(t)
		args, err := json.Marshal(map[string]string{"path": dir})
		require.NoError(t, err)

		text := callTool(t, s, "list_files", string(args))
		assert.Equal(t, fmt.Sprintf("Files in '%s':\nZeta\n_under\na.txt\nb.txt\nsub", dir), text)
	})

	t.Run("defaults to the current directory", func(t *testing.T) {
		t.Chdir(dir)
		s := initialized(t)

		text := callTool(t, s, "list_files", `{}`)
		assert.Equal(t, "Files in '.':\nZeta\n_under\na.txt\nb.txt\nsub", text)
	})

	t.Run("empty directory", func(t *testing.T) {
		s := initialized(t)
		args, err := json.Marshal(map[string]string{"path": filepath.Join(dir, "sub")})
		require.NoError(t, err)

		text := callTool(t, s, "list_files", string(args))
		assert.Equal(t, fmt.Sprintf("Files in '%s':\n", filepath.Join(dir, "sub")), text)
	})

	t.Run("nonexistent path is a successful result", func(t *testing.T) {
		s := initialized(t, WithFs(afero.NewMemMapFs()))
		text := callTool(t, s, "list_files", `{"path":"/does/not/exist"}`)
		assert.True(t, strings.HasPrefix(text, "Error listing files in '/does/not/exist': "), text)
	})

	t.Run("file instead of directory", func(t *testing.T) {
		s := initialized(t)
		args, err := json.Marshal(map[string]string{"path": filepath.Join(dir, "a.txt")})
		require.NoError(t, err)

		text := callTool(t, s, "list_files", string(args))
		assert.Contains(t, text, "Error listing files")
	})
}

func TestListFilesInMemory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/second", nil, 0644))
	require.NoError(t, afero.WriteFile(fs, "/data/first", nil, 0644))

	s := initialized(t, WithFs(fs))
	assert.Equal(t, "Files in '/data':\nfirst\nsecond", callTool(t, s, "list_files", `{"path":"/data"}`))
}

func TestUnknownTool(t *testing.T) {
	s := initialized(t)

	resp := handle(t, s, `{"jsonrpc":"2.0","id":"x1","method":"tools/call","params":{"name":"rm_rf"}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeServerError, resp.Error.Code)
	assert.Equal(t, "Unknown tool: rm_rf", resp.Error.Message)
	assert.Equal(t, `"x1"`, string(resp.ID))

	resp = handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Unknown tool: ", resp.Error.Message)
}

func TestMalformedLineDoesNotStopServer(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc": "2.0", "id": 1, "method": `,
		initializeLine,
		`not json at all`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	}, "\n") + "\n"

	lines := serve(t, NewServer(), input)
	require.Len(t, lines, 4)

	parseErr := decode(t, lines[0])
	require.NotNil(t, parseErr.Error)
	assert.Equal(t, jsonrpc.CodeParseError, parseErr.Error.Code)
	assert.Equal(t, "null", string(parseErr.ID))
	assert.True(t, strings.HasPrefix(parseErr.Error.Message, "Parse error: "))

	assert.Nil(t, decode(t, lines[1]).Error)
	assert.Equal(t, jsonrpc.CodeParseError, decode(t, lines[2]).Error.Code)
	assert.Nil(t, decode(t, lines[3]).Error)
}

func TestInternalFaults(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"array instead of object", `[1,2,3]`},
		{"scalar instead of object", `42`},
		{"params not an object", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":[1]}`},
		{"argument of the wrong type", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"message":5}}}`},
		{"arguments not an object", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"list_files","arguments":"."}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := initialized(t)
			lines := serve(t, s, tt.line+"\n"+`{"jsonrpc":"2.0","id":8,"method":"tools/list"}`+"\n")
			require.Len(t, lines, 2)

			resp := decode(t, lines[0])
			require.NotNil(t, resp.Error)
			assert.Equal(t, jsonrpc.CodeInternalError, resp.Error.Code)
			assert.Equal(t, "null", string(resp.ID))
			assert.True(t, strings.HasPrefix(resp.Error.Message, "Internal error: "), resp.Error.Message)

			next := decode(t, lines[1])
			assert.Nil(t, next.Error)
			assert.Equal(t, "8", string(next.ID))
		})
	}
}

type panicFs struct {
	afero.Fs
}

func (panicFs) Open(string) (afero.File, error) {
	panic("disk on fire")
}

func TestPanicInHandlerBecomesInternalError(t *testing.T) {
	s := initialized(t, WithFs(panicFs{afero.NewMemMapFs()}))

	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"list_files","arguments":{"path":"/"}}}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":"still here"}}}` + "\n"
	lines := serve(t, s, input)
	require.Len(t, lines, 2)

	resp := decode(t, lines[0])
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeInternalError, resp.Error.Code)
	assert.Equal(t, "null", string(resp.ID))
	assert.Contains(t, resp.Error.Message, "disk on fire")

	assert.Contains(t, lines[1], "Echo: still here")
}

func TestEmptyLinesProduceNoOutput(t *testing.T) {
	input := "\n   \n\t\n" + initializeLine + "\n\n  \r\n"
	lines := serve(t, NewServer(), input)
	assert.Len(t, lines, 1)
}

func TestWhitespaceAroundLineIsTrimmed(t *testing.T) {
	lines := serve(t, NewServer(), "   "+initializeLine+"   \r\n")
	require.Len(t, lines, 1)
	assert.Nil(t, decode(t, lines[0]).Error)
}

func TestFinalLineWithoutNewline(t *testing.T) {
	lines := serve(t, NewServer(), initializeLine)
	require.Len(t, lines, 1)
	assert.Equal(t, "1", string(decode(t, lines[0]).ID))
}

func TestResponsesKeepRequestOrder(t *testing.T) {
	var input strings.Builder
	input.WriteString(initializeLine + "\n")
	for i := 2; i <= 50; i++ {
		switch i % 3 {
		case 0:
			fmt.Fprintf(&input, `{"jsonrpc":"2.0","id":%d,"method":"tools/list"}`+"\n", i)
		case 1:
			fmt.Fprintf(&input, `{"jsonrpc":"2.0","id":%d,"method":"bogus"}`+"\n", i)
		default:
			fmt.Fprintf(&input, `{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"echo","arguments":{"message":"%d"}}}`+"\n", i, i)
		}
	}

	lines := serve(t, NewServer(), input.String())
	require.Len(t, lines, 50)
	for i, line := range lines {
		assert.Equal(t, fmt.Sprint(i+1), string(decode(t, line).ID))
	}
}

func TestServeStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := NewServer().Serve(ctx, strings.NewReader(initializeLine+"\n"), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, fmt.Errorf("stdout closed")
}

func TestServeReportsWriteFailure(t *testing.T) {
	err := NewServer().Serve(context.Background(), strings.NewReader(initializeLine+"\n"), failingWriter{})
	assert.ErrorContains(t, err, "writing response")
}
