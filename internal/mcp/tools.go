package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

const (
	ToolEcho      = "echo"
	ToolGetEnv    = "get_env"
	ToolListFiles = "list_files"
)

// EchoArgs are the arguments of the echo tool.
type EchoArgs struct {
	Message string `json:"message"`
}

// GetEnvArgs are the arguments of the get_env tool.
type GetEnvArgs struct {
	Name string `json:"name"`
}

// ListFilesArgs are the arguments of the list_files tool. A nil Path means
// the current directory; an explicit empty string is listed as given.
type ListFilesArgs struct {
	Path *string `json:"path"`
}

// Tools returns the static tool catalogue. Each call returns a fresh copy.
func Tools() []Tool {
	return []Tool{
		{
			Name:        ToolEcho,
			Description: "Echo back the provided message",
			InputSchema: objectSchema("message", "The message to echo back"),
		},
		{
			Name:        ToolGetEnv,
			Description: "Get an environment variable value",
			InputSchema: objectSchema("name", "The environment variable name"),
		},
		{
			Name:        ToolListFiles,
			Description: "List files in a directory",
			InputSchema: objectSchema("path", "The directory path to list"),
		},
	}
}

// FindTool looks a tool up by exact name.
func FindTool(tools []Tool, name string) (Tool, bool) {
	return lo.Find(tools, func(t Tool) bool { return t.Name == name })
}

// ArgumentNames returns the tool's declared properties in sorted order.
func (t Tool) ArgumentNames() []string {
	if t.InputSchema == nil {
		return nil
	}
	names := lo.Keys(t.InputSchema.Properties)
	slices.Sort(names)
	return names
}

// IsRequired reports whether the schema lists name as required.
func (t Tool) IsRequired(name string) bool {
	return t.InputSchema != nil && lo.Contains(t.InputSchema.Required, name)
}

// ArgumentDescription returns the schema description of a property.
func (t Tool) ArgumentDescription(name string) string {
	if t.InputSchema == nil {
		return ""
	}
	if prop, ok := t.InputSchema.Properties[name]; ok && prop != nil {
		return prop.Description
	}
	return ""
}

func objectSchema(property, description string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			property: {
				Type:        "string",
				Description: description,
			},
		},
		Required: []string{property},
	}
}

// toolHandler runs one tool. Returned errors are internal faults; tool-level
// failures are reported as result text.
type toolHandler func(ctx context.Context, s *Server, raw json.RawMessage) (*CallToolResult, error)

var toolHandlers = map[string]toolHandler{
	ToolEcho:      handleEcho,
	ToolGetEnv:    handleGetEnv,
	ToolListFiles: handleListFiles,
}

func handleEcho(_ context.Context, _ *Server, raw json.RawMessage) (*CallToolResult, error) {
	args, err := decodeArgs[EchoArgs](raw)
	if err != nil {
		return nil, err
	}
	return TextResult("Echo: " + args.Message), nil
}

func handleGetEnv(_ context.Context, s *Server, raw json.RawMessage) (*CallToolResult, error) {
	args, err := decodeArgs[GetEnvArgs](raw)
	if err != nil {
		return nil, err
	}

	value, ok := s.lookupEnv(args.Name)
	if !ok {
		return TextResult(fmt.Sprintf("Environment variable '%s' not found", args.Name)), nil
	}
	if s.maskSensitiveEnv && isSensitiveKey(args.Name) {
		value = maskValue(value)
	}
	return TextResult(fmt.Sprintf("Environment variable '%s' = '%s'", args.Name, value)), nil
}

func handleListFiles(_ context.Context, s *Server, raw json.RawMessage) (*CallToolResult, error) {
	args, err := decodeArgs[ListFilesArgs](raw)
	if err != nil {
		return nil, err
	}

	path := "."
	if args.Path != nil {
		path = *args.Path
	}

	entries, err := afero.ReadDir(s.fs, path)
	if err != nil {
		// Filesystem failures are content, not protocol errors.
		return TextResult(fmt.Sprintf("Error listing files in '%s': %v", path, err)), nil
	}

	names := lo.Map(entries, func(fi os.FileInfo, _ int) string { return fi.Name() })
	sort.Strings(names)
	return TextResult(fmt.Sprintf("Files in '%s':\n%s", path, strings.Join(names, "\n"))), nil
}

func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var args T
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("decoding arguments: %w", err)
	}
	return args, nil
}
