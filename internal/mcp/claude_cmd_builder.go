package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Registration describes how a client should launch this server.
type Registration struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	// Scope is passed to claude mcp add --scope when set (local, user or project).
	Scope string
}

type ClaudeCmdBuilder struct {
	// Output receives the claude CLI's relevant output lines.
	Output io.Writer
	// ErrOutput receives the claude CLI's stderr on failure.
	ErrOutput io.Writer
}

func NewClaudeCmdBuilder() *ClaudeCmdBuilder {
	return &ClaudeCmdBuilder{Output: os.Stdout, ErrOutput: os.Stderr}
}

// findClaude returns the claude command path
func findClaude() string {
	if path, err := exec.LookPath("claude"); err == nil {
		return path
	}
	return "claude" // fallback
}

// Register runs claude mcp add for reg.
func (b *ClaudeCmdBuilder) Register(reg *Registration, verbose bool) error {
	args := b.buildRegisterArgs(reg)

	if verbose {
		fmt.Fprintf(b.Output, "  Command: %s\n", b.BuildRegisterCommand(reg))
	}

	if err := b.run(args, "Added stdio MCP server", verbose); err != nil {
		if !verbose {
			fmt.Fprintf(b.Output, "  Command failed: %s\n", b.BuildRegisterCommand(reg))
		}
		return fmt.Errorf("failed to add server '%s' to Claude", reg.Name)
	}
	return nil
}

// Unregister runs claude mcp remove for name.
func (b *ClaudeCmdBuilder) Unregister(name string, verbose bool) error {
	if !b.IsRegistered(name) {
		return fmt.Errorf("server '%s' is not registered in Claude", name)
	}

	commandStr := b.BuildUnregisterCommand(name)
	if verbose {
		fmt.Fprintf(b.Output, "  Command: %s\n", commandStr)
	}

	if err := b.run([]string{"mcp", "remove", name}, "Removed MCP server", verbose); err != nil {
		if !verbose {
			fmt.Fprintf(b.Output, "  Command failed: %s\n", commandStr)
		}
		return fmt.Errorf("failed to remove server '%s' from Claude", name)
	}
	return nil
}

// IsRegistered checks whether claude mcp get knows the server.
func (b *ClaudeCmdBuilder) IsRegistered(name string) bool {
	return exec.Command(findClaude(), "mcp", "get", name).Run() == nil
}

// Describe returns what claude mcp get reports for name. The error wraps
// exec.ErrNotFound when the claude CLI is missing.
func (b *ClaudeCmdBuilder) Describe(name string) (string, error) {
	cmd := exec.Command(findClaude(), "mcp", "get", name)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return strings.TrimSpace(stderr.String() + stdout.String()), err
	}
	return stdout.String(), nil
}

// run executes claude with args. In verbose mode the output is echoed
// without the line containing skipLine, which repeats what we already print.
func (b *ClaudeCmdBuilder) run(args []string, skipLine string, verbose bool) error {
	cmd := exec.Command(findClaude(), args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			fmt.Fprint(b.ErrOutput, stderr.String())
		}
		return err
	}

	if verbose && stdout.Len() > 0 {
		for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
			if strings.Contains(line, skipLine) {
				continue
			}
			if strings.Contains(line, "File modified:") {
				fmt.Fprintf(b.Output, "  %s\n", line)
			} else {
				fmt.Fprintln(b.Output, line)
			}
		}
	}
	return nil
}

// buildRegisterArgs constructs the arguments for claude mcp add
func (b *ClaudeCmdBuilder) buildRegisterArgs(reg *Registration) []string {
	args := []string{"mcp", "add"}
	if reg.Scope != "" {
		args = append(args, "--scope", reg.Scope)
	}
	args = append(args, reg.Name)

	keys := make([]string, 0, len(reg.Env))
	for k := range reg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--env", fmt.Sprintf("%s=%s", k, reg.Env[k]))
	}

	// -- separates claude options from the server command
	args = append(args, "--", reg.Command)
	args = append(args, reg.Args...)

	return args
}

// BuildRegisterCommand renders the claude mcp add command with secrets masked.
func (b *ClaudeCmdBuilder) BuildRegisterCommand(reg *Registration) string {
	return fmt.Sprintf("claude %s", strings.Join(MaskSensitiveArgs(b.buildRegisterArgs(reg)), " "))
}

func (b *ClaudeCmdBuilder) BuildUnregisterCommand(name string) string {
	return fmt.Sprintf("claude mcp remove %s", name)
}

func (b *ClaudeCmdBuilder) BuildStatusCommand(name string) string {
	return fmt.Sprintf("claude mcp get %s", name)
}

// BuildClientConfig renders the mcpServers entry other clients expect, with
// secret env values replaced by shell variables.
func (b *ClaudeCmdBuilder) BuildClientConfig(reg *Registration) (string, error) {
	entry := map[string]any{
		"command": reg.Command,
		"args":    reg.Args,
	}
	if len(reg.Env) > 0 {
		entry["env"] = reg.Env
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}
	inner, err := MaskSensitiveJSONPretty(data, "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("{\n  \"mcpServers\": {\n    %q: %s\n  }\n}", reg.Name, indent(inner, "    ")), nil
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
