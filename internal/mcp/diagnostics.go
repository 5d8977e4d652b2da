package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/afero"

	"testmcp/internal/jsonrpc"
)

// DiagnosticInfo contains detailed information about a server failure
type DiagnosticInfo struct {
	ServerName  string
	Command     string
	Args        []string
	Stage       string
	Error       error
	ExitCode    int
	StdErr      string
	StdOut      string
	Suggestions []string
}

// Diagnose turns a failed probe into a report with suggestions.
func Diagnose(target ProbeTarget, err error) *DiagnosticInfo {
	diag := &DiagnosticInfo{
		ServerName:  target.Name,
		Command:     target.Command,
		Args:        target.Args,
		Error:       err,
		ExitCode:    -1,
		Suggestions: []string{},
	}

	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		diag.Stage = probeErr.Stage
		diag.Error = probeErr.Err
		diag.ExitCode = probeErr.ExitCode
		diag.StdErr = probeErr.StdErr
		diag.StdOut = probeErr.StdOut
	}

	if errors.Is(err, exec.ErrNotFound) {
		diag.Suggestions = append(diag.Suggestions, fmt.Sprintf("'%s' not found in PATH. Check the command name or use an absolute path.", target.Command))
		return diag
	}

	switch target.Command {
	case "docker":
		diag.Suggestions = append(diag.Suggestions, getDiagnosticsForDocker(target.Args)...)
	case "node", "npx":
		diag.Suggestions = append(diag.Suggestions, getDiagnosticsForNode(target.Command, target.Args)...)
	case "python", "python3":
		diag.Suggestions = append(diag.Suggestions, getDiagnosticsForPython(target.Command, target.Args)...)
	}

	analyzeProtocolErrors(diag)
	analyzeDiagnosticErrors(diag)
	return diag
}

// analyzeProtocolErrors explains handshake-level failures
func analyzeProtocolErrors(diag *DiagnosticInfo) {
	err := diag.Error

	switch diag.ExitCode {
	case 126:
		diag.Suggestions = append(diag.Suggestions, "Exit code 126: the command is not executable. Check file permissions.")
	case 127:
		diag.Suggestions = append(diag.Suggestions, "Exit code 127: the command or its interpreter was not found.")
	}

	var syntaxErr *json.SyntaxError
	var rpcErr *jsonrpc.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		diag.Suggestions = append(diag.Suggestions, "No response before the timeout. The server must read requests from stdin and answer each one with a single JSON line on stdout.")
	case errors.Is(err, ErrClosed):
		diag.Suggestions = append(diag.Suggestions, "The server closed stdout before answering. It probably crashed; check the error output above.")
	case errors.As(err, &syntaxErr):
		diag.Suggestions = append(diag.Suggestions, "The server wrote something that is not JSON to stdout. Logs must go to stderr.")
	case errors.As(err, &rpcErr):
		switch rpcErr.Code {
		case jsonrpc.CodeMethodNotFound:
			diag.Suggestions = append(diag.Suggestions, fmt.Sprintf("The server does not implement %s.", diag.Stage))
		case jsonrpc.CodeServerError:
			diag.Suggestions = append(diag.Suggestions, fmt.Sprintf("The server rejected %s: %s", diag.Stage, rpcErr.Message))
		}
	}
}

// getDiagnosticsForDocker provides Docker-specific diagnostics
func getDiagnosticsForDocker(args []string) []string {
	suggestions := []string{}

	if _, err := exec.LookPath("docker"); err != nil {
		return append(suggestions, "docker not found. Please install Docker.")
	}

	// Check if Docker daemon is running
	if err := exec.Command("docker", "info").Run(); err != nil {
		return append(suggestions, "Docker daemon is not running. Please start Docker Desktop or the Docker service.")
	}

	// Check if the image exists
	for _, arg := range args {
		if strings.HasPrefix(arg, "ghcr.io/") || strings.Contains(arg, ":") {
			if err := exec.Command("docker", "image", "inspect", arg).Run(); err != nil {
				suggestions = append(suggestions, fmt.Sprintf("Docker image '%s' not found. Try: docker pull %s", arg, arg))
			}
			break
		}
	}

	for _, arg := range args {
		if arg == "-e" || strings.HasPrefix(arg, "--env") {
			suggestions = append(suggestions, "Check that required environment variables are set in your shell")
			break
		}
	}

	return suggestions
}

// getDiagnosticsForNode provides Node.js-specific diagnostics
func getDiagnosticsForNode(cmd string, args []string) []string {
	suggestions := []string{}

	if _, err := exec.LookPath(cmd); err != nil {
		return append(suggestions, fmt.Sprintf("%s not found. Please install Node.js.", cmd))
	}

	if len(args) > 0 {
		scriptPath := args[0]
		if strings.HasSuffix(scriptPath, ".js") || strings.HasSuffix(scriptPath, ".mjs") {
			if !fileExists(scriptPath) {
				suggestions = append(suggestions, fmt.Sprintf("Script file '%s' not found", scriptPath))
			}
		}

		if !strings.HasPrefix(scriptPath, "@") && !strings.Contains(scriptPath, "/") && fileExists("package.json") {
			suggestions = append(suggestions, "Run 'npm install' to install dependencies")
		}
	}

	return suggestions
}

// getDiagnosticsForPython provides Python-specific diagnostics
func getDiagnosticsForPython(cmd string, args []string) []string {
	suggestions := []string{}

	if _, err := exec.LookPath(cmd); err != nil {
		return append(suggestions, fmt.Sprintf("%s not found. Please install Python.", cmd))
	}

	if len(args) > 0 && strings.HasSuffix(args[0], ".py") {
		if !fileExists(args[0]) {
			suggestions = append(suggestions, fmt.Sprintf("Python script '%s' not found", args[0]))
		}
		if fileExists("requirements.txt") {
			suggestions = append(suggestions, "Run 'pip install -r requirements.txt' to install dependencies")
		}
	}

	return suggestions
}

// analyzeDiagnosticErrors analyzes common error patterns and provides suggestions
func analyzeDiagnosticErrors(diag *DiagnosticInfo) {
	errStr := strings.ToLower(diag.StdErr + diag.StdOut)

	if strings.Contains(errStr, "permission denied") {
		diag.Suggestions = append(diag.Suggestions, "Permission denied. Check file permissions or try running with appropriate privileges.")
	}

	if strings.Contains(errStr, "connection refused") {
		diag.Suggestions = append(diag.Suggestions, "Connection refused. Check if the service is running and accessible.")
	}

	if strings.Contains(errStr, "address already in use") {
		diag.Suggestions = append(diag.Suggestions, "Port already in use. Check for conflicting services or change the port.")
	}

	if strings.Contains(errStr, "modulenotfounderror") || strings.Contains(errStr, "cannot find module") {
		diag.Suggestions = append(diag.Suggestions, "Missing dependencies. Install required packages for your project.")
	}

	if strings.Contains(errStr, "environment variable") || strings.Contains(errStr, "env var") {
		diag.Suggestions = append(diag.Suggestions, "Missing or invalid environment variables. Check your configuration.")
	}
}

// FormatDiagnostics formats diagnostic information for display
func FormatDiagnostics(diag *DiagnosticInfo) string {
	return FormatDiagnosticsWithDebugLog(diag, "")
}

// FormatDiagnosticsWithDebugLog formats diagnostic information with optional debug log path
func FormatDiagnosticsWithDebugLog(diag *DiagnosticInfo, debugLogPath string) string {
	yellow := color.New(color.Bold, color.FgYellow).SprintFunc()
	red := color.New(color.Bold, color.FgRed).SprintFunc()
	magenta := color.New(color.Bold, color.FgMagenta).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	var sb strings.Builder

	sb.WriteString("Connection failed")
	if diag.Stage != "" {
		sb.WriteString(fmt.Sprintf(" during %s", diag.Stage))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("\n%s\n  %s\n", yellow("Command:"), strings.Join(append([]string{diag.Command}, MaskSensitiveArgs(diag.Args)...), " ")))

	if diag.StdErr != "" {
		sb.WriteString(fmt.Sprintf("\n%s\n%s\n", red("Server error:"), maskSensitiveOutput(strings.TrimRight(diag.StdErr, "\n"))))
	}
	if diag.Error != nil {
		sb.WriteString(fmt.Sprintf("\n%s %v\n", red("Error:"), diag.Error))
	}
	if diag.ExitCode > 0 {
		sb.WriteString(fmt.Sprintf("%s %d\n", gray("Exit code:"), diag.ExitCode))
	}

	if len(diag.Suggestions) > 0 {
		sb.WriteString(fmt.Sprintf("\n%s\n", magenta("Possible solutions:")))
		for i, suggestion := range diag.Suggestions {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion))
		}
	}

	if debugLogPath != "" {
		sb.WriteString(fmt.Sprintf("\n%s\n  %s\n", cyan("ℹ Debug log saved to:"), debugLogPath))
		sb.WriteString(gray("  View this file for the full stdout/stderr transcript of the server") + "\n")
	}

	return sb.String()
}

// WriteDebugLog stores the raw, unmasked transcript of a failed probe.
func WriteDebugLog(fs afero.Fs, path string, diag *DiagnosticInfo) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "command: %s %s\n", diag.Command, strings.Join(diag.Args, " "))
	fmt.Fprintf(&sb, "stage: %s\n", diag.Stage)
	fmt.Fprintf(&sb, "exit code: %d\n", diag.ExitCode)
	if diag.Error != nil {
		fmt.Fprintf(&sb, "error: %v\n", diag.Error)
	}
	fmt.Fprintf(&sb, "\n--- stdout ---\n%s\n--- stderr ---\n%s\n", diag.StdOut, diag.StdErr)

	return afero.WriteFile(fs, path, []byte(sb.String()), 0600)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
