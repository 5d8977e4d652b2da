package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

// ProbeTarget is a stdio server command to check.
type ProbeTarget struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// ProbeReport is the outcome of a successful handshake.
type ProbeReport struct {
	Target          ProbeTarget
	ServerInfo      Implementation
	ProtocolVersion string
	Tools           []Tool
	Elapsed         time.Duration
}

// ProbeError records which handshake stage failed and what the process
// printed before it did.
type ProbeError struct {
	Stage    string
	Err      error
	StdErr   string
	StdOut   string
	ExitCode int
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// ProbeServer starts the target, runs initialize and tools/list, then shuts
// it down. Failures are returned as *ProbeError.
func ProbeServer(ctx context.Context, target ProbeTarget, clientInfo Implementation, protocolVersion string) (*ProbeReport, error) {
	start := time.Now()

	proc, err := StartProcess(ctx, target.Command, target.Args, target.Env)
	if err != nil {
		return nil, &ProbeError{Stage: "start", Err: err, ExitCode: -1}
	}

	fail := func(stage string, err error) error {
		proc.Close()
		return &ProbeError{
			Stage:    stage,
			Err:      err,
			StdErr:   proc.Stderr(),
			StdOut:   proc.Stdout(),
			ExitCode: proc.ExitCode(),
		}
	}

	initResult, err := proc.Client.Initialize(ctx, clientInfo, protocolVersion)
	if err != nil {
		return nil, fail(MethodInitialize, err)
	}

	tools, err := proc.Client.ListTools(ctx)
	if err != nil {
		return nil, fail(MethodToolsList, err)
	}

	elapsed := time.Since(start)
	// The handshake succeeded; how the server exits afterwards does not matter.
	proc.Close()

	return &ProbeReport{
		Target:          target,
		ServerInfo:      initResult.ServerInfo,
		ProtocolVersion: initResult.ProtocolVersion,
		Tools:           tools,
		Elapsed:         elapsed,
	}, nil
}

// FormatReport renders a successful probe for the terminal.
func FormatReport(report *ProbeReport) string {
	green := color.New(color.FgGreen).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Connected to %s %s %s\n",
		green("✓"),
		bold(report.ServerInfo.Name),
		report.ServerInfo.Version,
		gray(fmt.Sprintf("(protocol %s, %s)", report.ProtocolVersion, report.Elapsed.Round(time.Millisecond))))

	fmt.Fprintf(&sb, "\n%s %s\n", bold(fmt.Sprintf("%d", len(report.Tools))), gray("tool(s) available"))
	for _, tool := range report.Tools {
		fmt.Fprintf(&sb, "  %s %s  %s\n", green("●"), bold(tool.Name), gray(tool.Description))
	}
	return sb.String()
}
