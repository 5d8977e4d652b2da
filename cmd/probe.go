package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"testmcp/internal/mcp"
)

var (
	probeTimeout  time.Duration
	probeEnv      []string
	probeName     string
	probeDebugLog string
)

var probeCmd = &cobra.Command{
	Use:   "probe [flags] [-- command args...]",
	Short: "Check that a stdio MCP server completes the handshake",
	Long: `Start a stdio MCP server, send initialize and tools/list, and report what it
answered. Without a command, probe checks this binary's own serve command.

On failure probe explains what went wrong and how to fix it:

  test-mcp-server probe -- npx -y @modelcontextprotocol/server-memory
  test-mcp-server probe --env API_KEY=... -- python server.py`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 0, "handshake timeout (default probe.timeout from config)")
	probeCmd.Flags().StringArrayVarP(&probeEnv, "env", "e", nil, "environment variable as KEY=VALUE (repeatable)")
	probeCmd.Flags().StringVar(&probeName, "name", "", "name shown in the report (default the command name)")
	probeCmd.Flags().StringVar(&probeDebugLog, "debug-log", "", "write the raw server transcript here on failure")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	target, err := probeTarget(args)
	if err != nil {
		return err
	}

	timeout := probeTimeout
	if timeout <= 0 {
		timeout = cfg.Probe.Timeout
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", gray(fmt.Sprintf("→ Probing %s...", target.Name)))

	report, err := mcp.ProbeServer(ctx, target, clientInfo(cfg), cfg.Server.ProtocolVersion)
	if err != nil {
		diag := mcp.Diagnose(target, err)

		logPath := ""
		if probeDebugLog != "" {
			if werr := mcp.WriteDebugLog(appFs, probeDebugLog, diag); werr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to write debug log: %v\n", werr)
			} else {
				logPath = probeDebugLog
			}
		}

		fmt.Fprint(cmd.ErrOrStderr(), mcp.FormatDiagnosticsWithDebugLog(diag, logPath))
		return fmt.Errorf("server '%s' failed the handshake", target.Name)
	}

	fmt.Fprint(cmd.OutOrStdout(), mcp.FormatReport(report))
	return nil
}

// probeTarget builds the target from args, defaulting to this binary.
func probeTarget(args []string) (mcp.ProbeTarget, error) {
	env, err := mcp.ParseEnvPairs(probeEnv)
	if err != nil {
		return mcp.ProbeTarget{}, err
	}

	target := mcp.ProbeTarget{Env: env}
	if len(args) > 0 {
		target.Command = args[0]
		target.Args = args[1:]
	} else {
		if target.Command, target.Args, err = selfCommand(); err != nil {
			return mcp.ProbeTarget{}, err
		}
	}

	target.Name = probeName
	if target.Name == "" {
		target.Name = filepath.Base(target.Command)
	}
	return target, nil
}

// selfCommand is how a client launches this binary as a server.
func selfCommand() (string, []string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("failed to locate executable: %w", err)
	}

	args := []string{"serve"}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return "", nil, err
		}
		args = append(args, "--config", abs)
	}
	return exe, args, nil
}
