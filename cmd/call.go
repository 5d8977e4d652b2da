package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"testmcp/internal/config"
	"testmcp/internal/logging"
	"testmcp/internal/mcp"
)

var (
	callTool string
	callArgs []string
	callEnv  []string
)

var callCmd = &cobra.Command{
	Use:   "call [flags] [-- command args...]",
	Short: "Call tools interactively",
	Long: `Start a session, pick a tool and fill in its arguments, then print the
result. By default the session runs against an in-process server; pass a
command after -- to call tools on any other stdio MCP server instead.

--tool and --arg skip the prompts, which makes call usable from scripts:

  test-mcp-server call --tool echo --arg message=hello`,
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVarP(&callTool, "tool", "t", "", "tool to call (skips the prompts)")
	callCmd.Flags().StringArrayVarP(&callArgs, "arg", "a", nil, "tool argument as key=value (repeatable)")
	callCmd.Flags().StringArrayVarP(&callEnv, "env", "e", nil, "environment for an external server as KEY=VALUE (repeatable)")
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	arguments, err := parseArgPairs(callArgs)
	if err != nil {
		return err
	}

	client, session, err := openSession(cmd, cfg, args)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Probe.Timeout)
	defer cancel()

	if _, err := client.Initialize(ctx, clientInfo(cfg), cfg.Server.ProtocolVersion); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("tools/list failed: %w", err)
	}
	return callLoop(cmd, cfg, client, tools, arguments)
}

// openSession connects to an in-process server, or to the command in args.
func openSession(cmd *cobra.Command, cfg *config.Config, args []string) (*mcp.Client, io.Closer, error) {
	if len(args) == 0 {
		logger := logging.Discard()
		if cmd.Flags().Changed("log-level") {
			var err error
			if logger, err = newLogger(cmd, cfg); err != nil {
				return nil, nil, err
			}
		}
		client, session := mcp.ConnectInProcess(cmd.Context(), newServer(cfg, logger))
		return client, session, nil
	}

	env, err := mcp.ParseEnvPairs(callEnv)
	if err != nil {
		return nil, nil, err
	}
	proc, err := mcp.StartProcess(cmd.Context(), args[0], args[1:], env)
	if err != nil {
		return nil, nil, err
	}
	return proc.Client, proc, nil
}

func callLoop(cmd *cobra.Command, cfg *config.Config, client *mcp.Client, tools []mcp.Tool, arguments map[string]any) error {
	interactive := callTool == ""
	out := cmd.OutOrStdout()

	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	for {
		tool, err := selectTool(tools)
		if err != nil {
			return err
		}

		if interactive {
			if arguments, err = promptArguments(tool); err != nil {
				return err
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Probe.Timeout)
		result, err := client.CallTool(ctx, tool.Name, arguments)
		cancel()
		if err != nil {
			return fmt.Errorf("%s failed: %w", tool.Name, err)
		}

		fmt.Fprintf(out, "%s %s %s\n", green("✓"), bold(tool.Name), gray(fmt.Sprintf("%v", arguments)))
		fmt.Fprintln(out, result.Text())

		if !interactive {
			return nil
		}

		again := false
		if err := survey.AskOne(&survey.Confirm{Message: "Call another tool?", Default: true}, &again); err != nil || !again {
			return nil
		}
		fmt.Fprintln(out)
	}
}

// selectTool returns the --tool flag's tool or asks for one.
func selectTool(tools []mcp.Tool) (mcp.Tool, error) {
	if callTool != "" {
		tool, ok := mcp.FindTool(tools, callTool)
		if !ok {
			return mcp.Tool{}, fmt.Errorf("tool '%s' not found (available: %s)", callTool, strings.Join(toolNames(tools), ", "))
		}
		return tool, nil
	}

	if len(tools) == 0 {
		return mcp.Tool{}, fmt.Errorf("the server exposes no tools")
	}

	var name string
	prompt := &survey.Select{
		Message: "Select a tool:",
		Options: toolNames(tools),
		Description: func(value string, index int) string {
			return tools[index].Description
		},
	}
	if err := survey.AskOne(prompt, &name, survey.WithPageSize(10)); err != nil {
		return mcp.Tool{}, err
	}

	tool, _ := mcp.FindTool(tools, name)
	return tool, nil
}

// promptArguments asks for every schema property. Optional ones left empty
// are not sent.
func promptArguments(tool mcp.Tool) (map[string]any, error) {
	arguments := map[string]any{}
	for _, name := range tool.ArgumentNames() {
		var value string
		opts := []survey.AskOpt{}
		if tool.IsRequired(name) {
			opts = append(opts, survey.WithValidator(survey.Required))
		}

		prompt := &survey.Input{
			Message: name + ":",
			Help:    tool.ArgumentDescription(name),
		}
		if err := survey.AskOne(prompt, &value, opts...); err != nil {
			return nil, err
		}
		if value != "" || tool.IsRequired(name) {
			arguments[name] = value
		}
	}
	return arguments, nil
}

func toolNames(tools []mcp.Tool) []string {
	return lo.Map(tools, func(t mcp.Tool, _ int) string { return t.Name })
}

// parseArgPairs turns key=value flags into tool arguments.
func parseArgPairs(pairs []string) (map[string]any, error) {
	arguments := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q (want key=value)", pair)
		}
		arguments[key] = value
	}
	return arguments, nil
}
