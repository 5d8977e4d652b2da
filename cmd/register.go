package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"testmcp/internal/mcp"
)

var (
	registerName    string
	registerScope   string
	registerEnv     []string
	registerDryRun  bool
	registerJSON    bool
	registerYes     bool
	registerVerbose bool
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this server with Claude",
	Long: `Add this binary as a stdio MCP server to Claude with 'claude mcp add'.

Use --dry-run to see the command without running it, or --json to print an
mcpServers entry for clients configured through a JSON file. Secret-looking
environment values are never printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		env, err := mcp.ParseEnvPairs(registerEnv)
		if err != nil {
			return err
		}
		command, commandArgs, err := selfCommand()
		if err != nil {
			return err
		}

		reg := &mcp.Registration{
			Name:    registerName,
			Command: command,
			Args:    commandArgs,
			Env:     env,
			Scope:   registerScope,
		}
		if reg.Name == "" {
			reg.Name = cfg.Server.Name
		}

		out := cmd.OutOrStdout()
		builder.Output = out
		builder.ErrOutput = cmd.ErrOrStderr()

		if registerJSON {
			entry, err := builder.BuildClientConfig(reg)
			if err != nil {
				return fmt.Errorf("failed to render client config: %w", err)
			}
			fmt.Fprintln(out, entry)
			return nil
		}

		if registerDryRun {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(out, "%s\n\n", yellow("Would execute the following command:"))
			fmt.Fprintf(out, "$ %s\n", builder.BuildRegisterCommand(reg))
			return nil
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()

		if !registerYes {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("Register %s with Claude", cyan(reg.Name)),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				fmt.Fprintln(out, "Cancelled.")
				return nil
			}
		}

		fmt.Fprintf(out, "Registering '%s'...\n", reg.Name)
		if err := builder.Register(reg, registerVerbose); err != nil {
			return err
		}

		fmt.Fprintf(out, "%s %s\n", green("✓"), green(fmt.Sprintf("Successfully registered '%s'", reg.Name)))
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerName, "name", "", "name to register under (default server.name from config)")
	registerCmd.Flags().StringVar(&registerScope, "scope", "", "claude configuration scope: local, user or project")
	registerCmd.Flags().StringArrayVarP(&registerEnv, "env", "e", nil, "environment variable as KEY=VALUE (repeatable)")
	registerCmd.Flags().BoolVarP(&registerDryRun, "dry-run", "n", false, "Show the command that would be executed without running it")
	registerCmd.Flags().BoolVar(&registerJSON, "json", false, "print an mcpServers JSON entry instead of registering")
	registerCmd.Flags().BoolVarP(&registerYes, "yes", "y", false, "skip the confirmation prompt")
	registerCmd.Flags().BoolVarP(&registerVerbose, "verbose", "v", false, "show the claude command and its output")
}
