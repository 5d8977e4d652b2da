package cmd

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show whether this server is registered with Claude",
	Long:  `Display what Claude knows about the server added with 'register'. The name defaults to server.name from config.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		name := cfg.Server.Name
		if len(args) == 1 {
			name = args[0]
		}

		output, err := builder.Describe(name)
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("claude CLI not found in PATH")
		}

		out := cmd.OutOrStdout()
		gray := color.New(color.FgHiBlack).SprintFunc()
		if err != nil {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(out, "%s\n", yellow(fmt.Sprintf("'%s' is not registered with Claude.", name)))
			fmt.Fprintf(out, "%s %s\n", gray("→"), gray("Use 'test-mcp-server register' to add it"))
			return nil
		}

		fmt.Fprintf(out, "%s\n", gray("$ "+builder.BuildStatusCommand(name)))
		fmt.Fprint(out, output)
		return nil
	},
}
