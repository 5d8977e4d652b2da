package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var (
	unregisterDryRun  bool
	unregisterYes     bool
	unregisterVerbose bool
)

var unregisterCmd = &cobra.Command{
	Use:   "unregister [name]",
	Short: "Remove this server from Claude",
	Long:  `Remove a server added with 'register' by running 'claude mcp remove'. The name defaults to server.name from config.`,
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

		out := cmd.OutOrStdout()
		builder.Output = out
		builder.ErrOutput = cmd.ErrOrStderr()

		if unregisterDryRun {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(out, "%s\n\n", yellow("Would execute the following command:"))
			fmt.Fprintf(out, "$ %s\n", builder.BuildUnregisterCommand(name))
			return nil
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()

		if !unregisterYes {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("Are you sure you want to remove %s from Claude", cyan(name)),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				fmt.Fprintln(out, "Cancelled.")
				return nil
			}
		}

		if err := builder.Unregister(name, unregisterVerbose); err != nil {
			return err
		}

		fmt.Fprintf(out, "%s %s\n", green("✓"), green(fmt.Sprintf("Successfully removed '%s'", name)))
		return nil
	},
}

func init() {
	unregisterCmd.Flags().BoolVarP(&unregisterDryRun, "dry-run", "n", false, "Show the command that would be executed without running it")
	unregisterCmd.Flags().BoolVarP(&unregisterYes, "yes", "y", false, "skip the confirmation prompt")
	unregisterCmd.Flags().BoolVarP(&unregisterVerbose, "verbose", "v", false, "show the claude command and its output")
}
