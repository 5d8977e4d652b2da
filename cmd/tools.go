package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"testmcp/internal/mcp"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:     "tools",
	Aliases: []string{"ls"},
	Short:   "List the tools this server exposes",
	Long:    `Print the tool catalogue returned by tools/list, with each tool's arguments.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tools := mcp.Tools()
		out := cmd.OutOrStdout()

		if toolsJSON {
			data, err := json.MarshalIndent(mcp.ListToolsResult{Tools: tools}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		bold := color.New(color.Bold).SprintFunc()

		fmt.Fprintf(out, "%s %s\n\n", bold(fmt.Sprintf("%d", len(tools))), gray("tool(s) available"))

		for _, tool := range tools {
			fmt.Fprintf(out, "%s %s\n", green("●"), bold(tool.Name))
			fmt.Fprintf(out, "  %s\n", tool.Description)

			for _, name := range tool.ArgumentNames() {
				requirement := "optional"
				if tool.IsRequired(name) {
					requirement = "required"
				}
				fmt.Fprintf(out, "  %s %s %s\n", yellow(name), gray("("+requirement+")"), tool.ArgumentDescription(name))
			}

			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print the raw tools/list result")
}
