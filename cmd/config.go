package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"testmcp/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage server configuration",
	Long: `Show, create, or edit the configuration file.

Every key can also be set from the environment with the TESTMCP_ prefix,
e.g. TESTMCP_LOG_LEVEL=debug or TESTMCP_TOOLS_MASK_SENSITIVE_ENV=true.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		blue := color.New(color.FgBlue).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		out := cmd.OutOrStdout()
		exists, _ := afero.Exists(appFs, path)
		if exists {
			fmt.Fprintf(out, "%s %s\n\n", gray("file:"), blue(path))
		} else {
			fmt.Fprintf(out, "%s %s %s\n\n", gray("file:"), blue(path), gray("(not created, using defaults)"))
		}

		settings := cfg.Settings()
		keys := lo.Keys(settings)
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(out, "%s = %v\n", yellow(key), settings[key])
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		out := cmd.OutOrStdout()

		exists, err := afero.Exists(appFs, path)
		if err != nil {
			return err
		}
		if exists && !configInitForce {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("%s already exists. Overwrite it", cyan(path)),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				fmt.Fprintln(out, "Cancelled.")
				return nil
			}
		}

		if err := config.Save(appFs, path, config.Default()); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Fprintf(out, "%s %s\n", green("✓"), green(fmt.Sprintf("Wrote default config to %s", path)))
		return nil
	},
}

var configOpenCmd = &cobra.Command{
	Use:   "open [key]",
	Short: "Open the config file in an editor",
	Long:  `Open the configuration file in nano editor, creating it with defaults first if needed. Optionally give a key to jump to.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}

		exists, err := afero.Exists(appFs, path)
		if err != nil {
			return err
		}
		if !exists {
			if err := config.Save(appFs, path, config.Default()); err != nil {
				return fmt.Errorf("failed to create config: %w", err)
			}
		}

		search := ""
		if len(args) == 1 {
			search = args[0]
		}

		color.Cyan("Opening config file...\n")
		if err := openInEditor(path, search); err != nil {
			return err
		}

		// A broken edit should be reported now rather than on the next serve.
		if _, err := config.Load(appFs, path); err != nil {
			return fmt.Errorf("config is invalid after editing: %w", err)
		}

		color.Green("Config file is valid.\n")
		return nil
	},
}

func openInEditor(configPath, search string) error {
	// Check if nano is available, fallback to other editors
	var editorCmd *exec.Cmd

	if _, err := exec.LookPath("nano"); err == nil {
		if search != "" {
			editorCmd = exec.Command("nano", "+/"+search, configPath)
		} else {
			editorCmd = exec.Command("nano", configPath)
		}
	} else if editor := os.Getenv("EDITOR"); editor != "" {
		editorCmd = exec.Command(editor, configPath)
	} else if _, err := exec.LookPath("vim"); err == nil {
		if search != "" {
			editorCmd = exec.Command("vim", "+/"+search, configPath)
		} else {
			editorCmd = exec.Command("vim", configPath)
		}
	} else if _, err := exec.LookPath("vi"); err == nil {
		editorCmd = exec.Command("vi", configPath)
	} else {
		return fmt.Errorf("no suitable editor found. Please install nano or set $EDITOR environment variable")
	}

	// Set up the editor to use the current terminal
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	return editorCmd.Run()
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file without asking")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configOpenCmd)
}
