package cmd

import (
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"testmcp/internal/config"
	"testmcp/internal/logging"
	"testmcp/internal/mcp"
)

var (
	appFs   = afero.NewOsFs()
	builder = mcp.NewClaudeCmdBuilder()

	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "test-mcp-server",
	Short: "A minimal MCP server over stdio for testing client integrations",
	Long: `test-mcp-server speaks line-delimited JSON-RPC 2.0 on stdin/stdout and
exposes three tools: echo, get_env and list_files.

Run without a subcommand it behaves exactly like 'test-mcp-server serve', so
the binary can be dropped straight into an MCP client configuration.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.test-mcp-server/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(unregisterCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)
}

// resolveConfigPath returns --config or the default location.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

// loadConfig reads the config file and applies the logging flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(appFs, path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
}

func newServer(cfg *config.Config, logger *slog.Logger) *mcp.Server {
	return mcp.NewServer(
		mcp.WithInfo(mcp.Implementation{Name: cfg.Server.Name, Version: cfg.Server.Version}),
		mcp.WithProtocolVersion(cfg.Server.ProtocolVersion),
		mcp.WithMaskSensitiveEnv(cfg.Tools.MaskSensitiveEnv),
		mcp.WithFs(appFs),
		mcp.WithLogger(logger),
	)
}

// clientInfo identifies the CLI when it acts as a client.
func clientInfo(cfg *config.Config) mcp.Implementation {
	return mcp.Implementation{Name: cfg.Server.Name + "-cli", Version: cfg.Server.Version}
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script",
	Long: `To load completions:

Bash:
  $ source <(test-mcp-server completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ test-mcp-server completion bash > /etc/bash_completion.d/test-mcp-server
  # macOS:
  $ test-mcp-server completion bash > $(brew --prefix)/etc/bash_completion.d/test-mcp-server

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it.  You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ test-mcp-server completion zsh > "${fpath[1]}/_test-mcp-server"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ test-mcp-server completion fish | source

  # To load completions for each session, execute once:
  $ test-mcp-server completion fish > ~/.config/fish/completions/test-mcp-server.fish

PowerShell:
  PS> test-mcp-server completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> test-mcp-server completion powershell > test-mcp-server.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
	},
}
