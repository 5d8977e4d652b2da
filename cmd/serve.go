package cmd

import (
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// stopGrace bounds how long a signalled serve waits for the read loop.
const stopGrace = time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP requests on stdin/stdout",
	Long: `Read one JSON-RPC request per line from stdin and write one response per
line to stdout until stdin closes. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := newServer(cfg, logger)
	logger.Info("serving on stdio", "name", cfg.Server.Name, "version", cfg.Server.Version, "protocol", cfg.Server.ProtocolVersion)

	// Serve only notices cancellation between lines, so a signal must not
	// wait for the next request to arrive.
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("server stopped", "error", err)
			return err
		}
		logger.Info("stdin closed, shutting down")
		return nil
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		// Closing stdin unblocks the pending read; a reader that cannot be
		// closed leaves Serve parked until the process exits.
		if c, ok := cmd.InOrStdin().(io.Closer); ok {
			c.Close()
			select {
			case <-done:
			case <-time.After(stopGrace):
			}
		}
		return nil
	}
}
