package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatforge/nlukit/internal/server"
)

// newServeCommand creates the 'serve' subcommand.
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the operational HTTP server",
		Long: `Run the operational HTTP server.

Serves /healthz, Prometheus metrics on /metrics, and a live WebSocket feed
of knowledge-base mutations on /ws. The server runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			srv := server.New(a.cfg.Server, a.logger)
			srv.Subscribe(a.bus)

			if _, err := srv.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			a.logger.Info().Msg("shutting down")
			return nil
		},
	}
}
