package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"marketdata/internal/app"
	"marketdata/internal/logging"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var noPoll bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background poller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Polling.Enabled && !noPoll {
				if err := a.Poller.Start(); err != nil {
					return err
				}
			}

			srv := &http.Server{
				Addr:              ":" + cfg.Server.Port,
				Handler:           a.Handler,
				ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
			}
			entry := logging.WithComponent(log, "serve")
			errCh := make(chan error, 1)
			go func() {
				entry.WithField("addr", srv.Addr).Info("server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			entry.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&noPoll, "no-poll", false, "disable the background poller")
	return cmd
}
