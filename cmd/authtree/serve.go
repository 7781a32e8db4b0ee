package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/aretw0/authtree/pkg/adapters/http"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authentication HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := globals.cfg, globals.logger
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Warn("shutdown cleanup failed", "err", err)
			}
		}()

		if err := a.flows.Warm(ctx, "/"); err != nil {
			logger.Warn("failed to preload flows", "err", err)
		}

		opts := []httpAdapter.Option{httpAdapter.WithLogger(logger)}
		if a.metrics != nil {
			opts = append(opts, httpAdapter.WithMetrics(a.metrics))
		}
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           httpAdapter.NewHandler(a.engine, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("authtree server listening", "addr", srv.Addr, "store", cfg.Store.Driver, "registry", cfg.Registry.Driver)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				return srv.Close()
			}
			logger.Info("authtree server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides server.addr)")
}
