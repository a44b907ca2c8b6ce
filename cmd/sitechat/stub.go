package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"SiteChat/internal/config"
	"SiteChat/internal/stubserver"
	"SiteChat/internal/telemetry"
)

func newStubCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Run a local stand-in for the assistant backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logFile.Close()

			store, err := stubserver.OpenStore(cfg.StubDB)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := stubserver.NewServer(store, stubserver.WithLogger(logger))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(cfg.StubAddr)
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "stub backend listening on %s\n", cfg.StubAddr)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("stub backend stopped: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&cfg.StubAddr, "addr", cfg.StubAddr, "Listen address")
	cmd.Flags().StringVar(&cfg.StubDB, "db", cfg.StubDB, "SQLite database file")
	return cmd
}
