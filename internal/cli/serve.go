package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/me/nightsched/internal/config"
	"github.com/me/nightsched/internal/server"
	"github.com/me/nightsched/internal/store"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cfg := config.DefaultServerConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs over the read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := config.ResolveDBPath(flagDB)
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(dbPath, logger)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer st.Close()
			if err := st.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			logger.Info("database ready", "path", dbPath)

			cfg.DBPath = dbPath
			srv := server.New(cfg, st, logger)
			httpServer := &http.Server{
				Addr:              cfg.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx := cmd.Context()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", cfg.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	return cmd
}
