package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var noTick bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ops server and the periodic due-site crawl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := a.Logger()
			cfg := a.Config()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           a.Server().Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			if !noTick {
				go func() {
					logger.Info("scheduler loop started", zap.Duration("tick", cfg.Scheduler.Tick))
					a.Scheduler().Loop(ctx, cfg.Scheduler.Tick)
				}()
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server started", zap.Int("port", cfg.Server.Port))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
					stop()
				}
			}()

			<-ctx.Done()
			logger.Info("shutdown initiated")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
			a.Scheduler().Close()
			logger.Info("shutdown complete")

			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			default:
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&noTick, "no-tick", false, "serve triggers only; skip the periodic due check")
	return cmd
}
