package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fenwerk/dispatch-go/internal/board"
	"github.com/fenwerk/dispatch-go/internal/config"
)

// metricsShutdownTimeout bounds the HTTP server drain on exit.
const metricsShutdownTimeout = 5 * time.Second

// newWatchCmd returns the "watch" command: a long-running daemon that keeps
// the local cache converged with the backend. It subscribes to the server's
// event stream for remote invalidations, hot-reloads the config file, and
// exposes engine metrics for scraping.
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the cache convergence daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if a.cfg.Server.EventsURL == "" {
				return fmt.Errorf("watch requires server.events_url in the config")
			}

			registry := prometheus.NewRegistry()
			metrics := board.NewMetrics(registry)
			a.store.SetMetrics(metrics)
			a.exec.SetMetrics(metrics)
			a.coord.SetMetrics(metrics)

			// Fill the cache before the observer starts so the first remote
			// event diffs against fresh data.
			if err := a.refresh(ctx); err != nil {
				a.logger.Warn("initial refresh failed, continuing with warm-start data",
					slog.String("error", err.Error()),
				)
			}

			observer := board.NewObserver(
				a.cfg.Server.EventsURL,
				a.cfg.Server.AuthToken,
				a.store,
				a.key,
				a.logger,
			)
			observer.SetMetrics(metrics)

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return observer.Run(gctx)
			})

			g.Go(func() error {
				return serveMetrics(gctx, a.cfg.Sync.MetricsAddr, registry, a.logger)
			})

			g.Go(func() error {
				cfgPath := flagConfigPath
				if cfgPath == "" {
					cfgPath = config.DefaultConfigPath()
				}

				return config.Watch(gctx, cfgPath, a.logger, func(next *config.Config) {
					// Range and logging changes apply on the next restart;
					// what matters live is noticing the edit at all.
					a.logger.Info("config change detected",
						slog.Int("months_back", next.Sync.MonthsBack),
						slog.Int("months_ahead", next.Sync.MonthsAhead),
					)
				})
			})

			a.logger.Info("watch daemon running",
				slog.String("key", string(a.key)),
				slog.String("metrics_addr", a.cfg.Sync.MetricsAddr),
			)

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				a.logger.Info("watch daemon stopped")
				return nil
			}

			return err
		},
	}

	return cmd
}

// serveMetrics runs the Prometheus scrape endpoint until ctx is canceled.
func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)

		return ctx.Err()
	case err := <-errCh:
		logger.Error("metrics server failed", slog.String("error", err.Error()))
		return err
	}
}
