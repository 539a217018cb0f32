// Command dispatch-go is the CLI host for the delivery plan board: it
// renders calendar state, moves orders between deliveries, and runs the
// watch daemon that keeps the local cache converged with the backend.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenwerk/dispatch-go/internal/api"
	"github.com/fenwerk/dispatch-go/internal/board"
	"github.com/fenwerk/dispatch-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagVerbose    bool
	flagQuiet      bool
)

// httpClientTimeout prevents hung connections from blocking CLI commands
// indefinitely.
const httpClientTimeout = 30 * time.Second

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dispatch-go",
		Short:         "Plan board client for the dispatch backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress status output")

	cmd.AddCommand(
		newBoardCmd(),
		newMoveCmd(),
		newDeliveryCmd(),
		newWorkdayCmd(),
		newWatchCmd(),
	)

	return cmd
}

// app bundles the wired engine components for one command invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	client    *api.Client
	store     *board.Store
	cacheFile *board.CacheFile
	exec      *board.Executor
	tracker   *board.Tracker
	coord     *board.Coordinator
	key       board.Key
	months    []board.Month
}

// newApp loads config and wires the engine. The returned cleanup func closes
// the cache file.
func newApp(ctx context.Context) (*app, func(), error) {
	cfgPath := flagConfigPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	token, err := buildTokenSource(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	client := api.NewClient(cfg.Server.BaseURL, &http.Client{Timeout: httpClientTimeout}, token, logger)

	store := board.NewStore(client, logger)
	notify := newToastNotifier()
	exec := board.NewExecutor(store, client, notify, logger)
	tracker := board.NewTracker()
	coord := board.NewCoordinator(exec, tracker, notify, logger)

	months := make([]board.Month, 0)
	for _, m := range cfg.Months(time.Now()) {
		months = append(months, board.Month(m))
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		store:   store,
		exec:    exec,
		tracker: tracker,
		coord:   coord,
		key:     board.CalendarKey(months...),
		months:  months,
	}

	cleanup := func() {}

	if cfg.Cache.WarmStart {
		cacheFile, err := board.OpenCacheFile(ensureDir(cfg.Cache.Path), logger)
		if err != nil {
			// Warm start is an optimisation; a broken cache file must not
			// keep the board from working.
			logger.Warn("cache file unavailable", slog.String("error", err.Error()))
		} else {
			a.cacheFile = cacheFile
			store.SetRefetchHook(cacheFile.Hook())

			if err := cacheFile.Prime(ctx, store, a.key); err != nil {
				logger.Warn("warm start failed", slog.String("error", err.Error()))
			}

			cleanup = func() { cacheFile.Close() }
		}
	}

	return a, cleanup, nil
}

// refresh synchronously reconciles the active key with the backend. When the
// fetch fails but a warm-started value exists, the stale value is kept and a
// warning is printed instead of failing the command.
func (a *app) refresh(ctx context.Context) error {
	err := a.store.Refresh(ctx, a.key)
	if err == nil {
		return nil
	}

	if _, ok := a.store.Read(a.key); ok {
		statusf("warning: showing cached data, refresh failed: %v\n", err)
		return nil
	}

	return fmt.Errorf("fetching calendar: %w", err)
}

// batch returns the active key's current value, fetching it first if the
// cache is empty.
func (a *app) batch(ctx context.Context) (*board.CalendarBatch, error) {
	if b, ok := a.store.Read(a.key); ok {
		return b, nil
	}

	if err := a.refresh(ctx); err != nil {
		return nil, err
	}

	b, ok := a.store.Read(a.key)
	if !ok {
		return nil, fmt.Errorf("calendar data unavailable")
	}

	return b, nil
}

// buildLogger constructs the slog logger from config plus the verbosity flags.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	} else if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// buildTokenSource picks the configured auth mechanism: static token first,
// then OAuth2 client credentials.
func buildTokenSource(ctx context.Context, cfg *config.Config) (api.TokenSource, error) {
	if cfg.Server.AuthToken != "" {
		return api.StaticTokenSource(cfg.Server.AuthToken), nil
	}

	if cfg.Server.TokenURL != "" && cfg.Server.ClientID != "" {
		return api.ClientCredentialsSource(ctx, cfg.Server.TokenURL, cfg.Server.ClientID, cfg.Server.ClientSecret), nil
	}

	return nil, api.ErrNoCredentials
}

// ensureDir creates the parent directory of path, best-effort, and returns
// path unchanged.
func ensureDir(path string) string {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	return path
}
