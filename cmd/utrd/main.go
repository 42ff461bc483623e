// Command utrd runs the token-router daemon: an HTTP API over an in-process
// token world, the execute entry point, the grant registry, and the run
// ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chainlane/utr/pkg/api"
	"github.com/chainlane/utr/pkg/config"
	"github.com/chainlane/utr/pkg/observability"
	"github.com/chainlane/utr/pkg/registry"
	"github.com/chainlane/utr/pkg/router"
	"github.com/chainlane/utr/pkg/token"
)

// routerAddress is the account the daemon's router owns in the local world.
// Callers grant this address their transfer allowances.
const routerAddress = "0xrouter"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "utrd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obsCfg := observability.DefaultConfig()
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	obsCfg.Insecure = true
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("initializing observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	store, err := registry.OpenSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening grant store: %w", err)
	}
	defer func() { _ = store.Close() }()

	reg, err := registry.NewRegistry(store)
	if err != nil {
		return fmt.Errorf("building registry: %w", err)
	}

	world := token.NewWorld()
	rt := router.New(world, routerAddress).WithLogger(logger)

	srv := api.NewServer(rt, reg, logger).WithObservability(obs)
	limiter := api.NewGlobalRateLimiter(cfg.RateLimit, cfg.RateBurst)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("utrd listening",
			"addr", cfg.ListenAddr,
			"database", cfg.DatabasePath,
			"router", routerAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
