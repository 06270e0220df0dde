// Package app provides the top-level application lifecycle for the up/down
// market. It wires together the ledger, caches, oracle, blob storage,
// services, the keeper and notifications, and starts the goroutines the
// configured operating mode needs.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/updownbet/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.String("storage", a.cfg.Storage.Driver),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("app: build services: %w", err)
	}
	if err := a.bootstrap(ctx, svcs); err != nil {
		return fmt.Errorf("app: bootstrap: %w", err)
	}

	switch strings.ToLower(a.cfg.Mode) {
	case config.ModeServer:
		return a.ServerMode(ctx, deps, svcs)
	case config.ModeKeeper:
		return a.KeeperMode(ctx, deps, svcs)
	case config.ModeFull:
		return a.FullMode(ctx, deps, svcs)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// bootstrap initializes the protocol from the [protocol] section when the
// ledger has not been initialized yet.
func (a *App) bootstrap(ctx context.Context, svcs *services) error {
	if !a.cfg.Protocol.Bootstrappable() {
		a.logger.InfoContext(ctx, "protocol section incomplete, skipping bootstrap")
		return nil
	}
	return svcs.admin.Bootstrap(ctx, a.cfg.Protocol.Domain(), a.cfg.Protocol.DomainAssets())
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
