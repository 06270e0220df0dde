package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbet/internal/crypto"
	"github.com/alanyoungcy/updownbet/internal/eventbus"
	"github.com/alanyoungcy/updownbet/internal/keeper"
	"github.com/alanyoungcy/updownbet/internal/notify"
	"github.com/alanyoungcy/updownbet/internal/oracle"
	"github.com/alanyoungcy/updownbet/internal/pipeline"
	"github.com/alanyoungcy/updownbet/internal/server"
	"github.com/alanyoungcy/updownbet/internal/server/handler"
	"github.com/alanyoungcy/updownbet/internal/server/ws"
	"github.com/alanyoungcy/updownbet/internal/service"
)

// services holds the market services shared by every mode.
type services struct {
	admin      *service.AdminService
	epochs     *service.EpochService
	bets       *service.BetService
	settlement *service.SettlementService
	claims     *service.ClaimService

	notifySink *notify.EventSink
}

// buildServices constructs the market services. Every committed event fans
// out to the signal bus, the metrics recorder and the notifier.
func (a *App) buildServices(deps *Dependencies) (*services, error) {
	rule, err := service.ParseOutcomeRule(a.cfg.Protocol.OutcomeRule)
	if err != nil {
		return nil, err
	}

	notifySink := notify.NewEventSink(deps.Notifier, 0, a.logger)
	sinks := []service.EventSink{
		eventbus.NewPublisher(deps.SignalBus, a.logger),
		deps.Metrics,
		notifySink,
	}
	now := service.Clock(time.Now)

	return &services{
		admin:      service.NewAdminService(deps.Ledger, sinks, now, a.logger),
		epochs:     service.NewEpochService(deps.Ledger, sinks, now, a.logger),
		bets:       service.NewBetService(deps.Ledger, sinks, now, a.logger),
		settlement: service.NewSettlementService(deps.Ledger, deps.Oracle, rule, sinks, now, a.logger),
		claims:     service.NewClaimService(deps.Ledger, sinks, now, a.logger),
		notifySink: notifySink,
	}, nil
}

// ServerMode serves the HTTP and WebSocket API. Epochs are driven by a
// separate keeper process or by callers of the lock and close routes.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startNotifier(ctx, g, svcs)
	a.startHTTPServer(ctx, g, deps, svcs)
	return g.Wait()
}

// KeeperMode runs the keeper loop together with the price feeder and the
// archive schedule.
func (a *App) KeeperMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting keeper mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startNotifier(ctx, g, svcs)
	a.startPipeline(ctx, g, deps, svcs)
	return g.Wait()
}

// FullMode runs the API and the keeper in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, svcs *services) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startNotifier(ctx, g, svcs)
	a.startPipeline(ctx, g, deps, svcs)
	a.startHTTPServer(ctx, g, deps, svcs)
	return g.Wait()
}

func (a *App) startNotifier(ctx context.Context, g *errgroup.Group, svcs *services) {
	g.Go(func() error {
		return svcs.notifySink.Run(ctx)
	})
}

// buildKeeper creates the keeper and routes its failures to metrics and
// notifications.
func (a *App) buildKeeper(deps *Dependencies, svcs *services) *keeper.Keeper {
	var address string
	if deps.Signer != nil {
		address = deps.Signer.Address()
	} else {
		a.logger.Warn("no keeper wallet configured, settlement tips will not be collected")
	}

	k := keeper.New(keeper.Config{
		Interval: a.cfg.Keeper.Interval.Duration,
		LockTTL:  a.cfg.Keeper.LockTTL.Duration,
		Address:  address,
	}, svcs.epochs, svcs.settlement, deps.Ledger, deps.LockManager, time.Now, a.logger)

	k.OnError(func(ctx context.Context, op, asset string, err error) {
		deps.Metrics.KeeperError(op)
		// Sender errors are already logged by the notifier.
		_ = deps.Notifier.Notify(ctx, notify.EventKeeperError, notify.KeeperError(op, asset, err))
	})
	return k
}

// startPipeline launches the orchestrator: the keeper, the price feeder when
// prices come from the shared cache, and the archiver when S3 is configured.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	var feeder pipeline.Runner
	if deps.PriceCache != nil {
		feeder = oracle.NewFeeder(deps.Pyth, deps.PriceCache, deps.Ledger, a.cfg.Oracle.PollEvery.Duration, a.logger)
	}

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.Retention(), a.logger)
	}

	orch := pipeline.NewOrchestrator(a.buildKeeper(deps, svcs), feeder, archiver, a.cfg.Archive.Cron, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// startHTTPServer builds the handlers, the WebSocket hub and the server, and
// registers the serve and shutdown goroutines on g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.SignalBus, eventbus.ChannelOf, a.cfg.Server.CORSOrigins, a.logger).
		WithResume(eventbus.Stream)

	market := handler.NewMarketHandler(deps.Ledger, a.logger)
	if deps.ArchiveReader != nil {
		market.WithArchive(deps.ArchiveReader)
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, deps.Health, a.logger),
		Market:  market,
		Epochs:  handler.NewEpochHandler(svcs.epochs, svcs.bets, svcs.settlement, svcs.claims, a.logger),
		Account: handler.NewAccountHandler(deps.Ledger, a.logger),
		Admin:   handler.NewAdminHandler(svcs.admin, a.logger),
		Metrics: promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}),
	}
	srvDeps := server.Deps{
		Verifier: crypto.NewVerifier(a.cfg.Server.SignatureMaxSkew.Duration, time.Now),
		Limiter:  deps.RateLimiter,
		Replay:   deps.ReplayGuard,
		Hub:      hub,
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, srvDeps, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening", slog.Int("port", a.cfg.Server.Port))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}
