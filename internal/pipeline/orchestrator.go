// Package pipeline runs the background workers of the market: the keeper,
// the oracle price feeder and the cold-storage archiver.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner is a long-lived worker that returns when ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Orchestrator manages the background goroutines. Any worker may be nil.
type Orchestrator struct {
	keeper      Runner
	feeder      Runner
	archiver    *Archiver
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(keeper, feeder Runner, archiver *Archiver, archiveCron string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		keeper:      keeper,
		feeder:      feeder,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger.With(slog.String("component", "pipeline")),
	}
}

// Run starts every configured worker in an errgroup. A worker failing with
// a non-context error cancels the rest and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "pipeline orchestrator starting",
		slog.Bool("keeper", o.keeper != nil),
		slog.Bool("feeder", o.feeder != nil),
		slog.Bool("archiver", o.archiver != nil),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.feeder != nil {
		g.Go(func() error {
			return o.supervise(ctx, "price feeder", o.feeder.Run)
		})
	}
	if o.keeper != nil {
		g.Go(func() error {
			return o.supervise(ctx, "keeper", o.keeper.Run)
		})
	}
	if o.archiver != nil {
		g.Go(func() error {
			return o.supervise(ctx, "archiver", func(ctx context.Context) error {
				return o.archiver.RunCron(ctx, o.archiveCron)
			})
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

func (o *Orchestrator) supervise(ctx context.Context, name string, run func(context.Context) error) error {
	err := run(ctx)
	if ctx.Err() != nil {
		return nil // clean shutdown
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
