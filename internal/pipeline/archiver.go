package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// Archiver copies finished epochs older than the retention window to cold
// storage on a cron schedule.
type Archiver struct {
	blobArchiver domain.Archiver
	retention    time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver domain.Archiver, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver: blobArchiver,
		retention:    retention,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.now().UTC().Add(-a.retention)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Duration("retention", a.retention),
	)

	n, err := a.blobArchiver.ArchiveEpochs(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving epochs before %v: %w", cutoff, err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("epochs_archived", n))
	return nil
}

// ParseSchedule validates a standard 5-field cron expression
// ("minute hour day-of-month month day-of-week"). Descriptors such as
// "@daily" are accepted too.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// RunCron runs the archiver on the schedule until ctx is cancelled. Runs
// never overlap; a run still in progress when the next trigger fires makes
// that trigger a no-op.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(func() {
		if err := a.Run(ctx); err != nil {
			a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
	}))
	a.logger.InfoContext(ctx, "archiver cron started",
		slog.String("cron", expr),
		slog.Time("next_run", sched.Next(a.now())),
	)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	a.logger.Info("archiver cron stopped")
	return nil
}
