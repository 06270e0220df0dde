package service

import (
	"context"
	"time"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// EventSink receives events after the transaction that produced them has
// committed. Sinks must not block for long; failures are theirs to log.
type EventSink interface {
	HandleEvent(ctx context.Context, ev domain.Event)
}

// Clock returns the current time. Tests replace it.
type Clock func() time.Time

// committer runs ledger transactions and fans committed events out to sinks.
type committer struct {
	ledger domain.Ledger
	sinks  []EventSink
	now    Clock
}

func newCommitter(ledger domain.Ledger, sinks []EventSink, now Clock) committer {
	if now == nil {
		now = time.Now
	}
	return committer{ledger: ledger, sinks: sinks, now: now}
}

// outbox collects the events emitted inside one transaction attempt.
type outbox struct {
	tx     domain.Tx
	events []domain.Event
}

func (o *outbox) emit(ctx context.Context, typ domain.EventType, asset string, epochID uint64, ts int64, payload any) error {
	ev, err := domain.NewEvent(typ, asset, epochID, ts, payload)
	if err != nil {
		return err
	}
	ev, err = o.tx.Emit(ctx, ev)
	if err != nil {
		return err
	}
	o.events = append(o.events, ev)
	return nil
}

// commit runs fn atomically and, once committed, delivers its events. Nothing
// is delivered when fn or the commit fails.
func (c committer) commit(ctx context.Context, fn func(tx domain.Tx, out *outbox) error) error {
	var out *outbox
	err := c.ledger.Atomically(ctx, func(tx domain.Tx) error {
		out = &outbox{tx: tx}
		return fn(tx, out)
	})
	if err != nil {
		return err
	}
	for _, ev := range out.events {
		for _, s := range c.sinks {
			s.HandleEvent(ctx, ev)
		}
	}
	return nil
}

func (c committer) unix() int64 {
	return c.now().Unix()
}
