package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// EventKeeperError is the notification type used for failed keeper runs. It
// is not a ledger event.
const EventKeeperError = "keeper_error"

// DefaultEvents are the event types forwarded when none are configured.
var DefaultEvents = []string{
	string(domain.EventEpochSettled),
	string(domain.EventEpochInvalid),
	string(domain.EventTipSkipped),
	EventKeeperError,
}

// EventSink turns committed market events into notifications. Delivery runs on
// its own goroutine so slow webhooks never hold up the caller.
type EventSink struct {
	notifier *Notifier
	queue    chan domain.Event
	logger   *slog.Logger
}

// NewEventSink creates an EventSink with a queue of the given size.
func NewEventSink(n *Notifier, size int, logger *slog.Logger) *EventSink {
	if size <= 0 {
		size = 256
	}
	return &EventSink{
		notifier: n,
		queue:    make(chan domain.Event, size),
		logger:   logger.With(slog.String("component", "notify_sink")),
	}
}

// HandleEvent queues ev for delivery. Events are dropped when the queue is
// full.
func (s *EventSink) HandleEvent(ctx context.Context, ev domain.Event) {
	if !s.notifier.Enabled(string(ev.Type)) {
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.logger.WarnContext(ctx, "notification queue full, dropping event",
			slog.Uint64("seq", ev.Seq),
			slog.String("type", string(ev.Type)),
		)
	}
}

// Run delivers queued events until ctx is cancelled.
func (s *EventSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.queue:
			msg, err := FormatEvent(ev)
			if err != nil {
				s.logger.WarnContext(ctx, "format event", slog.String("error", err.Error()))
				continue
			}
			// Sender errors are already logged by the notifier.
			_ = s.notifier.Notify(ctx, string(ev.Type), msg)
		}
	}
}

// FormatEvent renders a ledger event as a Message.
func FormatEvent(ev domain.Event) (Message, error) {
	epoch := fmt.Sprintf("%s #%d", ev.Asset, ev.EpochID)
	switch ev.Type {
	case domain.EventEpochSettled:
		var p domain.EpochSettledPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("notify: decode %s: %w", ev.Type, err)
		}
		price := domain.PriceReading{Price: p.Price, Expo: p.Expo}.Decimal()
		return Message{
			Title: "Epoch settled: " + epoch,
			Fields: []Field{
				{Name: "Winner", Value: string(p.WinningSide)},
				{Name: "Price", Value: price.String()},
				{Name: "Fee", Value: strconv.FormatUint(p.Fee, 10)},
				{Name: "Net pool", Value: strconv.FormatUint(p.NetPool, 10)},
			},
		}, nil
	case domain.EventEpochInvalid:
		var p domain.EpochInvalidPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("notify: decode %s: %w", ev.Type, err)
		}
		return Message{
			Title: "Epoch invalid: " + epoch,
			Body:  p.Reason,
			Alert: true,
		}, nil
	case domain.EventTipSkipped:
		var p domain.TipSkippedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return Message{}, fmt.Errorf("notify: decode %s: %w", ev.Type, err)
		}
		return Message{
			Title: "Settlement tip skipped: " + epoch,
			Body:  "Reserve balance is below the configured tip.",
			Fields: []Field{
				{Name: "Recipient", Value: p.Recipient},
				{Name: "Tip", Value: strconv.FormatUint(p.Tip, 10)},
				{Name: "Available", Value: strconv.FormatUint(p.Available, 10)},
			},
			Alert: true,
		}, nil
	default:
		return Message{
			Title: fmt.Sprintf("%s (seq %d)", ev.Type, ev.Seq),
			Body:  string(ev.Payload),
		}, nil
	}
}

// KeeperError builds the alert for a failed keeper operation.
func KeeperError(op, asset string, err error) Message {
	return Message{
		Title: "Keeper error: " + op,
		Body:  err.Error(),
		Fields: []Field{
			{Name: "Asset", Value: asset},
		},
		Alert: true,
	}
}
