package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

const (
	// Channel carries events that belong to no asset.
	Channel = "events"
	// Stream is the replayable copy of every event.
	Stream = "events"
)

// AssetChannel returns the channel carrying one asset's events.
func AssetChannel(asset string) string {
	return Channel + ":" + asset
}

// Publisher publishes committed events to a SignalBus. It is an event sink
// for the market services.
type Publisher struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(bus domain.SignalBus, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:    bus,
		logger: logger.With(slog.String("component", "event_publisher")),
	}
}

// ChannelOf returns the channel ev is published on.
func ChannelOf(ev domain.Event) string {
	if ev.Asset != "" {
		return AssetChannel(ev.Asset)
	}
	return Channel
}

// HandleEvent publishes ev on its channel and appends it to the stream.
// Failures are logged; the ledger remains the source of truth.
func (p *Publisher) HandleEvent(ctx context.Context, ev domain.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal event", slog.Uint64("seq", ev.Seq), slog.String("error", err.Error()))
		return
	}
	// The ws hub subscribes to "events*", so asset events go only to their
	// asset channel to avoid duplicate delivery.
	channel := ChannelOf(ev)
	if err := p.bus.Publish(ctx, channel, raw); err != nil {
		p.logger.WarnContext(ctx, "publish event",
			slog.Uint64("seq", ev.Seq),
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if err := p.bus.StreamAppend(ctx, Stream, raw); err != nil {
		p.logger.WarnContext(ctx, "append event stream",
			slog.Uint64("seq", ev.Seq),
			slog.String("error", err.Error()),
		)
	}
}
