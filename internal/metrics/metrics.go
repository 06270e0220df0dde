// Package metrics exports market activity as Prometheus metrics. Recorder is
// an event sink; the keeper reports its failures through KeeperError.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// Recorder turns committed events into counters.
type Recorder struct {
	bets         *prometheus.CounterVec
	stake        *prometheus.CounterVec
	settled      *prometheus.CounterVec
	claims       *prometheus.CounterVec
	payout       *prometheus.CounterVec
	tipsSkipped  prometheus.Counter
	keeperErrors *prometheus.CounterVec
	lastEventSeq prometheus.Gauge
	logger       *slog.Logger
}

// NewRecorder registers the market metrics with registry.
func NewRecorder(registry prometheus.Registerer, logger *slog.Logger) *Recorder {
	factory := promauto.With(registry)
	return &Recorder{
		bets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "updown_bets_total",
			Help: "Total number of accepted bets",
		}, []string{"asset", "side"}),
		stake: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "updown_stake_total",
			Help: "Total amount staked, in currency base units",
		}, []string{"asset"}),
		settled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "updown_epochs_settled_total",
			Help: "Total number of epochs that reached a terminal state",
		}, []string{"asset", "outcome"}),
		claims: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "updown_claims_total",
			Help: "Total number of successful claims",
		}, []string{"asset"}),
		payout: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "updown_payout_total",
			Help: "Total amount paid out to winners, in currency base units",
		}, []string{"asset"}),
		tipsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "updown_tips_skipped_total",
			Help: "Total number of settlement tips that could not be paid",
		}),
		keeperErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "updown_keeper_errors_total",
			Help: "Total number of failed keeper operations",
		}, []string{"op"}),
		lastEventSeq: factory.NewGauge(prometheus.GaugeOpts{
			Name: "updown_last_event_seq",
			Help: "Sequence number of the last committed event",
		}),
		logger: logger.With(slog.String("component", "metrics")),
	}
}

// HandleEvent updates counters for one committed event.
func (r *Recorder) HandleEvent(ctx context.Context, ev domain.Event) {
	r.lastEventSeq.Set(float64(ev.Seq))

	var err error
	switch ev.Type {
	case domain.EventBetPlaced:
		var p domain.BetPlacedPayload
		if err = json.Unmarshal(ev.Payload, &p); err == nil {
			r.bets.WithLabelValues(ev.Asset, string(p.Side)).Inc()
			r.stake.WithLabelValues(ev.Asset).Add(float64(p.Amount))
		}
	case domain.EventEpochSettled:
		var p domain.EpochSettledPayload
		if err = json.Unmarshal(ev.Payload, &p); err == nil {
			r.settled.WithLabelValues(ev.Asset, string(p.WinningSide)).Inc()
		}
	case domain.EventEpochInvalid:
		r.settled.WithLabelValues(ev.Asset, "invalid").Inc()
	case domain.EventClaimed:
		var p domain.ClaimedPayload
		if err = json.Unmarshal(ev.Payload, &p); err == nil {
			r.claims.WithLabelValues(ev.Asset).Inc()
			r.payout.WithLabelValues(ev.Asset).Add(float64(p.Payout))
		}
	case domain.EventTipSkipped:
		r.tipsSkipped.Inc()
	}
	if err != nil {
		r.logger.WarnContext(ctx, "decode event payload",
			slog.Uint64("seq", ev.Seq),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// KeeperError counts a failed keeper operation.
func (r *Recorder) KeeperError(op string) {
	r.keeperErrors.WithLabelValues(op).Inc()
}
