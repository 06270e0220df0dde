package eventbus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestBusPatternSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus(10)

	all, err := bus.Subscribe(ctx, "events*")
	require.NoError(t, err)
	eth, err := bus.Subscribe(ctx, "events:ETHUSD")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "events:BTCUSD", []byte("btc")))
	require.NoError(t, bus.Publish(ctx, "events:ETHUSD", []byte("eth")))

	assert.Equal(t, "btc", string(receive(t, all)))
	assert.Equal(t, "eth", string(receive(t, all)))
	assert.Equal(t, "eth", string(receive(t, eth)))

	cancel()
	_, open := <-all
	assert.False(t, open)
}

func TestBusStreamTrimsAndReadsAfter(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(3)
	for _, p := range []string{"a", "b", "c", "d"} {
		require.NoError(t, bus.StreamAppend(ctx, Stream, []byte(p)))
	}

	msgs, err := bus.StreamRead(ctx, Stream, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "b", string(msgs[0].Payload))

	msgs, err = bus.StreamRead(ctx, Stream, msgs[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "d", string(msgs[0].Payload))
}

func TestPublisherRoutesByAsset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewBus(10)
	pub := NewPublisher(bus, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	global, err := bus.Subscribe(ctx, Channel)
	require.NoError(t, err)
	btc, err := bus.Subscribe(ctx, AssetChannel("BTCUSD"))
	require.NoError(t, err)

	ev, err := domain.NewEvent(domain.EventEpochLocked, "BTCUSD", 9, 100, domain.EpochLockedPayload{Asset: "BTCUSD", EpochID: 9})
	require.NoError(t, err)
	ev.Seq = 4
	pub.HandleEvent(ctx, ev)

	var got domain.Event
	require.NoError(t, json.Unmarshal(receive(t, btc), &got))
	assert.Equal(t, uint64(4), got.Seq)
	assert.Equal(t, domain.EventEpochLocked, got.Type)

	pause, err := domain.NewEvent(domain.EventPauseChanged, "", 0, 100, domain.PauseChangedPayload{Paused: true})
	require.NoError(t, err)
	pub.HandleEvent(ctx, pause)
	require.NoError(t, json.Unmarshal(receive(t, global), &got))
	assert.Equal(t, domain.EventPauseChanged, got.Type)

	msgs, err := bus.StreamRead(ctx, Stream, "0", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}
