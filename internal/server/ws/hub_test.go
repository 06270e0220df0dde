package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/eventbus"
)

func TestIsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{Pattern: true}}
	assert.True(t, c.isSubscribed("events"))
	assert.True(t, c.isSubscribed("events:BTCUSD"))

	c.handleSubscription(subscribeMsg{Action: "set", Channels: []string{"events:ETH*"}})
	assert.False(t, c.isSubscribed("events:BTCUSD"))
	assert.True(t, c.isSubscribed("events:ETHUSD"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"events"}})
	assert.True(t, c.isSubscribed("events"))
	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"events:ETH*"}})
	assert.False(t, c.isSubscribed("events:ETHUSD"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})
	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}

func TestHubStreamsPublishedEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	bus := eventbus.NewBus(100)
	pub := eventbus.NewPublisher(bus, logger)
	hub := NewHub(bus, eventbus.ChannelOf, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan error, 1)
	go func() { hubDone <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello["type"])

	// Registration happens asynchronously after the hello is queued.
	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, time.Second, 5*time.Millisecond)

	ev, err := domain.NewEvent(domain.EventEpochCreated, "BTCUSD", 1000, 300_000, domain.EpochCreatedPayload{Asset: "BTCUSD", EpochID: 1000})
	require.NoError(t, err)
	ev.Seq = 7
	pub.HandleEvent(ctx, ev)

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var got domain.Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, uint64(7), got.Seq)
	assert.Equal(t, domain.EventEpochCreated, got.Type)
	assert.Equal(t, "BTCUSD", got.Asset)

	cancel()
	select {
	case err := <-hubDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// The hub closes client connections on shutdown.
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func publishSeqs(t *testing.T, pub *eventbus.Publisher, from, to uint64) {
	t.Helper()
	for seq := from; seq <= to; seq++ {
		ev, err := domain.NewEvent(domain.EventEpochCreated, "BTCUSD", seq, 300_000, domain.EpochCreatedPayload{Asset: "BTCUSD", EpochID: seq})
		require.NoError(t, err)
		ev.Seq = seq
		pub.HandleEvent(context.Background(), ev)
	}
}

func TestHubResumesFromStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	bus := eventbus.NewBus(100)
	pub := eventbus.NewPublisher(bus, logger)
	hub := NewHub(bus, eventbus.ChannelOf, nil, logger).WithResume(eventbus.Stream)
	publishSeqs(t, pub, 1, 3)

	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan error, 1)
	go func() { hubDone <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	rec := httptest.NewRecorder()
	hub.HandleWS(rec, httptest.NewRequest("GET", "/ws?after=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?after=1", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var hello struct {
		Type    string
		Payload map[string]any
	}
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, float64(2), hello.Payload["resumed"])
	assert.Equal(t, false, hello.Payload["truncated"])

	for _, want := range []uint64{2, 3} {
		var got domain.Event
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, want, got.Seq)
	}

	cancel()
	select {
	case err := <-hubDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
}

func TestBackfillTruncates(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	bus := eventbus.NewBus(1000)
	pub := eventbus.NewPublisher(bus, logger)
	hub := NewHub(bus, eventbus.ChannelOf, nil, logger).WithResume(eventbus.Stream)
	publishSeqs(t, pub, 1, resumeLimit+10)

	msgs, truncated, err := hub.backfill(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, truncated)
	require.Len(t, msgs, resumeLimit)

	var first domain.Event
	require.NoError(t, json.Unmarshal(msgs[0].data, &first))
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, "events:BTCUSD", msgs[0].channel)

	msgs, truncated, err = hub.backfill(context.Background(), resumeLimit+5)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Len(t, msgs, 5)
}
