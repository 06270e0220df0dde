package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// newTestClient connects to UPDOWN_TEST_REDIS_ADDR and namespaces every key
// so tests never collide.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("UPDOWN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("UPDOWN_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{Addr: addr, Namespace: "test-" + uuid.NewString()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeyNamespace(t *testing.T) {
	assert.Equal(t, "events", (&Client{}).Key("events"))
	assert.Equal(t, "updown:events:BTCUSD", (&Client{namespace: "updown"}).Key("events:BTCUSD"))
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("events*"))
	assert.False(t, hasPattern("events:BTCUSD"))
}

func TestLockManager(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "keeper:BTCUSD", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "keeper:BTCUSD", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	unlock2, err := lm.Acquire(ctx, "keeper:BTCUSD", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestRateLimiter(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplayGuard(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	g := NewReplayGuard(c, time.Minute)

	first, err := g.FirstUse(ctx, "sig-a")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := g.FirstUse(ctx, "sig-a")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := g.FirstUse(ctx, "sig-b")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestSignalBusPatternSubscribe(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus := NewSignalBus(c)

	ch, err := bus.Subscribe(ctx, "events*")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "events:BTCUSD", []byte(`{"seq":1}`)))

	select {
	case got := <-ch:
		assert.JSONEq(t, `{"seq":1}`, string(got))
	case <-ctx.Done():
		t.Fatal("no message received")
	}

	require.NoError(t, bus.StreamAppend(ctx, "events", []byte("a")))
	require.NoError(t, bus.StreamAppend(ctx, "events", []byte("b")))
	msgs, err := bus.StreamRead(ctx, "events", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("b"), msgs[1].Payload)
}

func TestPriceCache(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	pc := NewPriceCache(c, 30*time.Second, time.Hour)
	const feed = "0xfeed"

	for _, r := range []domain.PriceReading{
		{FeedID: feed, Price: 100, Expo: -2, PublishTime: 1_000},
		{FeedID: feed, Price: 105, Expo: -2, PublishTime: 1_010},
		{FeedID: feed, Price: 0, Expo: -2, PublishTime: 1_100},
	} {
		require.NoError(t, pc.Record(ctx, r))
	}

	got, err := pc.PriceAt(ctx, feed, 1_015)
	require.NoError(t, err)
	assert.Equal(t, int64(105), got.Price)

	got, err = pc.PriceAt(ctx, feed, 1_005)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Price)

	_, err = pc.PriceAt(ctx, feed, 999)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = pc.PriceAt(ctx, feed, 1_090)
	assert.True(t, errors.Is(err, domain.ErrInvalidPrice), "stale reading must be rejected")

	_, err = pc.PriceAt(ctx, feed, 1_100)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	latest, err := pc.Latest(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, int64(1_100), latest.PublishTime)
}
