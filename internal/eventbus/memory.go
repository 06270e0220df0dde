// Package eventbus fans committed ledger events out to live subscribers. Bus
// is an in-process domain.SignalBus used when Redis is not configured;
// Publisher turns ledger events into bus messages on either implementation.
package eventbus

import (
	"context"
	"path"
	"strconv"
	"sync"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

const subscriberBuffer = 128

type subscriber struct {
	pattern string
	ch      chan []byte
}

type streamEntry struct {
	id      uint64
	payload []byte
}

// Bus is an in-memory domain.SignalBus. Slow subscribers lose messages rather
// than block publishers.
type Bus struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	streams map[string][]streamEntry
	nextID  uint64
	maxLen  int
}

// NewBus creates a Bus that keeps about maxLen entries per stream.
func NewBus(maxLen int) *Bus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Bus{
		subs:    make(map[*subscriber]struct{}),
		streams: make(map[string][]streamEntry),
		maxLen:  maxLen,
	}
}

// Publish delivers payload to every subscriber whose pattern matches channel.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if !matches(s.pattern, channel) {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers for channel, which may be a glob pattern. The returned
// channel is closed when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

// StreamAppend appends payload to stream, trimming the oldest entries.
func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	entries := append(b.streams[stream], streamEntry{id: b.nextID, payload: payload})
	if len(entries) > b.maxLen {
		entries = entries[len(entries)-b.maxLen:]
	}
	b.streams[stream] = entries
	return nil
}

// StreamRead returns up to count entries with an id greater than lastID.
// "0" and "0-0" read from the beginning.
func (b *Bus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	var after uint64
	if lastID != "0" && lastID != "0-0" && lastID != "" {
		v, err := strconv.ParseUint(lastID, 10, 64)
		if err != nil {
			return nil, err
		}
		after = v
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for _, e := range b.streams[stream] {
		if e.id <= after {
			continue
		}
		out = append(out, domain.StreamMessage{ID: strconv.FormatUint(e.id, 10), Payload: e.payload})
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

// matches applies Redis-style glob matching to channel names.
func matches(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	ok, err := path.Match(pattern, channel)
	return err == nil && ok
}

var _ domain.SignalBus = (*Bus)(nil)
