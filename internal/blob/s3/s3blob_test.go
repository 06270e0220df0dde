package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	m.puts++
	return nil
}

func (m *memStore) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memStore) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

type fakeSource struct {
	epochs []domain.Epoch
	bets   map[uint64][]domain.Bet
}

func (f *fakeSource) ListEpochsByStatus(_ context.Context, statuses ...domain.EpochStatus) ([]domain.Epoch, error) {
	var out []domain.Epoch
	for _, e := range f.epochs {
		for _, s := range statuses {
			if e.Status == s {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeSource) ListEpochBets(_ context.Context, _ string, id uint64) ([]domain.Bet, error) {
	return f.bets[id], nil
}

type fakeAudit struct {
	entries []string
	err     error
}

func (f *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	f.entries = append(f.entries, fmt.Sprintf("%s %v", event, detail["path"]))
	return f.err
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestEpochPath(t *testing.T) {
	assert.Equal(t, "archive/epochs/BTCUSD/5821040.jsonl", EpochPath("archive", "BTCUSD", 5821040))
	assert.Equal(t, "cold/x/epochs/ETH/1.jsonl", EpochPath("cold/x", "ETH", 1))
}

func TestArchiveEpochs(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	audit := &fakeAudit{}
	src := &fakeSource{
		epochs: []domain.Epoch{
			{Asset: "BTCUSD", ID: 1, Status: domain.StatusSettled, WinningSide: domain.WinningUp, SumUp: 10, SumDown: 5, SettledAt: 100},
			{Asset: "BTCUSD", ID: 2, Status: domain.StatusInvalid, WinningSide: domain.WinningNone, SettledAt: 200},
			{Asset: "BTCUSD", ID: 3, Status: domain.StatusSettled, SettledAt: 5000},
			{Asset: "BTCUSD", ID: 4, Status: domain.StatusOpen},
		},
		bets: map[uint64][]domain.Bet{
			1: {
				{User: "alice", Asset: "BTCUSD", EpochID: 1, Side: domain.SideUp, Stake: 10, Claimed: true, Paid: 14},
				{User: "bob", Asset: "BTCUSD", EpochID: 1, Side: domain.SideDown, Stake: 5},
			},
		},
	}
	a := NewEpochArchiver(store, store, src, audit, "", discard())

	n, err := a.ArchiveEpochs(ctx, time.Unix(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, audit.entries, 2)

	epoch, bets, err := ReadEpochArchive(ctx, store, "", "BTCUSD", 1)
	require.NoError(t, err)
	assert.Equal(t, src.epochs[0], epoch)
	assert.Equal(t, src.bets[1], bets)

	_, _, err = ReadEpochArchive(ctx, store, "", "BTCUSD", 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err = a.ArchiveEpochs(ctx, time.Unix(1000, 0))
	require.NoError(t, err)
	assert.Zero(t, n, "existing objects are skipped")
	assert.Equal(t, 2, store.puts)

	listed, err := store.List(ctx, "archive/epochs/BTCUSD/")
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestArchiveLookup(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	src := &fakeSource{
		epochs: []domain.Epoch{
			{Asset: "BTCUSD", ID: 9, Status: domain.StatusSettled, SettledAt: 10},
			{Asset: "BTCUSD", ID: 12, Status: domain.StatusInvalid, SettledAt: 20},
			{Asset: "BTCUSD1", ID: 3, Status: domain.StatusSettled, SettledAt: 30},
		},
		bets: map[uint64][]domain.Bet{12: {{User: "alice", Asset: "BTCUSD", EpochID: 12, Stake: 4}}},
	}
	_, err := NewEpochArchiver(store, store, src, nil, "cold", discard()).ArchiveEpochs(ctx, time.Unix(100, 0))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "cold/epochs/BTCUSD/notes.txt", strings.NewReader("x"), "text/plain"))

	l := NewArchiveLookup(store, "cold")
	ids, err := l.ArchivedEpochIDs(ctx, "BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, []uint64{12, 9}, ids, "other assets and stray objects are ignored")

	e, bets, err := l.ArchivedEpoch(ctx, "BTCUSD", 12)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvalid, e.Status)
	assert.Len(t, bets, 1)

	_, _, err = l.ArchivedEpoch(ctx, "BTCUSD", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArchiveEpochsAuditFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	src := &fakeSource{epochs: []domain.Epoch{{Asset: "ETH", ID: 7, Status: domain.StatusSettled, SettledAt: 1}}}
	a := NewEpochArchiver(store, store, src, &fakeAudit{err: errors.New("db down")}, "", discard())

	n, err := a.ArchiveEpochs(context.Background(), time.Unix(10, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDecodeEpochRejectsMissingHeader(t *testing.T) {
	_, _, err := decodeEpoch(strings.NewReader(`{"kind":"bet","bet":{"user":"a"}}` + "\n"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = decodeEpoch(strings.NewReader("not json\n"))
	assert.Error(t, err)
}

func TestClientConfigValidate(t *testing.T) {
	assert.NoError(t, ClientConfig{Bucket: "b", Region: "us-east-1"}.Validate())
	err := ClientConfig{AccessKey: "k"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
	assert.Contains(t, err.Error(), "region")
	assert.Contains(t, err.Error(), "secret key")
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://localhost:9000", normaliseEndpoint("localhost:9000", true))
	assert.Equal(t, "http://10.0.0.5:9000", normaliseEndpoint("10.0.0.5:9000", false))
	assert.Equal(t, "https://r2.example.com", normaliseEndpoint("https://r2.example.com", false))
}

func TestReaderWriterAgainstHTTPServer(t *testing.T) {
	var (
		mu      sync.Mutex
		objects = map[string][]byte{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			objects[r.URL.Path] = b
			w.WriteHeader(http.StatusOK)
		case http.MethodHead:
			if _, ok := objects[r.URL.Path]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			b, ok := objects[r.URL.Path]
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
				return
			}
			_, _ = w.Write(b)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c, err := New(ctx, ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "archive",
		AccessKey:      "key",
		SecretKey:      "secret",
		ForcePathStyle: true,
	})
	require.NoError(t, err)

	w, r := NewWriter(c), NewReader(c)

	ok, err := r.Exists(ctx, "epochs/BTCUSD/1.jsonl")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, w.Put(ctx, "epochs/BTCUSD/1.jsonl", strings.NewReader("{}\n"), "application/x-ndjson"))

	ok, err = r.Exists(ctx, "epochs/BTCUSD/1.jsonl")
	require.NoError(t, err)
	assert.True(t, ok)

	body, err := r.Get(ctx, "epochs/BTCUSD/1.jsonl")
	require.NoError(t, err)
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	_ = body.Close()
	assert.Equal(t, "{}\n", string(b))

	_, err = r.Get(ctx, "epochs/BTCUSD/2.jsonl")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
