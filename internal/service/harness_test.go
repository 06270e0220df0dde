package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/service"
	"github.com/alanyoungcy/updownbet/internal/store/badger"
)

const (
	testAsset    = "BTCUSD"
	testCurrency = "USDC"
	testFeed     = "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"
	epochLen     = 300
	cutoffSecs   = 60
	// genesis is the start of epoch 1000.
	genesis = int64(1000 * epochLen)
)

type clock struct {
	mu  sync.Mutex
	now int64
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *clock) Set(ts int64) {
	c.mu.Lock()
	c.now = ts
	c.mu.Unlock()
}

type fakeOracle struct {
	mu       sync.Mutex
	readings map[int64]domain.PriceReading
	err      error
}

func (o *fakeOracle) set(ts, price int64, expo int32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.readings[ts] = domain.PriceReading{FeedID: testFeed, Price: price, Conf: 1, Expo: expo, PublishTime: ts}
}

func (o *fakeOracle) PriceAt(_ context.Context, ref string, ts int64) (domain.PriceReading, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return domain.PriceReading{}, o.err
	}
	r, ok := o.readings[ts]
	if !ok || ref != testFeed {
		return domain.PriceReading{}, fmt.Errorf("fake oracle: %w: no reading at %d", domain.ErrInvalidPrice, ts)
	}
	return r, nil
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) HandleEvent(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) count(typ domain.EventType) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	ledger *badger.Ledger
	clock  *clock
	oracle *fakeOracle
	events *recorder

	admin      *service.AdminService
	epochs     *service.EpochService
	bets       *service.BetService
	settlement *service.SettlementService
	claims     *service.ClaimService
}

func testConfig() domain.ProtocolConfig {
	return domain.ProtocolConfig{
		Admin:           "admin",
		Treasury:        "treasury",
		FeeBps:          200,
		CutoffSecs:      cutoffSecs,
		EpochLengthSecs: epochLen,
	}
}

func newHarness(t *testing.T, cfg domain.ProtocolConfig, rule service.OutcomeRule) *harness {
	t.Helper()
	ledger, err := badger.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		ledger: ledger,
		clock:  &clock{now: genesis + 10},
		oracle: &fakeOracle{readings: map[int64]domain.PriceReading{}},
		events: &recorder{},
	}
	sinks := []service.EventSink{h.events}
	h.admin = service.NewAdminService(ledger, sinks, h.clock.Now, logger)
	h.epochs = service.NewEpochService(ledger, sinks, h.clock.Now, logger)
	h.bets = service.NewBetService(ledger, sinks, h.clock.Now, logger)
	h.settlement = service.NewSettlementService(ledger, h.oracle, rule, sinks, h.clock.Now, logger)
	h.claims = service.NewClaimService(ledger, sinks, h.clock.Now, logger)

	require.NoError(t, h.admin.Bootstrap(h.ctx, cfg, []domain.AssetConfig{
		{Symbol: testAsset, OracleRef: testFeed, Currency: testCurrency},
	}))
	return h
}

func (h *harness) fund(user string, amount uint64) {
	h.t.Helper()
	require.NoError(h.t, h.admin.Deposit(h.ctx, "admin", domain.UserAccount(user, testCurrency), amount))
}

func (h *harness) open() domain.Epoch {
	h.t.Helper()
	e, err := h.epochs.CreateEpoch(h.ctx, testAsset)
	require.NoError(h.t, err)
	return e
}

func (h *harness) bet(user string, side domain.Side, amount uint64) error {
	_, err := h.bets.PlaceBet(h.ctx, service.PlaceBetRequest{
		User:    user,
		Asset:   testAsset,
		EpochID: 1000,
		Side:    side,
		Amount:  amount,
	})
	return err
}

func (h *harness) balance(acct domain.Account) uint64 {
	h.t.Helper()
	b, err := h.ledger.Balance(h.ctx, acct)
	require.NoError(h.t, err)
	return b
}

func (h *harness) userBalance(user string) uint64 {
	return h.balance(domain.UserAccount(user, testCurrency))
}

func (h *harness) escrow() uint64 {
	return h.balance(domain.EscrowAccount(testAsset, testCurrency))
}

func (h *harness) treasury() uint64 {
	return h.balance(domain.TreasuryAccount("treasury", testCurrency))
}

// closeWith sets start and end readings and closes epoch 1000.
func (h *harness) closeWith(start, end int64) (domain.Epoch, error) {
	h.oracle.set(genesis, start, -8)
	h.oracle.set(genesis+epochLen, end, -8)
	h.clock.Set(genesis + epochLen)
	return h.settlement.CloseEpoch(h.ctx, service.CloseEpochRequest{Asset: testAsset, EpochID: 1000, Caller: "keeper"})
}

func jsonUnmarshal(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}
