package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/updown?sslmode=disable", DSN(ClientConfig{
		Host: "db", Database: "updown", User: "u", Password: "p",
	}))
	assert.Equal(t, "postgres://u:p@db:6543/updown?sslmode=require", DSN(ClientConfig{
		Host: "db", Port: 6543, Database: "updown", User: "u", Password: "p", SSLMode: "require",
	}))
	assert.Equal(t, "postgres://override", DSN(ClientConfig{DSN: "postgres://override", Host: "ignored"}))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetryable(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetryable(errors.New("plain")))
}

func TestListQuery(t *testing.T) {
	since := time.Unix(100, 0)
	until := time.Unix(200, 0)

	q := newListQuery("SELECT 1 FROM bets WHERE user_id = $1", "alice")
	q.timeRange("placed_at", domain.ListOpts{Since: &since, Until: &until})
	q.page("placed_at DESC", domain.ListOpts{Limit: 10, Offset: 20})

	assert.Equal(t,
		"SELECT 1 FROM bets WHERE user_id = $1 AND placed_at >= $2 AND placed_at <= $3 ORDER BY placed_at DESC LIMIT $4 OFFSET $5",
		q.sql)
	assert.Equal(t, []any{"alice", int64(100), int64(200), 10, 20}, q.args)

	q = newListQuery("SELECT 1 FROM audit_log WHERE TRUE")
	q.timeRangeAs("created_at", domain.ListOpts{Since: &since}, false)
	q.page("id DESC", domain.ListOpts{})
	assert.Equal(t, "SELECT 1 FROM audit_log WHERE TRUE AND created_at >= $1 ORDER BY id DESC", q.sql)
	assert.Equal(t, []any{since}, q.args)
}

// newTestClient connects to UPDOWN_TEST_POSTGRES_DSN and resets the schema.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("UPDOWN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("UPDOWN_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn, AppName: "updownbet-test"})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = c.Pool().Exec(ctx, `DROP SCHEMA public CASCADE; CREATE SCHEMA public;`)
	require.NoError(t, err)
	require.NoError(t, c.RunMigrations(ctx))
	require.NoError(t, c.RunMigrations(ctx))
	return c
}

func TestLedgerIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	l := NewLedger(c.Pool(), nil)

	asset := domain.AssetConfig{Symbol: "BTCUSD", OracleRef: "0xfeed", Currency: "USDC"}
	epoch := domain.Epoch{Asset: "BTCUSD", ID: 9, Currency: "USDC", Status: domain.StatusOpen, StartTs: 2700, CutoffTs: 2940, EndTs: 3000}

	require.NoError(t, l.Atomically(ctx, func(tx domain.Tx) error {
		if err := tx.PutAsset(ctx, asset); err != nil {
			return err
		}
		if err := tx.CreateEpoch(ctx, epoch); err != nil {
			return err
		}
		return tx.Credit(ctx, domain.UserAccount("alice", "USDC"), 500)
	}))

	err := l.Atomically(ctx, func(tx domain.Tx) error {
		return tx.CreateEpoch(ctx, epoch)
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := l.GetEpoch(ctx, "BTCUSD", 9)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.Equal(t, int64(3000), got.EndTs)

	_, err = l.GetEpoch(ctx, "BTCUSD", 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = l.Atomically(ctx, func(tx domain.Tx) error {
		return tx.Transfer(ctx, domain.UserAccount("alice", "USDC"), domain.EscrowAccount("BTCUSD", "USDC"), 501)
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, l.Atomically(ctx, func(tx domain.Tx) error {
		return tx.Transfer(ctx, domain.UserAccount("alice", "USDC"), domain.EscrowAccount("BTCUSD", "USDC"), 200)
	}))
	bal, err := l.Balance(ctx, domain.EscrowAccount("BTCUSD", "USDC"))
	require.NoError(t, err)
	assert.Equal(t, uint64(200), bal)

	open, err := l.ListEpochsByStatus(ctx, domain.StatusOpen, domain.StatusLocked)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestLedgerEventsAreGapFree(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	l := NewLedger(c.Pool(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Atomically(ctx, func(tx domain.Tx) error {
				_, err := tx.Emit(ctx, domain.Event{Type: domain.EventDeposited})
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	events, err := l.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 8)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
}

func TestAuditStoreIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	s := NewAuditStore(c.Pool())

	require.NoError(t, s.Log(ctx, "epochs_archived", map[string]any{"asset": "BTCUSD", "count": 3}))
	require.NoError(t, s.Log(ctx, "protocol_paused", nil))

	entries, err := s.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "protocol_paused", entries[0].Event)
	assert.Equal(t, "BTCUSD", entries[1].Detail["asset"])
}
