package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

func setupClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestPriceCache(t *testing.T) {
	c, mr := setupClient(t)
	pc := NewPriceCache(c, time.Minute)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, _, err := pc.GetPrice(ctx, "INE001")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, pc.SetPrice(ctx, "INE001", 101.25, ts))
	require.NoError(t, pc.SetPrice(ctx, "INE002", 99.5, ts))

	price, got, err := pc.GetPrice(ctx, "INE001")
	require.NoError(t, err)
	assert.Equal(t, 101.25, price)
	assert.True(t, got.Equal(ts))
	assert.True(t, mr.Exists("bondsim:price:INE001"))

	prices, err := pc.GetPrices(ctx, []string{"INE001", "INE002", "INE404"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"INE001": 101.25, "INE002": 99.5}, prices)

	mr.FastForward(2 * time.Minute)
	_, _, err = pc.GetPrice(ctx, "INE001")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSignalBus_PublishReachesSubscribersAndStream(t *testing.T) {
	c, _ := setupClient(t)
	bus := NewSignalBusWithMaxLen(c, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, domain.ChannelTransactions)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelTransactions, []byte(`{"id":"t1"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"id":"t1"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	msgs, err := bus.StreamRead(ctx, domain.ChannelTransactions, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"id":"t1"}`, string(msgs[0].Payload))

	empty, err := bus.StreamRead(ctx, "nothing-here", "0", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	cancel()
	_, open := <-ch
	for open {
		_, open = <-ch
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	c, _ := setupClient(t)
	rl := NewRateLimiter(c)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "client-a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "client-a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "client-b", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	now = now.Add(61 * time.Second)
	ok, err = rl.Allow(ctx, "client-a", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window slid past old requests")
}

func TestLockManager(t *testing.T) {
	c, mr := setupClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "import", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "import", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	unlock2, err := lm.Acquire(ctx, "import", time.Minute)
	require.NoError(t, err)

	// An expired lock may be taken over; the stale unlock must not release
	// the new holder.
	mr.FastForward(2 * time.Minute)
	unlock3, err := lm.Acquire(ctx, "import", time.Minute)
	require.NoError(t, err)
	unlock2()
	_, err = lm.Acquire(ctx, "import", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	unlock3()
}

func TestSessionStore(t *testing.T) {
	c, mr := setupClient(t)
	store := NewSessionStore(c)
	ctx := context.Background()

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	u := domain.DefaultUser()
	u.WalletAddress = "0xabc"
	u.WalletBalance = decimal.RequireFromString("1234.56")
	want := domain.Session{User: u, Portfolio: []domain.PortfolioHolding{{BondID: "INE001", Quantity: 2, AvgPrice: 100}}}
	require.NoError(t, store.Save(ctx, want))
	assert.True(t, mr.Exists("bondsim:"+domain.SessionKey))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Portfolio, got.Portfolio)
	assert.True(t, got.User.WalletBalance.Equal(want.User.WalletBalance))

	require.NoError(t, mr.Set("bondsim:"+domain.SessionKey, "garbage"))
	_, err = store.Load(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
