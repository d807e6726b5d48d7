package simulator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/market"
	"github.com/alanyoungcy/bondsim/internal/notify"
	"github.com/alanyoungcy/bondsim/internal/scheduler"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeHealth struct {
	mu       sync.Mutex
	scenario domain.Scenario
	dpi      domain.ServiceStatus
}

func (h *fakeHealth) Scenario() domain.Scenario {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scenario
}

func (h *fakeHealth) ServiceStatus(service string) domain.ServiceStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	if service == domain.ServiceDPI {
		return h.dpi
	}
	return domain.StatusOperational
}

func (h *fakeHealth) set(sc domain.Scenario, dpi domain.ServiceStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scenario, h.dpi = sc, dpi
}

type memPersister struct {
	session *domain.Session
	saves   int
	clears  int
}

func (p *memPersister) Load(context.Context) (domain.Session, bool) {
	if p.session == nil {
		return domain.Session{}, false
	}
	return *p.session, true
}

func (p *memPersister) Save(_ context.Context, s domain.Session) {
	p.saves++
	p.session = &s
}

func (p *memPersister) Clear(context.Context) {
	p.clears++
	p.session = nil
}

type busLog struct {
	domain.SignalBus
	mu       sync.Mutex
	txs      []domain.TransactionEvent
	appended map[string]int
}

func (b *busLog) StreamAppend(_ context.Context, stream string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.appended == nil {
		b.appended = make(map[string]int)
	}
	b.appended[stream]++
	return nil
}

func (b *busLog) Publish(_ context.Context, channel string, payload []byte) error {
	if channel != domain.ChannelTransactions {
		return nil
	}
	var tx domain.TransactionEvent
	if err := json.Unmarshal(payload, &tx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs = append(b.txs, tx)
	return nil
}

type toastLog struct{ toasts []notify.Toast }

func (t *toastLog) Toast(_ context.Context, toast notify.Toast) { t.toasts = append(t.toasts, toast) }

type archiveLog struct {
	txs  []domain.TransactionEvent
	logs []domain.AnalyticsLog
}

func (a *archiveLog) ArchiveTransaction(tx domain.TransactionEvent) { a.txs = append(a.txs, tx) }
func (a *archiveLog) ArchiveAnalytics(l domain.AnalyticsLog) { a.logs = append(a.logs, l) }

type harness struct {
	sim       *Simulator
	book      *market.Book
	health    *fakeHealth
	clock     *scheduler.Manual
	persister *memPersister
	bus       *busLog
	toasts    *toastLog
	archive   *archiveLog
	roll      float64
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		book:      market.NewBook(),
		health:    &fakeHealth{scenario: domain.ScenarioNormal, dpi: domain.StatusOperational},
		clock:     scheduler.NewManual(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
		persister: &memPersister{},
		bus:       &busLog{},
		toasts:    &toastLog{},
		archive:   &archiveLog{},
	}
	h.book.Replace([]domain.Bond{
		{ID: "INE001", ISIN: "INE001", Issuer: "NTPC", CurrentPrice: 100},
		{ID: "INE002", ISIN: "INE002", Issuer: "REC Limited", CurrentPrice: 50},
	})
	h.sim = New(cfg, h.book, h.health, h.clock, discard,
		WithPersister(h.persister),
		WithBus(h.bus),
		WithToaster(h.toasts),
		WithArchiver(h.archive),
		WithClock(h.clock.Now),
		WithRoll(func() float64 { return h.roll }),
	)
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	_, err := h.sim.Connect(context.Background(), "0xabc0000000000000000000000000000000000001")
	require.NoError(t, err)
}

func (h *harness) setPrice(id string, price float64) {
	h.book.ApplyUpdates([]domain.PriceUpdate{{BondID: id, Price: price}})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StartingBalance = decimal.NewFromInt(10_000)
	return cfg
}

func byType(txs []domain.TransactionEvent, typ domain.TransactionType) []domain.TransactionEvent {
	var out []domain.TransactionEvent
	for _, tx := range txs {
		if tx.Type == typ {
			out = append(out, tx)
		}
	}
	return out
}

func TestConnect_DefaultsAndRestore(t *testing.T) {
	h := newHarness(t, testConfig())
	u, err := h.sim.Connect(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, u.Connected)
	assert.Len(t, u.WalletAddress, 42)
	assert.True(t, u.WalletBalance.Equal(decimal.NewFromInt(10_000)))
	assert.Equal(t, domain.KYCUnverified, u.KYC.Status)

	saved := domain.Session{
		User:      domain.User{WalletAddress: "0xsaved", WalletBalance: decimal.NewFromInt(42)},
		Portfolio: []domain.PortfolioHolding{{BondID: "INE001", Quantity: 3, AvgPrice: 99}},
	}
	h2 := newHarness(t, testConfig())
	h2.persister.session = &saved
	u, err = h2.sim.Connect(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "0xsaved", u.WalletAddress)
	assert.True(t, u.WalletBalance.Equal(decimal.NewFromInt(42)))
	assert.Equal(t, saved.Portfolio, h2.sim.Snapshot().Portfolio)
}

func TestExecuteTrade_RequiresConnection(t *testing.T) {
	h := newHarness(t, testConfig())
	_, err := h.sim.ExecuteTrade(context.Background(), domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: 1})
	require.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestExecuteTrade_Validation(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()

	_, err := h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: "HOLD", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "NOPE", Side: domain.TradeSideBuy, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecuteTrade_BuyBeyondBalanceChangesNothing(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	before := h.sim.Snapshot()

	_, err := h.sim.ExecuteTrade(context.Background(), domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: 101})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	after := h.sim.Snapshot()
	assert.True(t, before.User.WalletBalance.Equal(after.User.WalletBalance))
	assert.Equal(t, before.Transactions, after.Transactions)
	assert.Empty(t, after.Portfolio)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestExecuteTrade_BuyWeightedAverage(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()

	_, err := h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: 10})
	require.NoError(t, err)
	h.setPrice("INE001", 110)
	_, err = h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: 30})
	require.NoError(t, err)

	snap := h.sim.Snapshot()
	require.Len(t, snap.Portfolio, 1)
	assert.Equal(t, 40.0, snap.Portfolio[0].Quantity)
	assert.InDelta(t, (100*10+110*30)/40.0, snap.Portfolio[0].AvgPrice, 1e-9)
	assert.True(t, snap.User.WalletBalance.Equal(decimal.NewFromInt(10_000-1000-3300)))
	assert.NotNil(t, h.persister.session)
}

func TestExecuteTrade_Sell(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()

	_, err := h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE002", Side: domain.TradeSideSell, Quantity: 1})
	require.ErrorIs(t, err, domain.ErrInsufficientHolding)

	_, err = h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE002", Side: domain.TradeSideBuy, Quantity: 10})
	require.NoError(t, err)
	_, err = h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE002", Side: domain.TradeSideSell, Quantity: 4})
	require.NoError(t, err)
	snap := h.sim.Snapshot()
	require.Len(t, snap.Portfolio, 1)
	assert.Equal(t, 6.0, snap.Portfolio[0].Quantity)
	assert.Equal(t, 50.0, snap.Portfolio[0].AvgPrice)

	// Selling more than held is clamped and closes the position.
	_, err = h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE002", Side: domain.TradeSideSell, Quantity: 100})
	require.NoError(t, err)
	snap = h.sim.Snapshot()
	assert.Empty(t, snap.Portfolio)
	assert.True(t, snap.User.WalletBalance.Equal(decimal.NewFromInt(10_000)))
}

func TestOrderLifecycle_Success(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()

	order, err := h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, domain.TxPending, order.Status)

	h.clock.Advance(h.sim.cfg.OrderDelay)
	got, ok := h.sim.Transaction(order.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TxSuccess, got.Status)

	txs := h.sim.Snapshot().Transactions
	require.Len(t, byType(txs, domain.TxMatch), 1)
	settlements := byType(txs, domain.TxSettlement)
	require.Len(t, settlements, 1)
	assert.Equal(t, domain.TxPending, settlements[0].Status)
	assert.Contains(t, settlements[0].Details, "₹100.00")

	h.clock.Advance(h.sim.cfg.SettlementDelay)
	txs = h.sim.Snapshot().Transactions
	settled := byType(txs, domain.TxSettlement)[0]
	assert.Equal(t, domain.TxSuccess, settled.Status)
	assert.Contains(t, settled.Details, "Hyperledger Besu")
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, settled.DLTHash)
	require.Len(t, byType(txs, domain.TxTokenize), 1)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestOrderLifecycle_SettlementFailureKeepsBooking(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	h.roll = 0.99

	_, err := h.sim.ExecuteTrade(context.Background(), domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: 5})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)

	snap := h.sim.Snapshot()
	settled := byType(snap.Transactions, domain.TxSettlement)[0]
	assert.Equal(t, domain.TxFailed, settled.Status)
	assert.Empty(t, settled.DLTHash)
	assert.Empty(t, byType(snap.Transactions, domain.TxTokenize))
	assert.True(t, snap.User.WalletBalance.Equal(decimal.NewFromInt(9_500)))
	require.Len(t, snap.Portfolio, 1)

	last := h.toasts.toasts[len(h.toasts.toasts)-1]
	assert.Equal(t, notify.EventTransactionFailed, last.Event)
}

func TestOrderLifecycle_SellHasNoTokenize(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()
	_, err := h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: 5})
	require.NoError(t, err)
	_, err = h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideSell, Quantity: 5})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)

	txs := h.sim.Snapshot().Transactions
	assert.Len(t, byType(txs, domain.TxSettlement), 2)
	assert.Len(t, byType(txs, domain.TxTokenize), 1)
}

func TestSettlementDelay_CongestedScenario(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	h.health.set(domain.ScenarioDLTCongestion, domain.StatusOperational)

	_, err := h.sim.ExecuteTrade(context.Background(), domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: 1})
	require.NoError(t, err)
	h.clock.Advance(h.sim.cfg.OrderDelay + h.sim.cfg.SettlementDelay)
	assert.Equal(t, domain.TxPending, byType(h.sim.Snapshot().Transactions, domain.TxSettlement)[0].Status)

	h.clock.Advance(h.sim.cfg.SettlementCongestedDelay)
	assert.Equal(t, domain.TxSuccess, byType(h.sim.Snapshot().Transactions, domain.TxSettlement)[0].Status)
}

func TestKYC(t *testing.T) {
	t.Run("succeeds when DPI operational", func(t *testing.T) {
		h := newHarness(t, testConfig())
		h.connect(t)
		tx, err := h.sim.StartKYC(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.KYCPending, h.sim.User().KYC.Status)

		_, err = h.sim.StartKYC(context.Background())
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		h.clock.Advance(h.sim.cfg.KYCDelay)
		got, _ := h.sim.Transaction(tx.ID)
		assert.Equal(t, domain.TxSuccess, got.Status)
		kyc := h.sim.User().KYC
		assert.Equal(t, domain.KYCState{Status: domain.KYCVerified, AadhaarVerified: true, PANVerified: true, BankVerified: true}, kyc)
	})

	t.Run("fails slowly when DPI down", func(t *testing.T) {
		h := newHarness(t, testConfig())
		h.connect(t)
		h.health.set(domain.ScenarioDPIOutage, domain.StatusDown)
		tx, err := h.sim.StartKYC(context.Background())
		require.NoError(t, err)

		h.clock.Advance(h.sim.cfg.KYCDelay)
		got, _ := h.sim.Transaction(tx.ID)
		assert.Equal(t, domain.TxPending, got.Status)

		h.clock.Advance(h.sim.cfg.KYCSlowDelay)
		got, _ = h.sim.Transaction(tx.ID)
		assert.Equal(t, domain.TxFailed, got.Status)
		assert.Equal(t, domain.KYCUnverified, h.sim.User().KYC.Status)
	})

	t.Run("outcome follows DPI at resolution time", func(t *testing.T) {
		h := newHarness(t, testConfig())
		h.connect(t)
		h.health.set(domain.ScenarioDPIOutage, domain.StatusDown)
		tx, err := h.sim.StartKYC(context.Background())
		require.NoError(t, err)
		h.health.set(domain.ScenarioNormal, domain.StatusOperational)

		h.clock.Advance(h.sim.cfg.KYCSlowDelay)
		got, _ := h.sim.Transaction(tx.ID)
		assert.Equal(t, domain.TxSuccess, got.Status)
	})
}

func TestUPIMandate(t *testing.T) {
	ctx := context.Background()
	threshold, amount := decimal.NewFromInt(1000), decimal.NewFromInt(5000)

	h := newHarness(t, testConfig())
	h.connect(t)
	_, err := h.sim.SetupUPIMandate(ctx, decimal.Zero, amount)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.sim.SetupUPIMandate(ctx, threshold, amount)
	require.NoError(t, err)
	assert.Equal(t, domain.MandatePending, h.sim.User().UPIMandate.Status)
	h.clock.Advance(h.sim.cfg.UPIDelay)
	m := h.sim.User().UPIMandate
	assert.Equal(t, domain.MandateActive, m.Status)
	assert.True(t, m.Amount.Equal(amount))

	h2 := newHarness(t, testConfig())
	h2.connect(t)
	h2.roll = 0.95
	_, err = h2.sim.SetupUPIMandate(ctx, threshold, amount)
	require.NoError(t, err)
	h2.clock.Advance(h2.sim.cfg.UPIDelay)
	assert.Equal(t, domain.MandateNone, h2.sim.User().UPIMandate.Status)
}

func TestAddFunds_CreditsOnce(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()

	tx, err := h.sim.AddFunds(ctx, decimal.RequireFromString("2500.50"))
	require.NoError(t, err)
	assert.True(t, h.sim.User().WalletBalance.Equal(decimal.NewFromInt(10_000)))

	h.clock.Advance(h.sim.cfg.FundingDelay)
	want := decimal.RequireFromString("12500.50")
	assert.True(t, h.sim.User().WalletBalance.Equal(want))

	// Replaying the resolution handler must not credit again.
	h.sim.resolveFunding(ctx, tx.ID, true)
	h.sim.resolveFunding(ctx, tx.ID, true)
	assert.True(t, h.sim.User().WalletBalance.Equal(want))

	got, _ := h.sim.Transaction(tx.ID)
	assert.Equal(t, domain.TxSuccess, got.Status)
	assert.Contains(t, got.Details, fundingMarker)
}

func TestAddFunds_EvictedBeforeResolutionArchivesCreditedCopy(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()

	tx, err := h.sim.AddFunds(ctx, decimal.NewFromInt(500))
	require.NoError(t, err)
	for range h.sim.cfg.TransactionLog + 50 {
		h.sim.RecordTransaction(ctx, domain.TxMatch, domain.TxSuccess, "filler")
	}
	h.clock.Advance(h.sim.cfg.FundingDelay)
	assert.True(t, h.sim.User().WalletBalance.Equal(decimal.NewFromInt(10_500)))

	var archived *domain.TransactionEvent
	for i := range h.archive.txs {
		if h.archive.txs[i].ID == tx.ID {
			archived = &h.archive.txs[i]
		}
	}
	require.NotNil(t, archived)
	assert.Equal(t, domain.TxSuccess, archived.Status)
	assert.Contains(t, archived.Details, fundingMarker)

	// A late replay finds nothing in the log and must not credit again.
	h.sim.resolveFunding(ctx, tx.ID, true)
	assert.True(t, h.sim.User().WalletBalance.Equal(decimal.NewFromInt(10_500)))
}

func TestAddFunds_Failure(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	h.roll = 0.99
	tx, err := h.sim.AddFunds(context.Background(), decimal.NewFromInt(100))
	require.NoError(t, err)
	h.clock.Advance(time.Minute)

	got, _ := h.sim.Transaction(tx.ID)
	assert.Equal(t, domain.TxFailed, got.Status)
	assert.True(t, h.sim.User().WalletBalance.Equal(decimal.NewFromInt(10_000)))

	_, err = h.sim.AddFunds(context.Background(), decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLogs_AreBounded(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	for i := 0; i < 250; i++ {
		h.sim.RecordTransaction(ctx, domain.TxMatch, domain.TxSuccess, "filler")
		h.clock.Advance(time.Millisecond)
	}
	for i := 0; i < 130; i++ {
		h.sim.RecordAnalytics(ctx, domain.ServiceSwarm, "tick")
	}

	snap := h.sim.Snapshot()
	require.Len(t, snap.Transactions, 200)
	require.Len(t, snap.Analytics, 100)
	assert.Len(t, h.archive.txs, 50)
	assert.Len(t, h.archive.logs, 30)
	for i := 1; i < len(snap.Transactions); i++ {
		assert.True(t, snap.Transactions[i-1].Timestamp.After(snap.Transactions[i].Timestamp))
	}
	// The oldest visible entry is the 51st appended.
	assert.True(t, snap.Transactions[199].Timestamp.After(h.archive.txs[49].Timestamp))
}

func TestEveryTransactionTerminatesExactlyOnce(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()

	rolls := []float64{0.1, 0.97, 0.5, 0.93, 0.2}
	i := 0
	h.sim.roll = func() float64 { r := rolls[i%len(rolls)]; i++; return r }

	for n := 0; n < 6; n++ {
		_, err := h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: 1})
		require.NoError(t, err)
		_, err = h.sim.AddFunds(ctx, decimal.NewFromInt(10))
		require.NoError(t, err)
		h.clock.Advance(700 * time.Millisecond)
	}
	_, err := h.sim.StartKYC(ctx)
	require.NoError(t, err)
	_, err = h.sim.SetupUPIMandate(ctx, decimal.NewFromInt(1), decimal.NewFromInt(1))
	require.NoError(t, err)

	h.clock.Advance(time.Hour)

	for _, tx := range h.sim.Snapshot().Transactions {
		assert.True(t, tx.Status.Terminal(), "%s %s still pending", tx.Type, tx.ID)
	}

	terminal := map[string]int{}
	seenTerminal := map[string]bool{}
	for _, tx := range h.bus.txs {
		if tx.Status.Terminal() {
			terminal[tx.ID]++
			seenTerminal[tx.ID] = true
			continue
		}
		assert.False(t, seenTerminal[tx.ID], "transaction %s went back to PENDING", tx.ID)
	}
	for id, n := range terminal {
		assert.Equal(t, 1, n, "transaction %s reached a terminal state %d times", id, n)
	}
}

func TestDisconnect_CancelsAndResets(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()

	order, err := h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, 1, h.clock.Pending())

	h.sim.Disconnect(ctx)
	assert.Equal(t, 0, h.clock.Pending())
	got, _ := h.sim.Transaction(order.ID)
	assert.Equal(t, domain.TxFailed, got.Status)

	u := h.sim.User()
	assert.False(t, u.Connected)
	assert.True(t, u.WalletBalance.IsZero())
	assert.Empty(t, h.sim.Snapshot().Portfolio)
	assert.Equal(t, 1, h.persister.clears)
	assert.Nil(t, h.persister.session)

	h.clock.Advance(time.Hour)
	assert.Empty(t, byType(h.sim.Snapshot().Transactions, domain.TxSettlement))
}

func TestReconcileHoldings(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()
	for _, id := range []string{"INE001", "INE002"} {
		_, err := h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: id, Side: domain.TradeSideBuy, Quantity: 1})
		require.NoError(t, err)
	}

	h.book.Replace([]domain.Bond{{ID: "INE002", ISIN: "INE002", CurrentPrice: 50}})
	assert.Equal(t, 1, h.sim.ReconcileHoldings(ctx))
	snap := h.sim.Snapshot()
	require.Len(t, snap.Portfolio, 1)
	assert.Equal(t, "INE002", snap.Portfolio[0].BondID)
	assert.Equal(t, 0, h.sim.ReconcileHoldings(ctx))
}

func TestWeightedAverageProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("buy then buy yields the weighted average", prop.ForAll(
		func(q0, p0, q, p float64) bool {
			h := newHarness(t, Config{StartingBalance: decimal.NewFromInt(1_000_000_000)})
			h.connect(t)
			ctx := context.Background()

			h.setPrice("INE001", p0)
			if _, err := h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: q0}); err != nil {
				return false
			}
			h.setPrice("INE001", p)
			if _, err := h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: q}); err != nil {
				return false
			}
			holding := h.sim.Snapshot().Portfolio[0]
			want := (p0*q0 + p*q) / (q0 + q)
			return holding.Quantity == q0+q && abs(holding.AvgPrice-want) < 1e-9*want
		},
		gen.Float64Range(1, 1000),
		gen.Float64Range(50, 150),
		gen.Float64Range(1, 1000),
		gen.Float64Range(50, 150),
	))

	properties.Property("selling at least the held quantity removes the holding", prop.ForAll(
		func(q0, extra float64) bool {
			h := newHarness(t, Config{StartingBalance: decimal.NewFromInt(1_000_000_000)})
			h.connect(t)
			ctx := context.Background()
			if _, err := h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideBuy, Quantity: q0}); err != nil {
				return false
			}
			if _, err := h.sim.ExecuteTrade(ctx, domain.TradeRequest{BondID: "INE001", Side: domain.TradeSideSell, Quantity: q0 + extra}); err != nil {
				return false
			}
			return len(h.sim.Snapshot().Portfolio) == 0
		},
		gen.Float64Range(0.5, 1000),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestTransactionsAreStreamed(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connect(t)
	ctx := context.Background()

	h.sim.RecordTransaction(ctx, domain.TxMatch, domain.TxSuccess, "filler")
	h.sim.RecordAnalytics(ctx, domain.ServiceDLT, "block committed")

	h.bus.mu.Lock()
	defer h.bus.mu.Unlock()
	assert.Equal(t, len(h.bus.txs), h.bus.appended[domain.ChannelTransactions])
	assert.Zero(t, h.bus.appended[domain.ChannelAnalytics])
}
