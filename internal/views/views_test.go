package views

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/market"
	"github.com/alanyoungcy/bondsim/internal/simulator"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixedState struct{ st simulator.State }

func (f fixedState) Snapshot() simulator.State { return f.st }

type fixedHealth struct {
	scenario domain.Scenario
	metrics  []domain.SystemMetric
}

func (f fixedHealth) Scenario() domain.Scenario         { return f.scenario }
func (f fixedHealth) Metrics() []domain.SystemMetric { return f.metrics }

type quoteCache struct {
	prices map[string]float64
	at     time.Time
	err    error
}

func (q quoteCache) GetPrice(_ context.Context, id string) (float64, time.Time, error) {
	if q.err != nil {
		return 0, time.Time{}, q.err
	}
	p, ok := q.prices[id]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, q.at, nil
}

func (q quoteCache) GetPrices(_ context.Context, ids []string) (map[string]float64, error) {
	if q.err != nil {
		return nil, q.err
	}
	out := make(map[string]float64)
	for _, id := range ids {
		if p, ok := q.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newRouter(t *testing.T) *Router {
	t.Helper()
	book := market.NewBook()
	book.Replace([]domain.Bond{
		{ID: "INE001", ISIN: "INE001", Issuer: "NTPC", Coupon: 7.5, CurrentPrice: 110, AIFairValue: 110.55, StandardFairValue: 110.22, DayChange: 0.4, CreditRating: domain.RatingAAA},
		{ID: "INE002", ISIN: "INE002", Issuer: "REC Limited", Coupon: 8, CurrentPrice: 95, DayChange: -2.1, CreditRating: domain.RatingAA},
		{ID: "INE003", ISIN: "INE003", Issuer: "Tata Steel", Coupon: 9.1, CurrentPrice: 101, DayChange: 1.2, CreditRating: domain.RatingA},
	})
	user := domain.DefaultUser()
	user.Connected = true
	user.WalletBalance = decimal.NewFromInt(5000)
	state := simulator.State{
		User: user,
		Portfolio: []domain.PortfolioHolding{
			{BondID: "INE001", Quantity: 10, AvgPrice: 100},
			{BondID: "INE999", Quantity: 3, AvgPrice: 90},
		},
		Transactions: []domain.TransactionEvent{
			{ID: "t2", Type: domain.TxSettlement, Status: domain.TxSuccess, Details: "Settled BUY 10 units of NTPC (INE001) @ ₹100.00"},
			{ID: "t1", Type: domain.TxMatch, Status: domain.TxSuccess, Details: "Block trade INE002"},
		},
	}
	health := fixedHealth{
		scenario: domain.ScenarioContingency,
		metrics: []domain.SystemMetric{
			{Service: domain.ServiceAPIGateway, Status: domain.StatusOperational},
			{Service: domain.ServiceDPI, Status: domain.StatusOperational},
			{Service: domain.ServiceDLT, Status: domain.StatusDegraded},
			{Service: domain.ServiceAIPricing, Status: domain.StatusDown},
			{Service: domain.ServiceQuantum, Status: domain.StatusDown},
			{Service: domain.ServiceSwarm, Status: domain.StatusDown},
		},
	}
	return NewRouter(book, fixedState{state}, health)
}

func TestResolve_Validation(t *testing.T) {
	r := newRouter(t)

	_, err := r.Resolve(context.Background(), domain.ViewState{Page: "nowhere"}, market.Filter{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = r.Resolve(context.Background(), domain.ViewState{Page: domain.PageBondDetail}, market.Filter{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = r.Resolve(context.Background(), domain.ViewState{Page: domain.PageBondDetail, BondID: "INE404"}, market.Filter{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for _, p := range domain.Pages {
		vs := domain.ViewState{Page: p}
		if p == domain.PageBondDetail {
			vs.BondID = "INE001"
		}
		v, err := r.Resolve(context.Background(), vs, market.Filter{})
		require.NoError(t, err, p)
		assert.Equal(t, p, v.Page)
		assert.NotNil(t, v.Model)
	}
}

func TestPortfolio_FlagsMissingBonds(t *testing.T) {
	v, err := newRouter(t).Resolve(context.Background(), domain.ViewState{Page: domain.PagePortfolio}, market.Filter{})
	require.NoError(t, err)
	p := v.Model.(Portfolio)

	require.Len(t, p.Holdings, 2)
	assert.False(t, p.Holdings[0].BondMissing)
	assert.Equal(t, 1100.0, p.Holdings[0].MarketValue)
	assert.Equal(t, 100.0, p.Holdings[0].PnL)
	assert.Equal(t, 10.0, p.Holdings[0].PnLPercent)

	assert.True(t, p.Holdings[1].BondMissing)
	assert.Zero(t, p.Holdings[1].MarketValue)
	assert.Equal(t, 1, p.Missing)

	assert.Equal(t, Totals{MarketValue: 1100, CostBasis: 1000, PnL: 100, PnLPercent: 10}, p.Totals)
}

func TestDashboard(t *testing.T) {
	v, err := newRouter(t).Resolve(context.Background(), domain.ViewState{Page: domain.PageDashboard}, market.Filter{})
	require.NoError(t, err)
	d := v.Model.(Dashboard)

	assert.Equal(t, 2, d.HoldingsCount)
	assert.True(t, d.NetWorth.Equal(decimal.NewFromInt(6100)))
	require.Len(t, d.TopMovers, 3)
	assert.Equal(t, "INE002", d.TopMovers[0].ID)
	assert.Equal(t, HealthSummary{Operational: 2, Degraded: 1, Down: 3}, d.Health)
	assert.Len(t, d.RecentTransactions, 2)
}

func TestBondDetail(t *testing.T) {
	v, err := newRouter(t).Resolve(context.Background(), domain.ViewState{Page: domain.PageBondDetail, BondID: "INE001"}, market.Filter{})
	require.NoError(t, err)
	d := v.Model.(BondDetail)

	assert.Equal(t, "NTPC", d.Bond.Issuer)
	require.NotNil(t, d.Holding)
	assert.Equal(t, 10.0, d.Holding.Quantity)
	assert.Equal(t, 6.82, d.CurrentYield)
	assert.Equal(t, 0.55, d.AIPremium)
	assert.Equal(t, 0.5, d.AIPremiumPercent)
	require.Len(t, d.Transactions, 1)
	assert.Equal(t, "t2", d.Transactions[0].ID)
}

func TestMarketplace_AppliesFilter(t *testing.T) {
	f := market.Filter{Ratings: []domain.CreditRating{domain.RatingAAA, domain.RatingAA}, SortBy: market.SortCoupon, Desc: true}
	v, err := newRouter(t).Resolve(context.Background(), domain.ViewState{Page: domain.PageMarketplace}, f)
	require.NoError(t, err)
	m := v.Model.(Marketplace)

	require.Equal(t, 2, m.Count)
	assert.Equal(t, "INE002", m.Bonds[0].ID)
	assert.Equal(t, "INE001", m.Bonds[1].ID)
}

func TestHardwareAndIntegrations(t *testing.T) {
	r := newRouter(t)

	v, err := r.Resolve(context.Background(), domain.ViewState{Page: domain.PageHardwareAcceleration}, market.Filter{})
	require.NoError(t, err)
	hw := v.Model.(HardwareAcceleration)
	assert.True(t, hw.Contingency)
	require.Len(t, hw.Services, 3)
	assert.Equal(t, domain.ServiceAIPricing, hw.Services[0].Service)

	v, err = r.Resolve(context.Background(), domain.ViewState{Page: domain.PageIntegrations}, market.Filter{})
	require.NoError(t, err)
	in := v.Model.(Integrations)
	assert.True(t, in.Connected)
	assert.Equal(t, domain.KYCUnverified, in.KYC.Status)
	assert.Len(t, in.Services, 3)
}

func TestPortfolio_ValuesAtCachedPrices(t *testing.T) {
	r := newRouter(t)
	r.SetPriceCache(quoteCache{prices: map[string]float64{"INE001": 120, "INE999": 500}}, discard)

	v, err := r.Resolve(context.Background(), domain.ViewState{Page: domain.PagePortfolio}, market.Filter{})
	require.NoError(t, err)
	p := v.Model.(Portfolio)

	assert.Equal(t, 120.0, p.Holdings[0].CurrentPrice)
	assert.Equal(t, 1200.0, p.Holdings[0].MarketValue)
	assert.Equal(t, 200.0, p.Holdings[0].PnL)
	// A cached price does not revive a bond that left the book.
	assert.True(t, p.Holdings[1].BondMissing)
	assert.Equal(t, Totals{MarketValue: 1200, CostBasis: 1000, PnL: 200, PnLPercent: 20}, p.Totals)

	v, err = r.Resolve(context.Background(), domain.ViewState{Page: domain.PageDashboard}, market.Filter{})
	require.NoError(t, err)
	assert.True(t, v.Model.(Dashboard).NetWorth.Equal(decimal.NewFromInt(6200)))
}

func TestPortfolio_CacheMissAndFailureUseBook(t *testing.T) {
	r := newRouter(t)
	r.SetPriceCache(quoteCache{prices: map[string]float64{}}, discard)
	v, err := r.Resolve(context.Background(), domain.ViewState{Page: domain.PagePortfolio}, market.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1100.0, v.Model.(Portfolio).Totals.MarketValue)

	r.SetPriceCache(quoteCache{err: errors.New("connection refused")}, discard)
	v, err = r.Resolve(context.Background(), domain.ViewState{Page: domain.PagePortfolio}, market.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1100.0, v.Model.(Portfolio).Totals.MarketValue)
}

func TestBondDetail_CachedQuote(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	r := newRouter(t)
	r.SetPriceCache(quoteCache{prices: map[string]float64{"INE001": 120}, at: at}, discard)

	v, err := r.Resolve(context.Background(), domain.ViewState{Page: domain.PageBondDetail, BondID: "INE001"}, market.Filter{})
	require.NoError(t, err)
	d := v.Model.(BondDetail)
	assert.Equal(t, 120.0, d.Bond.CurrentPrice)
	assert.Equal(t, at, d.QuotedAt)
	assert.Equal(t, 6.25, d.CurrentYield)
	assert.Equal(t, -9.45, d.AIPremium)
	require.NotNil(t, d.Holding)
	assert.Equal(t, 1200.0, d.Holding.MarketValue)

	v, err = r.Resolve(context.Background(), domain.ViewState{Page: domain.PageBondDetail, BondID: "INE002"}, market.Filter{})
	require.NoError(t, err)
	d = v.Model.(BondDetail)
	assert.Equal(t, 95.0, d.Bond.CurrentPrice)
	assert.True(t, d.QuotedAt.IsZero())
}
