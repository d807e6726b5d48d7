// Package views builds the read models each page of the trading UI renders.
package views

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/market"
	"github.com/alanyoungcy/bondsim/internal/simulator"
)

const (
	recentTransactions = 10
	topMovers          = 5
)

// BondSource is the read side of the bond book.
type BondSource interface {
	Get(id string) (domain.Bond, bool)
	List(f market.Filter) []domain.Bond
}

// StateSource exposes a consistent copy of the session state.
type StateSource interface {
	Snapshot() simulator.State
}

// HealthSource exposes the simulated infrastructure telemetry.
type HealthSource interface {
	Scenario() domain.Scenario
	Metrics() []domain.SystemMetric
}

// PriceReader is the read side of the price cache.
type PriceReader interface {
	GetPrice(ctx context.Context, bondID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, bondIDs []string) (map[string]float64, error)
}

// View is a resolved page together with its model.
type View struct {
	Page  domain.Page `json:"page"`
	Model any         `json:"model"`
}

// Router resolves a ViewState to the model for that page.
type Router struct {
	bonds  BondSource
	state  StateSource
	health HealthSource
	prices PriceReader
	logger *slog.Logger
}

// NewRouter creates a Router that values holdings at book prices.
func NewRouter(bonds BondSource, state StateSource, health HealthSource) *Router {
	return &Router{bonds: bonds, state: state, health: health, logger: slog.Default()}
}

// SetPriceCache makes holdings valued at cached prices. Bonds the cache
// does not know fall back to the book.
func (r *Router) SetPriceCache(p PriceReader, logger *slog.Logger) {
	r.prices = p
	if logger != nil {
		r.logger = logger.With(slog.String("component", "views"))
	}
}

// Resolve validates vs and builds its page model. f only applies to the
// marketplace page.
func (r *Router) Resolve(ctx context.Context, vs domain.ViewState, f market.Filter) (View, error) {
	var (
		model any
		err   error
	)
	switch vs.Page {
	case domain.PageDashboard:
		model = r.dashboard(ctx)
	case domain.PageMarketplace:
		model = r.marketplace(f)
	case domain.PagePortfolio:
		model = r.portfolio(ctx)
	case domain.PageBondDetail:
		model, err = r.bondDetail(ctx, vs.BondID)
	case domain.PageSystemAnalytics:
		model = r.systemAnalytics()
	case domain.PageIntegrations:
		model = r.integrations()
	case domain.PageHardwareAcceleration:
		model = r.hardware()
	case domain.PageProfileSettings:
		model = ProfileSettings{User: r.state.Snapshot().User}
	default:
		return View{}, fmt.Errorf("views: %w: unknown page %q", domain.ErrInvalidInput, vs.Page)
	}
	if err != nil {
		return View{}, err
	}
	return View{Page: vs.Page, Model: model}, nil
}

// HoldingView is a holding valued at the latest cached price, or the book
// price when none is cached. Holdings whose bond has left the book are
// flagged and carry no valuation.
type HoldingView struct {
	domain.PortfolioHolding
	Bond         *domain.Bond `json:"bond,omitempty"`
	BondMissing  bool         `json:"bondMissing"`
	MarketValue  float64      `json:"marketValue"`
	CostBasis    float64      `json:"costBasis"`
	PnL          float64      `json:"pnl"`
	PnLPercent   float64      `json:"pnlPercent"`
	CurrentPrice float64      `json:"currentPrice"`
}

// quotes returns cached prices for the held bonds. A cache failure yields
// an empty map so valuation falls back to the book.
func (r *Router) quotes(ctx context.Context, hs []domain.PortfolioHolding) map[string]float64 {
	if r.prices == nil || len(hs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(hs))
	for _, h := range hs {
		ids = append(ids, h.BondID)
	}
	prices, err := r.prices.GetPrices(ctx, ids)
	if err != nil {
		r.logger.WarnContext(ctx, "views: price cache read failed, using book prices",
			slog.Int("bonds", len(ids)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return prices
}

func (r *Router) value(h domain.PortfolioHolding, quotes map[string]float64) HoldingView {
	v := HoldingView{PortfolioHolding: h}
	bond, ok := r.bonds.Get(h.BondID)
	if !ok {
		v.BondMissing = true
		return v
	}
	v.Bond = &bond
	v.CurrentPrice = bond.CurrentPrice
	if p, ok := quotes[h.BondID]; ok && p > 0 {
		v.CurrentPrice = p
	}
	v.CostBasis = round2(h.Quantity * h.AvgPrice)
	v.MarketValue = round2(h.Quantity * v.CurrentPrice)
	v.PnL = round2(v.MarketValue - v.CostBasis)
	if v.CostBasis > 0 {
		v.PnLPercent = round2(v.PnL / v.CostBasis * 100)
	}
	return v
}

// Totals aggregates valued holdings. Missing bonds are excluded.
type Totals struct {
	MarketValue float64 `json:"marketValue"`
	CostBasis   float64 `json:"costBasis"`
	PnL         float64 `json:"pnl"`
	PnLPercent  float64 `json:"pnlPercent"`
}

func totals(hs []HoldingView) Totals {
	var t Totals
	for _, h := range hs {
		if h.BondMissing {
			continue
		}
		t.MarketValue += h.MarketValue
		t.CostBasis += h.CostBasis
	}
	t.MarketValue = round2(t.MarketValue)
	t.CostBasis = round2(t.CostBasis)
	t.PnL = round2(t.MarketValue - t.CostBasis)
	if t.CostBasis > 0 {
		t.PnLPercent = round2(t.PnL / t.CostBasis * 100)
	}
	return t
}

// HealthSummary counts services by status.
type HealthSummary struct {
	Operational int `json:"operational"`
	Active      int `json:"active"`
	Degraded    int `json:"degraded"`
	Down        int `json:"down"`
}

func summarize(ms []domain.SystemMetric) HealthSummary {
	var s HealthSummary
	for _, m := range ms {
		switch m.Status {
		case domain.StatusOperational:
			s.Operational++
		case domain.StatusActive:
			s.Active++
		case domain.StatusDegraded:
			s.Degraded++
		case domain.StatusDown:
			s.Down++
		}
	}
	return s
}

// Dashboard is the landing page.
type Dashboard struct {
	User               domain.User               `json:"user"`
	NetWorth           decimal.Decimal           `json:"netWorth"`
	HoldingsCount      int                       `json:"holdingsCount"`
	Portfolio          Totals                    `json:"portfolio"`
	RecentTransactions []domain.TransactionEvent `json:"recentTransactions"`
	TopMovers          []domain.Bond             `json:"topMovers"`
	Scenario           domain.Scenario           `json:"scenario"`
	Health             HealthSummary             `json:"health"`
}

func (r *Router) dashboard(ctx context.Context) Dashboard {
	st := r.state.Snapshot()
	quotes := r.quotes(ctx, st.Portfolio)
	hs := make([]HoldingView, 0, len(st.Portfolio))
	for _, h := range st.Portfolio {
		hs = append(hs, r.value(h, quotes))
	}
	t := totals(hs)

	movers := r.bonds.List(market.Filter{})
	sort.SliceStable(movers, func(i, j int) bool {
		return math.Abs(movers[i].DayChange) > math.Abs(movers[j].DayChange)
	})
	if len(movers) > topMovers {
		movers = movers[:topMovers]
	}

	recent := st.Transactions
	if len(recent) > recentTransactions {
		recent = recent[:recentTransactions]
	}
	return Dashboard{
		User:               st.User,
		NetWorth:           st.User.WalletBalance.Add(decimal.NewFromFloat(t.MarketValue)).Round(2),
		HoldingsCount:      len(st.Portfolio),
		Portfolio:          t,
		RecentTransactions: recent,
		TopMovers:          movers,
		Scenario:           r.health.Scenario(),
		Health:             summarize(r.health.Metrics()),
	}
}

// Marketplace lists the filtered bond book.
type Marketplace struct {
	Bonds  []domain.Bond `json:"bonds"`
	Count  int           `json:"count"`
	Filter market.Filter `json:"filter"`
}

func (r *Router) marketplace(f market.Filter) Marketplace {
	bonds := r.bonds.List(f)
	return Marketplace{Bonds: bonds, Count: len(bonds), Filter: f}
}

// Portfolio lists every holding with its valuation.
type Portfolio struct {
	Wallet   decimal.Decimal `json:"wallet"`
	Holdings []HoldingView   `json:"holdings"`
	Totals   Totals          `json:"totals"`
	Missing  int             `json:"missing"`
}

func (r *Router) portfolio(ctx context.Context) Portfolio {
	st := r.state.Snapshot()
	quotes := r.quotes(ctx, st.Portfolio)
	p := Portfolio{Wallet: st.User.WalletBalance, Holdings: make([]HoldingView, 0, len(st.Portfolio))}
	for _, h := range st.Portfolio {
		v := r.value(h, quotes)
		if v.BondMissing {
			p.Missing++
		}
		p.Holdings = append(p.Holdings, v)
	}
	p.Totals = totals(p.Holdings)
	return p
}

// BondDetail describes a single bond and the user's position in it.
type BondDetail struct {
	Bond                   domain.Bond               `json:"bond"`
	Holding                *HoldingView              `json:"holding,omitempty"`
	CurrentYield           float64                   `json:"currentYield"`
	AIPremium              float64                   `json:"aiPremium"`
	AIPremiumPercent       float64                   `json:"aiPremiumPercent"`
	StandardPremium        float64                   `json:"standardPremium"`
	StandardPremiumPercent float64                   `json:"standardPremiumPercent"`
	Transactions           []domain.TransactionEvent `json:"transactions"`
	// QuotedAt is when the cached price was last refreshed. Zero when the
	// price comes from the book.
	QuotedAt time.Time `json:"quotedAt,omitzero"`
}

func (r *Router) bondDetail(ctx context.Context, id string) (BondDetail, error) {
	if id == "" {
		return BondDetail{}, fmt.Errorf("views: %w: bondDetail requires a bond id", domain.ErrInvalidInput)
	}
	bond, ok := r.bonds.Get(id)
	if !ok {
		return BondDetail{}, fmt.Errorf("views: bond %q: %w", id, domain.ErrNotFound)
	}
	d := BondDetail{Bond: bond}
	quotes := r.quote(ctx, &d)
	bond = d.Bond
	if bond.CurrentPrice > 0 {
		d.CurrentYield = round2(bond.Coupon * 100 / bond.CurrentPrice)
		d.AIPremium = round2(bond.AIFairValue - bond.CurrentPrice)
		d.AIPremiumPercent = round2(d.AIPremium / bond.CurrentPrice * 100)
		d.StandardPremium = round2(bond.StandardFairValue - bond.CurrentPrice)
		d.StandardPremiumPercent = round2(d.StandardPremium / bond.CurrentPrice * 100)
	}

	st := r.state.Snapshot()
	for _, h := range st.Portfolio {
		if h.BondID == id {
			v := r.value(h, quotes)
			d.Holding = &v
			break
		}
	}
	for _, tx := range st.Transactions {
		if mentions(tx.Details, bond.ISIN) {
			d.Transactions = append(d.Transactions, tx)
		}
	}
	return d, nil
}

// quote overlays the cached price of d's bond and returns it for holding
// valuation.
func (r *Router) quote(ctx context.Context, d *BondDetail) map[string]float64 {
	if r.prices == nil {
		return nil
	}
	price, ts, err := r.prices.GetPrice(ctx, d.Bond.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.WarnContext(ctx, "views: price cache read failed, using book price",
				slog.String("bond_id", d.Bond.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	if price <= 0 {
		return nil
	}
	d.Bond.CurrentPrice = price
	d.QuotedAt = ts.UTC()
	return map[string]float64{d.Bond.ID: price}
}

// SystemAnalytics is the operations console.
type SystemAnalytics struct {
	Scenario     domain.Scenario           `json:"scenario"`
	Metrics      []domain.SystemMetric     `json:"metrics"`
	Health       HealthSummary             `json:"health"`
	Analytics    []domain.AnalyticsLog     `json:"analytics"`
	Transactions []domain.TransactionEvent `json:"transactions"`
}

func (r *Router) systemAnalytics() SystemAnalytics {
	st := r.state.Snapshot()
	ms := r.health.Metrics()
	return SystemAnalytics{
		Scenario:     r.health.Scenario(),
		Metrics:      ms,
		Health:       summarize(ms),
		Analytics:    st.Analytics,
		Transactions: st.Transactions,
	}
}

// Integrations shows the external rails and the user's onboarding state.
type Integrations struct {
	Services   []domain.SystemMetric  `json:"services"`
	KYC        domain.KYCState        `json:"kyc"`
	UPIMandate domain.UPIMandateState `json:"upiMandate"`
	Connected  bool                   `json:"connected"`
}

func (r *Router) integrations() Integrations {
	u := r.state.Snapshot().User
	return Integrations{
		Services:   pick(r.health.Metrics(), domain.ServiceDPI, domain.ServiceDLT, domain.ServiceAPIGateway),
		KYC:        u.KYC,
		UPIMandate: u.UPIMandate,
		Connected:  u.Connected,
	}
}

// HardwareAcceleration shows the compute-heavy services.
type HardwareAcceleration struct {
	Services    []domain.SystemMetric `json:"services"`
	Contingency bool                  `json:"contingency"`
}

func (r *Router) hardware() HardwareAcceleration {
	return HardwareAcceleration{
		Services:    pick(r.health.Metrics(), domain.ServiceAIPricing, domain.ServiceQuantum, domain.ServiceSwarm),
		Contingency: r.health.Scenario() == domain.ScenarioContingency,
	}
}

// ProfileSettings shows the user record.
type ProfileSettings struct {
	User domain.User `json:"user"`
}

func pick(ms []domain.SystemMetric, services ...string) []domain.SystemMetric {
	out := make([]domain.SystemMetric, 0, len(services))
	for _, name := range services {
		for _, m := range ms {
			if m.Service == name {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func mentions(details, isin string) bool {
	return isin != "" && strings.Contains(details, isin)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
