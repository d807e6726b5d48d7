package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// dustQuantity is the size below which a holding is considered closed.
const dustQuantity = 1e-9

// order carries what the settlement leg needs to know about a trade.
type order struct {
	side     domain.TradeSide
	bond     domain.Bond
	quantity float64
	price    float64
}

func (o order) describe() string {
	return fmt.Sprintf("%s %s units of %s (%s) @ ₹%.2f",
		o.side, formatQty(o.quantity), o.bond.Issuer, o.bond.ISIN, o.price)
}

// ExecuteTrade books a trade against the wallet and portfolio immediately
// and creates a PENDING ORDER whose matching and settlement play out on the
// scheduler. A settlement failure does not reverse the booking.
func (s *Simulator) ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.TransactionEvent, error) {
	if !req.Side.Valid() {
		return domain.TransactionEvent{}, fmt.Errorf("simulator: trade: %w: side must be BUY or SELL", domain.ErrInvalidInput)
	}
	if req.Quantity <= 0 || math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return domain.TransactionEvent{}, fmt.Errorf("simulator: trade: %w: quantity must be positive", domain.ErrInvalidInput)
	}
	bond, ok := s.book.Get(req.BondID)
	if !ok {
		return domain.TransactionEvent{}, fmt.Errorf("simulator: trade %q: %w", req.BondID, domain.ErrNotFound)
	}

	s.mu.Lock()
	if !s.user.Connected {
		s.mu.Unlock()
		return domain.TransactionEvent{}, domain.ErrNotConnected
	}

	o := order{side: req.Side, bond: bond, quantity: req.Quantity, price: bond.CurrentPrice}
	switch req.Side {
	case domain.TradeSideBuy:
		cost := money(o.price).Mul(decimal.NewFromFloat(o.quantity)).Round(2)
		if cost.GreaterThan(s.user.WalletBalance) {
			s.mu.Unlock()
			return domain.TransactionEvent{}, fmt.Errorf("simulator: buy %s: %w: need ₹%s, have ₹%s",
				bond.ID, domain.ErrInsufficientFunds, cost.StringFixed(2), s.user.WalletBalance.StringFixed(2))
		}
		s.user.WalletBalance = s.user.WalletBalance.Sub(cost)
		s.buyLocked(bond.ID, o.quantity, o.price)

	case domain.TradeSideSell:
		i := s.holdingIndexLocked(bond.ID)
		if i < 0 || s.portfolio[i].Quantity <= dustQuantity {
			s.mu.Unlock()
			return domain.TransactionEvent{}, fmt.Errorf("simulator: sell %s: %w", bond.ID, domain.ErrInsufficientHolding)
		}
		o.quantity = math.Min(o.quantity, s.portfolio[i].Quantity)
		proceeds := money(o.price).Mul(decimal.NewFromFloat(o.quantity)).Round(2)
		s.user.WalletBalance = s.user.WalletBalance.Add(proceeds)
		s.sellLocked(i, o.quantity)
	}

	tx := s.appendLocked(domain.TxOrder, domain.TxPending, "Order placed: "+o.describe(), "")
	sess := s.sessionLocked()
	s.mu.Unlock()

	s.save(ctx, sess)
	s.publish(ctx, domain.ChannelTransactions, tx)
	s.logger.InfoContext(ctx, "order placed",
		slog.String("id", tx.ID),
		slog.String("side", string(o.side)),
		slog.String("bond_id", bond.ID),
		slog.Float64("quantity", o.quantity),
		slog.Float64("price", o.price),
	)

	s.sched.Schedule(s.cfg.OrderDelay, func(ctx context.Context) {
		s.resolveOrder(ctx, tx.ID, o)
	})
	return tx, nil
}

// resolveOrder marks the order matched and opens its settlement leg.
func (s *Simulator) resolveOrder(ctx context.Context, id string, o order) {
	s.mu.Lock()
	done, ok := s.finishLocked(id, domain.TxSuccess, func(tx *domain.TransactionEvent) {
		tx.Details = "Order filled: " + o.describe()
	})
	if !ok {
		s.mu.Unlock()
		return
	}
	match := s.appendLocked(domain.TxMatch, domain.TxSuccess, "Order matched: "+o.describe(), "")
	settlement := s.appendLocked(domain.TxSettlement, domain.TxPending,
		fmt.Sprintf("Settling %s at matched price ₹%.2f", o.bond.ISIN, o.price), "")
	s.mu.Unlock()

	s.announce(ctx, done, "Order filled")
	s.publish(ctx, domain.ChannelTransactions, match)
	s.publish(ctx, domain.ChannelTransactions, settlement)

	s.sched.Schedule(s.settlementDelay(), func(ctx context.Context) {
		s.resolveSettlement(ctx, settlement.ID, o)
	})
}

func (s *Simulator) settlementDelay() time.Duration {
	if s.health == nil {
		return s.cfg.SettlementDelay
	}
	switch s.health.Scenario() {
	case domain.ScenarioDLTCongestion, domain.ScenarioContingency:
		return s.cfg.SettlementCongestedDelay
	default:
		return s.cfg.SettlementDelay
	}
}

func (s *Simulator) settlementProvider() string {
	if s.health != nil && s.health.Scenario() == domain.ScenarioContingency {
		return "NSE Clearing (T+1 contingency)"
	}
	return "DLT Settlement Layer (Hyperledger Besu)"
}

// resolveSettlement finishes the settlement leg and, for successful buys,
// records the minted tokens.
func (s *Simulator) resolveSettlement(ctx context.Context, id string, o order) {
	provider := s.settlementProvider()

	s.mu.Lock()
	success := s.roll() < s.cfg.SettlementSuccess
	var (
		done     domain.TransactionEvent
		ok       bool
		tokenize *domain.TransactionEvent
	)
	if success {
		hash := dltHash(id, o.bond.ISIN, o.side, o.quantity, o.price, s.now())
		done, ok = s.finishLocked(id, domain.TxSuccess, func(tx *domain.TransactionEvent) {
			tx.Details = fmt.Sprintf("Settled %s via %s", o.describe(), provider)
			tx.DLTHash = hash
		})
		if ok && o.side == domain.TradeSideBuy {
			t := s.appendLocked(domain.TxTokenize, domain.TxSuccess,
				fmt.Sprintf("Minted %s tokens of %s to wallet", formatQty(o.quantity), o.bond.ISIN),
				dltHash("mint", id, o.bond.ISIN))
			tokenize = &t
		}
	} else {
		done, ok = s.finishLocked(id, domain.TxFailed, func(tx *domain.TransactionEvent) {
			tx.Details = fmt.Sprintf("Settlement failed for %s: DLT node did not confirm", o.describe())
		})
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	title := "Settlement complete"
	if !success {
		title = "Settlement failed"
	}
	s.announce(ctx, done, title)
	if tokenize != nil {
		s.publish(ctx, domain.ChannelTransactions, *tokenize)
	}
}

func (s *Simulator) holdingIndexLocked(bondID string) int {
	for i, h := range s.portfolio {
		if h.BondID == bondID {
			return i
		}
	}
	return -1
}

// buyLocked adds quantity at price, keeping a weighted average cost.
func (s *Simulator) buyLocked(bondID string, quantity, price float64) {
	i := s.holdingIndexLocked(bondID)
	if i < 0 {
		s.portfolio = append(s.portfolio, domain.PortfolioHolding{BondID: bondID, Quantity: quantity, AvgPrice: price})
		return
	}
	h := &s.portfolio[i]
	total := h.Quantity + quantity
	h.AvgPrice = (h.AvgPrice*h.Quantity + price*quantity) / total
	h.Quantity = total
}

// sellLocked removes quantity from holding i, dropping it once empty.
func (s *Simulator) sellLocked(i int, quantity float64) {
	h := &s.portfolio[i]
	h.Quantity -= quantity
	if h.Quantity < dustQuantity {
		s.portfolio = append(s.portfolio[:i], s.portfolio[i+1:]...)
	}
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func formatQty(q float64) string {
	if q == math.Trunc(q) {
		return fmt.Sprintf("%.0f", q)
	}
	return fmt.Sprintf("%.4f", q)
}
