package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/simulator"
)

// TradeService books trades and exposes the session logs.
type TradeService interface {
	ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.TransactionEvent, error)
	Snapshot() simulator.State
}

// TradeHandler serves trading, portfolio and log endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

// ExecuteTrade places a BUY or SELL order.
// POST /api/trades {"bondId":"INE...","side":"BUY","quantity":10}
func (h *TradeHandler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req domain.TradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Side = domain.TradeSide(strings.ToUpper(string(req.Side)))
	tx, err := h.trades.ExecuteTrade(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to execute trade")
		return
	}
	writeJSON(w, http.StatusAccepted, tx)
}

// GetPortfolio returns the current holdings.
// GET /api/portfolio
func (h *TradeHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	st := h.trades.Snapshot()
	holdings := st.Portfolio
	if holdings == nil {
		holdings = []domain.PortfolioHolding{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"holdings":      holdings,
		"count":         len(holdings),
		"walletBalance": st.User.WalletBalance,
	})
}

// ListTransactions returns the in-memory transaction log, newest first.
// GET /api/transactions?type=ORDER&status=PENDING&limit=50
func (h *TradeHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ := domain.TransactionType(strings.ToUpper(q.Get("type")))
	status := domain.TransactionStatus(strings.ToUpper(q.Get("status")))
	limit := parseListOpts(r).Limit

	out := make([]domain.TransactionEvent, 0, limit)
	for _, tx := range h.trades.Snapshot().Transactions {
		if typ != "" && tx.Type != typ {
			continue
		}
		if status != "" && tx.Status != status {
			continue
		}
		out = append(out, tx)
		if len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": out,
		"count":        len(out),
	})
}

// ListAnalytics returns the analytics log, newest first.
// GET /api/analytics?service=&limit=
func (h *TradeHandler) ListAnalytics(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	limit := parseListOpts(r).Limit

	out := make([]domain.AnalyticsLog, 0, limit)
	for _, l := range h.trades.Snapshot().Analytics {
		if service != "" && !strings.EqualFold(l.Service, service) {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analytics": out,
		"count":     len(out),
	})
}
