package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// AccountService manages the wallet session and its onboarding flows.
type AccountService interface {
	Connect(ctx context.Context, walletAddress string) (domain.User, error)
	Disconnect(ctx context.Context)
	User() domain.User
	StartKYC(ctx context.Context) (domain.TransactionEvent, error)
	SetupUPIMandate(ctx context.Context, threshold, amount decimal.Decimal) (domain.TransactionEvent, error)
	AddFunds(ctx context.Context, amount decimal.Decimal) (domain.TransactionEvent, error)
}

// AccountHandler serves session, KYC, UPI and funding endpoints.
type AccountHandler struct {
	accounts AccountService
	audit    Auditor
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler. audit may be nil.
func NewAccountHandler(accounts AccountService, audit Auditor, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, audit: audit, logger: logger}
}

type connectRequest struct {
	WalletAddress string `json:"walletAddress"`
}

// Connect starts or restores the wallet session.
// POST /api/session/connect
func (h *AccountHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.accounts.Connect(r.Context(), req.WalletAddress)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to connect wallet")
		return
	}
	audit(r.Context(), h.audit, h.logger, "session_connect", map[string]any{"wallet": u.WalletAddress})
	writeJSON(w, http.StatusOK, u)
}

// Disconnect ends the session and clears the persisted state.
// POST /api/session/disconnect
func (h *AccountHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	wallet := h.accounts.User().WalletAddress
	h.accounts.Disconnect(r.Context())
	audit(r.Context(), h.audit, h.logger, "session_disconnect", map[string]any{"wallet": wallet})
	writeJSON(w, http.StatusOK, h.accounts.User())
}

// GetUser returns the current user.
// GET /api/user
func (h *AccountHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.accounts.User())
}

// StartKYC begins identity verification.
// POST /api/kyc
func (h *AccountHandler) StartKYC(w http.ResponseWriter, r *http.Request) {
	tx, err := h.accounts.StartKYC(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to start kyc")
		return
	}
	writeJSON(w, http.StatusAccepted, tx)
}

type mandateRequest struct {
	Threshold decimal.Decimal `json:"threshold"`
	Amount    decimal.Decimal `json:"amount"`
}

// SetupUPIMandate requests a UPI auto-pay mandate.
// POST /api/upi-mandate
func (h *AccountHandler) SetupUPIMandate(w http.ResponseWriter, r *http.Request) {
	var req mandateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := h.accounts.SetupUPIMandate(r.Context(), req.Threshold, req.Amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to set up upi mandate")
		return
	}
	writeJSON(w, http.StatusAccepted, tx)
}

type fundsRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// AddFunds starts a wallet top-up.
// POST /api/funds
func (h *AccountHandler) AddFunds(w http.ResponseWriter, r *http.Request) {
	var req fundsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := h.accounts.AddFunds(r.Context(), req.Amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to add funds")
		return
	}
	writeJSON(w, http.StatusAccepted, tx)
}
