package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// fundingMarker is appended to a FUNDING transaction once its amount has
// been credited.
const fundingMarker = " [credited]"

var fundingAmount = regexp.MustCompile(`₹([0-9]+(?:\.[0-9]+)?)`)

// StartKYC begins identity verification. It succeeds only if the DPI
// service is Operational when the check completes.
func (s *Simulator) StartKYC(ctx context.Context) (domain.TransactionEvent, error) {
	s.mu.Lock()
	if !s.user.Connected {
		s.mu.Unlock()
		return domain.TransactionEvent{}, domain.ErrNotConnected
	}
	switch s.user.KYC.Status {
	case domain.KYCPending:
		s.mu.Unlock()
		return domain.TransactionEvent{}, fmt.Errorf("simulator: kyc: %w: verification already in progress", domain.ErrInvalidInput)
	case domain.KYCVerified:
		s.mu.Unlock()
		return domain.TransactionEvent{}, fmt.Errorf("simulator: kyc: %w: already verified", domain.ErrInvalidInput)
	}
	s.user.KYC.Status = domain.KYCPending
	tx := s.appendLocked(domain.TxKYC, domain.TxPending, "KYC verification started via DPI (Aadhaar, PAN, bank)", "")
	sess := s.sessionLocked()
	s.mu.Unlock()

	s.save(ctx, sess)
	s.publish(ctx, domain.ChannelTransactions, tx)

	delay := s.cfg.KYCDelay
	if s.dpiStatus() != domain.StatusOperational {
		delay = s.cfg.KYCSlowDelay
	}
	s.sched.Schedule(delay, func(ctx context.Context) {
		s.resolveKYC(ctx, tx.ID)
	})
	return tx, nil
}

func (s *Simulator) dpiStatus() domain.ServiceStatus {
	if s.health == nil {
		return domain.StatusOperational
	}
	return s.health.ServiceStatus(domain.ServiceDPI)
}

func (s *Simulator) resolveKYC(ctx context.Context, id string) {
	success := s.dpiStatus() == domain.StatusOperational

	s.mu.Lock()
	var (
		done domain.TransactionEvent
		ok   bool
	)
	if success {
		done, ok = s.finishLocked(id, domain.TxSuccess, func(tx *domain.TransactionEvent) {
			tx.Details = "KYC verified: Aadhaar, PAN and bank account confirmed"
		})
		if ok {
			s.user.KYC = domain.KYCState{Status: domain.KYCVerified, AadhaarVerified: true, PANVerified: true, BankVerified: true}
		}
	} else {
		done, ok = s.finishLocked(id, domain.TxFailed, func(tx *domain.TransactionEvent) {
			tx.Details = "KYC failed: DPI identity service unavailable"
		})
		if ok {
			s.user.KYC = domain.KYCState{Status: domain.KYCUnverified}
		}
	}
	sess := s.sessionLocked()
	connected := s.user.Connected
	s.mu.Unlock()
	if !ok {
		return
	}

	if connected {
		s.save(ctx, sess)
	}
	title := "KYC verified"
	if !success {
		title = "KYC failed"
	}
	s.announce(ctx, done, title)
}

// SetupUPIMandate registers an auto-pay mandate that tops the wallet up by
// amount whenever the balance drops below threshold.
func (s *Simulator) SetupUPIMandate(ctx context.Context, threshold, amount decimal.Decimal) (domain.TransactionEvent, error) {
	if !threshold.IsPositive() || !amount.IsPositive() {
		return domain.TransactionEvent{}, fmt.Errorf("simulator: upi mandate: %w: threshold and amount must be positive", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	if !s.user.Connected {
		s.mu.Unlock()
		return domain.TransactionEvent{}, domain.ErrNotConnected
	}
	s.user.UPIMandate = domain.UPIMandateState{Status: domain.MandatePending, Threshold: threshold, Amount: amount}
	tx := s.appendLocked(domain.TxUPIMandate, domain.TxPending,
		fmt.Sprintf("UPI auto-pay mandate: top up ₹%s when balance falls below ₹%s", amount.StringFixed(2), threshold.StringFixed(2)), "")
	sess := s.sessionLocked()
	s.mu.Unlock()

	s.save(ctx, sess)
	s.publish(ctx, domain.ChannelTransactions, tx)
	s.sched.Schedule(s.cfg.UPIDelay, func(ctx context.Context) {
		s.resolveUPIMandate(ctx, tx.ID)
	})
	return tx, nil
}

func (s *Simulator) resolveUPIMandate(ctx context.Context, id string) {
	s.mu.Lock()
	success := s.roll() < s.cfg.UPISuccess
	var (
		done domain.TransactionEvent
		ok   bool
	)
	if success {
		done, ok = s.finishLocked(id, domain.TxSuccess, func(tx *domain.TransactionEvent) {
			tx.Details += " | Mandate active"
		})
		if ok {
			s.user.UPIMandate.Status = domain.MandateActive
		}
	} else {
		done, ok = s.finishLocked(id, domain.TxFailed, func(tx *domain.TransactionEvent) {
			tx.Details += " | Mandate rejected by bank"
		})
		if ok {
			s.user.UPIMandate = domain.DefaultUser().UPIMandate
		}
	}
	sess := s.sessionLocked()
	connected := s.user.Connected
	s.mu.Unlock()
	if !ok {
		return
	}

	if connected {
		s.save(ctx, sess)
	}
	title := "UPI mandate active"
	if !success {
		title = "UPI mandate failed"
	}
	s.announce(ctx, done, title)
}

// AddFunds starts a wallet top-up. The wallet is credited when the FUNDING
// transaction succeeds.
func (s *Simulator) AddFunds(ctx context.Context, amount decimal.Decimal) (domain.TransactionEvent, error) {
	if !amount.IsPositive() {
		return domain.TransactionEvent{}, fmt.Errorf("simulator: add funds: %w: amount must be positive", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	if !s.user.Connected {
		s.mu.Unlock()
		return domain.TransactionEvent{}, domain.ErrNotConnected
	}
	tx := s.appendLocked(domain.TxFunding, domain.TxPending,
		fmt.Sprintf("Deposit of ₹%s via UPI", amount.StringFixed(2)), "")
	s.mu.Unlock()

	s.publish(ctx, domain.ChannelTransactions, tx)
	s.sched.Schedule(s.cfg.FundingDelay, func(ctx context.Context) {
		s.mu.Lock()
		success := s.roll() < s.cfg.FundingSuccess
		s.mu.Unlock()
		s.resolveFunding(ctx, tx.ID, success)
	})
	return tx, nil
}

// resolveFunding settles a FUNDING transaction. It may be invoked more than
// once for the same id; the wallet is credited at most once.
func (s *Simulator) resolveFunding(ctx context.Context, id string, success bool) {
	status := domain.TxFailed
	if success {
		status = domain.TxSuccess
	}

	s.mu.Lock()
	credited := false
	done, finished := s.finishLocked(id, status, func(tx *domain.TransactionEvent) {
		if !success {
			tx.Details += " | Payment declined"
			return
		}
		credited = s.creditLocked(tx)
	})
	if !finished {
		var found bool
		done, found = s.txs.Find(func(tx domain.TransactionEvent) bool { return tx.ID == id })
		if !found {
			s.mu.Unlock()
			return
		}
		if credited = s.creditLocked(&done); credited {
			s.txs.Update(func(e *domain.TransactionEvent) bool {
				if e.ID != id {
					return false
				}
				e.Details = done.Details
				return true
			})
		}
	}
	sess := s.sessionLocked()
	s.mu.Unlock()

	if credited {
		s.save(ctx, sess)
		s.logger.InfoContext(ctx, "wallet credited", slog.String("id", id))
	}
	if finished {
		title := "Funds added"
		if !success {
			title = "Deposit failed"
		}
		s.announce(ctx, done, title)
	}
}

// creditLocked credits the wallet with the amount of a successful FUNDING
// transaction and marks tx so it is never credited twice. The marker is set
// before tx leaves the log for the archive. Caller holds mu.
func (s *Simulator) creditLocked(tx *domain.TransactionEvent) bool {
	if tx.Status != domain.TxSuccess || !s.user.Connected || strings.Contains(tx.Details, fundingMarker) {
		return false
	}
	m := fundingAmount.FindStringSubmatch(tx.Details)
	if m == nil {
		return false
	}
	amt, err := decimal.NewFromString(m[1])
	if err != nil {
		return false
	}
	s.user.WalletBalance = s.user.WalletBalance.Add(amt)
	tx.Details += fundingMarker
	return true
}
