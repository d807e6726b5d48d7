// Package simulator is the single state container of a trading session: the
// user, their portfolio and the bounded transaction and analytics logs. User
// intents create PENDING transactions that a scheduler later resolves to
// SUCCESS or FAILED.
package simulator

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/notify"
	"github.com/alanyoungcy/bondsim/internal/ringbuf"
	"github.com/alanyoungcy/bondsim/internal/scheduler"
)

// PriceSource looks up bonds by id.
type PriceSource interface {
	Get(id string) (domain.Bond, bool)
	Has(id string) bool
}

// HealthSource reports simulated service health.
type HealthSource interface {
	Scenario() domain.Scenario
	ServiceStatus(service string) domain.ServiceStatus
}

// Persister stores the session on a best-effort basis.
type Persister interface {
	Load(ctx context.Context) (domain.Session, bool)
	Save(ctx context.Context, s domain.Session)
	Clear(ctx context.Context)
}

// Toaster shows a notification to the user.
type Toaster interface {
	Toast(ctx context.Context, t notify.Toast)
}

// Archiver receives log entries evicted from the bounded logs.
type Archiver interface {
	ArchiveTransaction(tx domain.TransactionEvent)
	ArchiveAnalytics(l domain.AnalyticsLog)
}

// Config holds balances, log sizes, delays and success probabilities.
type Config struct {
	StartingBalance decimal.Decimal
	TransactionLog  int
	AnalyticsLog    int

	OrderDelay               time.Duration
	SettlementDelay          time.Duration
	SettlementCongestedDelay time.Duration
	KYCDelay                 time.Duration
	KYCSlowDelay             time.Duration
	UPIDelay                 time.Duration
	FundingDelay             time.Duration

	SettlementSuccess float64
	UPISuccess        float64
	FundingSuccess    float64

	Seed uint64
}

// DefaultConfig returns the stock simulation parameters.
func DefaultConfig() Config {
	return Config{
		StartingBalance:          decimal.NewFromInt(1_000_000),
		TransactionLog:           200,
		AnalyticsLog:             100,
		OrderDelay:               1500 * time.Millisecond,
		SettlementDelay:          3 * time.Second,
		SettlementCongestedDelay: 12 * time.Second,
		KYCDelay:                 4 * time.Second,
		KYCSlowDelay:             10 * time.Second,
		UPIDelay:                 3 * time.Second,
		FundingDelay:             2500 * time.Millisecond,
		SettlementSuccess:        0.95,
		UPISuccess:               0.9,
		FundingSuccess:           0.95,
	}
}

// Option configures optional collaborators.
type Option func(*Simulator)

func WithPersister(p Persister) Option { return func(s *Simulator) { s.persister = p } }

func WithBus(b domain.SignalBus) Option { return func(s *Simulator) { s.bus = b } }

func WithToaster(t Toaster) Option { return func(s *Simulator) { s.toaster = t } }

func WithArchiver(a Archiver) Option { return func(s *Simulator) { s.archiver = a } }

func WithClock(now func() time.Time) Option { return func(s *Simulator) { s.now = now } }

// WithRoll replaces the random source used for success rolls. roll must
// return values in [0, 1).
func WithRoll(roll func() float64) Option { return func(s *Simulator) { s.roll = roll } }

// Simulator owns all session state. Every mutation happens under mu.
type Simulator struct {
	cfg       Config
	book      PriceSource
	health    HealthSource
	sched     scheduler.Scheduler
	persister Persister
	bus       domain.SignalBus
	toaster   Toaster
	archiver  Archiver
	logger    *slog.Logger
	now       func() time.Time
	roll      func() float64

	mu        sync.Mutex
	user      domain.User
	portfolio []domain.PortfolioHolding
	txs       *ringbuf.Ring[domain.TransactionEvent]
	logs      *ringbuf.Ring[domain.AnalyticsLog]
	pending   map[string]domain.TransactionEvent
}

// New creates a Simulator with a disconnected default user.
func New(cfg Config, book PriceSource, health HealthSource, sched scheduler.Scheduler, logger *slog.Logger, opts ...Option) *Simulator {
	if cfg.TransactionLog <= 0 {
		cfg.TransactionLog = 200
	}
	if cfg.AnalyticsLog <= 0 {
		cfg.AnalyticsLog = 100
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5bd1e995))
	s := &Simulator{
		cfg:     cfg,
		book:    book,
		health:  health,
		sched:   sched,
		logger:  logger.With(slog.String("component", "simulator")),
		now:     time.Now,
		roll:    rng.Float64,
		user:    domain.DefaultUser(),
		txs:     ringbuf.New[domain.TransactionEvent](cfg.TransactionLog),
		logs:    ringbuf.New[domain.AnalyticsLog](cfg.AnalyticsLog),
		pending: make(map[string]domain.TransactionEvent),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State is a deep copy of the simulator state. Logs are newest first.
type State struct {
	User         domain.User               `json:"user"`
	Portfolio    []domain.PortfolioHolding `json:"portfolio"`
	Transactions []domain.TransactionEvent `json:"transactions"`
	Analytics    []domain.AnalyticsLog     `json:"analytics"`
}

// Snapshot returns a copy of the current state.
func (s *Simulator) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		User:         s.user,
		Portfolio:    append([]domain.PortfolioHolding(nil), s.portfolio...),
		Transactions: s.txs.Newest(),
		Analytics:    s.logs.Newest(),
	}
}

// User returns the current user.
func (s *Simulator) User() domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Transaction returns the transaction with the given id, looking at pending
// work first and then the visible log.
func (s *Simulator) Transaction(id string) (domain.TransactionEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.pending[id]; ok {
		return tx, true
	}
	return s.txs.Find(func(tx domain.TransactionEvent) bool { return tx.ID == id })
}

// Connect starts a session. A persisted session is restored when present;
// otherwise the user starts with the configured balance. Connecting an
// already connected session returns the current user.
func (s *Simulator) Connect(ctx context.Context, walletAddress string) (domain.User, error) {
	s.mu.Lock()
	if s.user.Connected {
		u := s.user
		s.mu.Unlock()
		return u, nil
	}
	s.mu.Unlock()

	var (
		saved    domain.Session
		restored bool
	)
	if s.persister != nil {
		saved, restored = s.persister.Load(ctx)
	}
	if walletAddress == "" {
		if restored && saved.User.WalletAddress != "" {
			walletAddress = saved.User.WalletAddress
		} else {
			walletAddress = newWalletAddress()
		}
	}

	s.mu.Lock()
	if restored {
		s.user = saved.User
		s.portfolio = append([]domain.PortfolioHolding(nil), saved.Portfolio...)
	} else {
		s.user = domain.DefaultUser()
		s.user.WalletBalance = s.cfg.StartingBalance
		s.portfolio = nil
	}
	s.user.Connected = true
	s.user.WalletAddress = walletAddress
	u := s.user
	sess := s.sessionLocked()
	s.mu.Unlock()

	s.save(ctx, sess)
	s.RecordAnalytics(ctx, domain.ServiceAPIGateway, "Wallet "+shortAddress(walletAddress)+" connected")
	s.logger.InfoContext(ctx, "session connected",
		slog.String("wallet", walletAddress),
		slog.Bool("restored", restored),
	)
	return u, nil
}

// Disconnect ends the session: in-flight work is cancelled, pending
// transactions are failed, the user is reset and the persisted session is
// cleared.
func (s *Simulator) Disconnect(ctx context.Context) {
	s.sched.CancelAll()

	s.mu.Lock()
	var cancelled []domain.TransactionEvent
	for id := range s.pending {
		if tx, ok := s.finishLocked(id, domain.TxFailed, func(tx *domain.TransactionEvent) {
			tx.Details += " | Cancelled: session ended"
		}); ok {
			cancelled = append(cancelled, tx)
		}
	}
	addr := s.user.WalletAddress
	s.user = domain.DefaultUser()
	s.portfolio = nil
	s.mu.Unlock()

	for _, tx := range cancelled {
		s.publish(ctx, domain.ChannelTransactions, tx)
	}
	if s.persister != nil {
		s.persister.Clear(ctx)
	}
	s.RecordAnalytics(ctx, domain.ServiceAPIGateway, "Wallet "+shortAddress(addr)+" disconnected")
	s.logger.InfoContext(ctx, "session disconnected", slog.Int("cancelled", len(cancelled)))
}

// Close cancels all scheduled work and waits for running tasks.
func (s *Simulator) Close() {
	s.sched.Close()
}

// RecordTransaction appends a terminal transaction produced outside the
// user lifecycle. A PENDING status is recorded as SUCCESS because nothing
// would ever resolve it.
func (s *Simulator) RecordTransaction(ctx context.Context, typ domain.TransactionType, status domain.TransactionStatus, details string) {
	if !status.Terminal() {
		status = domain.TxSuccess
	}
	s.mu.Lock()
	tx := s.appendLocked(typ, status, details, "")
	s.mu.Unlock()
	s.publish(ctx, domain.ChannelTransactions, tx)
}

// RecordAnalytics appends a line to the analytics log.
func (s *Simulator) RecordAnalytics(ctx context.Context, service, message string) {
	entry := domain.AnalyticsLog{
		ID:        uuid.NewString(),
		Timestamp: s.now().UTC(),
		Service:   service,
		Message:   message,
	}
	s.mu.Lock()
	old, evicted := s.logs.Append(entry)
	s.mu.Unlock()

	if evicted && s.archiver != nil {
		s.archiver.ArchiveAnalytics(old)
	}
	s.publish(ctx, domain.ChannelAnalytics, entry)
}

// ReconcileHoldings removes holdings whose bond is no longer listed and
// returns how many were removed.
func (s *Simulator) ReconcileHoldings(ctx context.Context) int {
	s.mu.Lock()
	kept := s.portfolio[:0]
	removed := 0
	for _, h := range s.portfolio {
		if s.book.Has(h.BondID) {
			kept = append(kept, h)
			continue
		}
		removed++
	}
	s.portfolio = kept
	sess := s.sessionLocked()
	connected := s.user.Connected
	s.mu.Unlock()

	if removed > 0 && connected {
		s.save(ctx, sess)
	}
	return removed
}

// appendLocked adds a new transaction to the log. PENDING transactions are
// also tracked until they resolve. Caller holds mu.
func (s *Simulator) appendLocked(typ domain.TransactionType, status domain.TransactionStatus, details, hash string) domain.TransactionEvent {
	tx := domain.TransactionEvent{
		ID:        uuid.NewString(),
		Timestamp: s.now().UTC(),
		Type:      typ,
		Status:    status,
		Details:   details,
		DLTHash:   hash,
	}
	if status == domain.TxPending {
		s.pending[tx.ID] = tx
	}
	if old, evicted := s.txs.Append(tx); evicted && s.archiver != nil && old.Status.Terminal() {
		s.archiver.ArchiveTransaction(old)
	}
	return tx
}

// finishLocked moves a pending transaction to its terminal status exactly
// once. ok is false if id is not pending. Caller holds mu.
func (s *Simulator) finishLocked(id string, status domain.TransactionStatus, mutate func(*domain.TransactionEvent)) (domain.TransactionEvent, bool) {
	tx, ok := s.pending[id]
	if !ok {
		return domain.TransactionEvent{}, false
	}
	delete(s.pending, id)

	tx.Status = status
	if mutate != nil {
		mutate(&tx)
	}
	inLog := s.txs.Update(func(e *domain.TransactionEvent) bool {
		if e.ID != id {
			return false
		}
		*e = tx
		return true
	})
	if !inLog && s.archiver != nil {
		s.archiver.ArchiveTransaction(tx)
	}
	return tx, true
}

func (s *Simulator) sessionLocked() domain.Session {
	return domain.Session{
		User:      s.user,
		Portfolio: append([]domain.PortfolioHolding(nil), s.portfolio...),
	}
}

func (s *Simulator) save(ctx context.Context, sess domain.Session) {
	if s.persister != nil {
		s.persister.Save(ctx, sess)
	}
}

func (s *Simulator) publish(ctx context.Context, channel string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "simulator: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	// Transactions are also kept on a stream so reconnecting clients can
	// replay what they missed.
	if channel != domain.ChannelTransactions {
		return
	}
	if err := s.bus.StreamAppend(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "simulator: stream append failed",
			slog.String("stream", channel),
			slog.String("error", err.Error()),
		)
	}
}

// announce publishes a resolved transaction and raises its toast.
func (s *Simulator) announce(ctx context.Context, tx domain.TransactionEvent, title string) {
	s.publish(ctx, domain.ChannelTransactions, tx)

	level, event := notify.LevelSuccess, notify.EventTransactionSuccess
	if tx.Status == domain.TxFailed {
		level, event = notify.LevelError, notify.EventTransactionFailed
		s.logger.WarnContext(ctx, "transaction failed",
			slog.String("id", tx.ID),
			slog.String("type", string(tx.Type)),
			slog.String("details", tx.Details),
		)
	}
	if s.toaster != nil {
		s.toaster.Toast(ctx, notify.Toast{
			Event:   event,
			Level:   level,
			Title:   title,
			Message: tx.Details,
		})
	}
}
