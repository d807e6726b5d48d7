package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/ingest"
	"github.com/alanyoungcy/bondsim/internal/markdown"
)

// Source identifies where the current book came from.
type Source string

const (
	SourceNone      Source = ""
	SourceGenerated Source = "generated"
	SourceCSV       Source = "csv"
)

// Recorder receives the transactions and analytics lines the market emits.
type Recorder interface {
	RecordTransaction(ctx context.Context, typ domain.TransactionType, status domain.TransactionStatus, details string)
	RecordAnalytics(ctx context.Context, service, message string)
}

// ScenarioSource reports the active scenario.
type ScenarioSource interface {
	Scenario() domain.Scenario
}

// Reconciler drops portfolio holdings whose bond left the book.
type Reconciler interface {
	ReconcileHoldings(ctx context.Context) int
}

// importLockKey serialises CSV imports across processes sharing a redis.
const importLockKey = "bondsim:import"

// Config controls the size and cadence of market data generation.
type Config struct {
	InitialBonds    int
	UpdateBatch     int
	RefreshInterval time.Duration
	ImportLockTTL   time.Duration
}

// Service keeps the book filled and moving.
type Service struct {
	cfg        Config
	book       *Book
	provider   Provider
	parser     *ingest.Parser
	prices     domain.PriceCache
	bus        domain.SignalBus
	recorder   Recorder
	scenario   ScenarioSource
	reconciler Reconciler
	locks      domain.LockManager
	logger     *slog.Logger

	mu     sync.Mutex
	source Source
}

// NewService creates a market Service. prices, bus, recorder and reconciler
// may be nil.
func NewService(
	cfg Config,
	book *Book,
	provider Provider,
	parser *ingest.Parser,
	prices domain.PriceCache,
	bus domain.SignalBus,
	scenario ScenarioSource,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		book:     book,
		provider: provider,
		parser:   parser,
		prices:   prices,
		bus:      bus,
		scenario: scenario,
		logger:   logger.With(slog.String("component", "market")),
	}
}

// SetRecorder attaches the transaction recorder.
func (s *Service) SetRecorder(r Recorder) { s.recorder = r }

// SetReconciler attaches the holding reconciler run after every import.
func (s *Service) SetReconciler(r Reconciler) { s.reconciler = r }

// SetLockManager makes Import exclusive across processes.
func (s *Service) SetLockManager(l domain.LockManager) { s.locks = l }

// Book returns the underlying bond book.
func (s *Service) Book() *Book { return s.book }

// BookSize returns the number of listed bonds.
func (s *Service) BookSize() int { return s.book.Len() }

// Source reports where the current book came from.
func (s *Service) Source() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Initialize fills the book from the provider. A provider failure leaves the
// book empty and is logged, not returned.
func (s *Service) Initialize(ctx context.Context) error {
	bonds, err := s.provider.Bonds(ctx, s.cfg.InitialBonds)
	if err != nil {
		s.logger.ErrorContext(ctx, "market: initial bond generation failed",
			slog.String("provider", s.provider.Name()),
			slog.String("error", err.Error()),
		)
		bonds = nil
	}

	s.book.Replace(bonds)
	s.mu.Lock()
	s.source = SourceGenerated
	s.mu.Unlock()

	s.mirrorPrices(ctx, s.book.All())
	s.analytics(ctx, domain.ServiceAIPricing, fmt.Sprintf("Market initialised with %d bonds via %s", s.book.Len(), s.provider.Name()))
	s.logger.InfoContext(ctx, "market initialised",
		slog.Int("bonds", s.book.Len()),
		slog.String("provider", s.provider.Name()),
	)
	return nil
}

// Import replaces the book with the bonds parsed from a CSV upload. It
// returns the number of bonds loaded.
func (s *Service) Import(ctx context.Context, filename string, r io.Reader, progress func(float64)) (int, error) {
	if s.locks != nil {
		ttl := s.cfg.ImportLockTTL
		if ttl <= 0 {
			ttl = 2 * time.Minute
		}
		unlock, err := s.locks.Acquire(ctx, importLockKey, ttl)
		if err != nil {
			return 0, fmt.Errorf("market: import: %w", err)
		}
		defer unlock()
	}

	bonds, err := s.parser.Parse(ctx, filename, r, progress)
	if err != nil {
		return 0, fmt.Errorf("market: import: %w", err)
	}

	s.book.Replace(bonds)
	s.mu.Lock()
	s.source = SourceCSV
	s.mu.Unlock()

	s.mirrorPrices(ctx, bonds)
	if s.reconciler != nil {
		if removed := s.reconciler.ReconcileHoldings(ctx); removed > 0 {
			s.logger.InfoContext(ctx, "dropped holdings for bonds no longer listed", slog.Int("removed", removed))
		}
	}
	s.analytics(ctx, domain.ServiceAPIGateway, fmt.Sprintf("Imported %d bonds from %s", len(bonds), filename))
	s.logger.InfoContext(ctx, "market imported from csv",
		slog.String("file", filename),
		slog.Int("bonds", len(bonds)),
	)
	return len(bonds), nil
}

// Refresh applies one batch of price updates. It is skipped while
// contingency mode is active.
func (s *Service) Refresh(ctx context.Context) error {
	if s.scenario != nil && s.scenario.Scenario() == domain.ScenarioContingency {
		s.logger.DebugContext(ctx, "market refresh suspended in contingency mode")
		return domain.ErrContingency
	}
	bonds := s.book.All()
	if len(bonds) == 0 {
		return nil
	}

	updates, err := s.provider.PriceUpdates(ctx, bonds, s.cfg.UpdateBatch)
	if err != nil {
		return fmt.Errorf("market: price updates: %w", err)
	}
	applied := s.book.ApplyUpdates(updates)
	if len(applied) == 0 {
		return nil
	}

	s.mirrorPrices(ctx, applied)
	s.publish(ctx, applied)
	if s.recorder != nil {
		s.recorder.RecordTransaction(ctx, domain.TxPriceUpdate, domain.TxSuccess,
			fmt.Sprintf("Price update applied to %d bonds", len(applied)))
	}
	return nil
}

// Run refreshes prices on the configured interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	interval := s.cfg.RefreshInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "market refresh loop started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("market refresh loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, domain.ErrContingency) {
				s.logger.WarnContext(ctx, "market refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Commentary asks the provider for market commentary on topic. Failures are
// replaced with the error document.
func (s *Service) Commentary(ctx context.Context, topic string) markdown.Document {
	sc := domain.ScenarioNormal
	if s.scenario != nil {
		sc = s.scenario.Scenario()
	}
	text, err := s.provider.Commentary(ctx, topic, sc)
	if err != nil {
		s.logger.WarnContext(ctx, "commentary generation failed", slog.String("error", err.Error()))
		return markdown.ErrorDocument("Market commentary could not be generated right now. Please try again later.")
	}
	return markdown.Parse(text)
}

func (s *Service) mirrorPrices(ctx context.Context, bonds []domain.Bond) {
	if s.prices == nil {
		return
	}
	now := time.Now().UTC()
	for _, b := range bonds {
		if err := s.prices.SetPrice(ctx, b.ID, b.CurrentPrice, now); err != nil {
			s.logger.WarnContext(ctx, "market: price cache set failed",
				slog.String("bond_id", b.ID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

func (s *Service) publish(ctx context.Context, bonds []domain.Bond) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":     "price_update",
		"bonds":     bonds,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, domain.ChannelPrices, evt); err != nil {
		s.logger.WarnContext(ctx, "market: publish price update failed", slog.String("error", err.Error()))
	}
}

func (s *Service) analytics(ctx context.Context, service, msg string) {
	if s.recorder != nil {
		s.recorder.RecordAnalytics(ctx, service, msg)
	}
}
