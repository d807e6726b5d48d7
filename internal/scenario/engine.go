// Package scenario simulates the health telemetry of the platform's
// backing services under a selectable scenario.
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/notify"
)

// Recorder receives the filler feed generated on each tick.
type Recorder interface {
	RecordTransaction(ctx context.Context, typ domain.TransactionType, status domain.TransactionStatus, details string)
	RecordAnalytics(ctx context.Context, service, message string)
}

// BondLister supplies bonds to name in filler trades.
type BondLister interface {
	All() []domain.Bond
}

// Toaster announces scenario changes.
type Toaster interface {
	Toast(ctx context.Context, t notify.Toast)
}

// Config controls tick cadence and feed density.
type Config struct {
	Interval       time.Duration
	Initial        domain.Scenario
	MatchProb      float64
	BlockTradeProb float64
	AnalyticsProb  float64
	Seed           uint64
}

// Engine holds the current scenario and the metric of every service.
type Engine struct {
	cfg      Config
	recorder Recorder
	bonds    BondLister
	bus      domain.SignalBus
	toaster  Toaster
	logger   *slog.Logger

	mu       sync.RWMutex
	rng      *rand.Rand
	scenario domain.Scenario
	metrics  []domain.SystemMetric
}

// NewEngine creates an Engine. bonds, bus and toaster may be nil.
func NewEngine(cfg Config, bonds BondLister, bus domain.SignalBus, toaster Toaster, logger *slog.Logger) *Engine {
	if _, ok := overrides[cfg.Initial]; !ok {
		cfg.Initial = domain.ScenarioNormal
	}
	e := &Engine{
		cfg:      cfg,
		bonds:    bonds,
		bus:      bus,
		toaster:  toaster,
		logger:   logger.With(slog.String("component", "scenario")),
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1)),
		scenario: cfg.Initial,
	}
	e.metrics = e.compute(false)
	return e
}

// SetRecorder attaches the feed recorder.
func (e *Engine) SetRecorder(r Recorder) { e.recorder = r }

// Scenario returns the active scenario.
func (e *Engine) Scenario() domain.Scenario {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scenario
}

// SetScenario switches scenario and recomputes metrics immediately.
func (e *Engine) SetScenario(ctx context.Context, sc domain.Scenario) error {
	if _, ok := overrides[sc]; !ok {
		return fmt.Errorf("scenario: %w: unknown scenario %q", domain.ErrInvalidInput, sc)
	}

	e.mu.Lock()
	prev := e.scenario
	e.scenario = sc
	e.metrics = e.compute(false)
	metrics := cloneMetrics(e.metrics)
	e.mu.Unlock()

	if prev == sc {
		return nil
	}

	e.logger.InfoContext(ctx, "scenario changed",
		slog.String("from", string(prev)),
		slog.String("to", string(sc)),
	)
	e.publish(ctx, domain.ChannelScenario, map[string]any{"from": prev, "to": sc})
	e.publish(ctx, domain.ChannelMetrics, metrics)
	if e.recorder != nil {
		e.recorder.RecordAnalytics(ctx, domain.ServiceAPIGateway, fmt.Sprintf("Scenario switched from %s to %s", prev, sc))
	}
	if e.toaster != nil {
		level := notify.LevelWarning
		if sc == domain.ScenarioNormal {
			level = notify.LevelInfo
		}
		e.toaster.Toast(ctx, notify.Toast{
			Event:   notify.EventScenarioChanged,
			Level:   level,
			Title:   "Scenario changed",
			Message: fmt.Sprintf("Infrastructure scenario is now %s", sc),
		})
	}
	return nil
}

// Metrics returns a copy of every service metric in display order.
func (e *Engine) Metrics() []domain.SystemMetric {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneMetrics(e.metrics)
}

// Metric returns the metric of one service.
func (e *Engine) Metric(service string) (domain.SystemMetric, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, m := range e.metrics {
		if m.Service == service {
			return cloneMetric(m), true
		}
	}
	return domain.SystemMetric{}, false
}

// ServiceStatus returns the status of one service, or Down if unknown.
func (e *Engine) ServiceStatus(service string) domain.ServiceStatus {
	m, ok := e.Metric(service)
	if !ok {
		return domain.StatusDown
	}
	return m.Status
}

// Tick advances the telemetry by one step and emits the filler feed.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	sc := e.scenario
	e.metrics = e.compute(sc != domain.ScenarioContingency)
	metrics := cloneMetrics(e.metrics)
	roll := e.rng.Float64()
	blockRoll := e.rng.Float64()
	analyticsRoll := e.rng.Float64()
	e.mu.Unlock()

	e.publish(ctx, domain.ChannelMetrics, metrics)
	if e.recorder == nil {
		return
	}

	matchProb, blockProb := e.cfg.MatchProb, e.cfg.BlockTradeProb
	if sc == domain.ScenarioVolatilitySpike {
		matchProb, blockProb = min(1, matchProb*2), min(1, blockProb*3)
	}
	if roll < matchProb {
		if details, ok := e.fillerTrade(false); ok {
			e.recorder.RecordTransaction(ctx, domain.TxMatch, domain.TxSuccess, details)
		}
	}
	if blockRoll < blockProb {
		if details, ok := e.fillerTrade(true); ok {
			e.recorder.RecordTransaction(ctx, domain.TxMatch, domain.TxSuccess, details)
		}
	}
	if analyticsRoll < e.cfg.AnalyticsProb {
		service, msg := e.analyticsLine(sc)
		e.recorder.RecordAnalytics(ctx, service, msg)
	}
}

// Run ticks on the configured interval until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.InfoContext(ctx, "scenario loop started",
		slog.Duration("interval", interval),
		slog.String("scenario", string(e.Scenario())),
	)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("scenario loop stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// compute builds the metric set for the current scenario. Caller holds mu.
func (e *Engine) compute(jitter bool) []domain.SystemMetric {
	out := make([]domain.SystemMetric, len(baseline))
	ov := overrides[e.scenario]
	for i, base := range baseline {
		m := base
		if jitter && m.Status == domain.StatusOperational {
			m.Value = roundTo(base.Value*(1+(e.rng.Float64()*0.1-0.05)), 2)
		}
		if fn, ok := ov[m.Service]; ok {
			fn(&m)
		}
		out[i] = m
	}
	return out
}

func (e *Engine) fillerTrade(block bool) (string, bool) {
	if e.bonds == nil {
		return "", false
	}
	bonds := e.bonds.All()
	if len(bonds) == 0 {
		return "", false
	}

	e.mu.Lock()
	b := bonds[e.rng.IntN(len(bonds))]
	qty := 10 + e.rng.IntN(490)
	if block {
		qty = 5000 + e.rng.IntN(45000)
	}
	e.mu.Unlock()

	if block {
		return fmt.Sprintf("Block trade: %d units of %s (%s) @ ₹%.2f", qty, b.Issuer, b.ISIN, b.CurrentPrice), true
	}
	return fmt.Sprintf("Matched %d units of %s (%s) @ ₹%.2f", qty, b.Issuer, b.ISIN, b.CurrentPrice), true
}

var analyticsLines = map[domain.Scenario][][2]string{
	domain.ScenarioNormal: {
		{domain.ServiceAIPricing, "Fair value model recalibrated against latest trades"},
		{domain.ServiceSwarm, "Swarm consensus reached on liquidity allocation"},
		{domain.ServiceQuantum, "Portfolio optimisation batch completed"},
		{domain.ServiceAIS, "Routine anomaly scan found no threats"},
	},
	domain.ScenarioVolatilitySpike: {
		{domain.ServiceAIPricing, "Volatility regime detected, widening fair value bands"},
		{domain.ServiceOrderMatching, "Matching engine load above 3x baseline"},
	},
	domain.ScenarioAPIGatewayOverload: {
		{domain.ServiceAPIGateway, "Circuit breaker open on order entry route"},
		{domain.ServiceAIS, "Blocking abusive IP ranges at the edge"},
	},
	domain.ScenarioDLTCongestion: {
		{domain.ServiceDLT, "Settlement queue depth rising, batching confirmations"},
	},
	domain.ScenarioDPIOutage: {
		{domain.ServiceDPI, "Identity rail unreachable, KYC verifications failing"},
	},
	domain.ScenarioContingency: {
		{domain.ServiceOrderMatching, "Contingency mode: buffering orders at baseline throughput"},
		{domain.ServiceAIPricing, "AI pricing suspended, serving standard fair values"},
	},
}

func (e *Engine) analyticsLine(sc domain.Scenario) (string, string) {
	lines := analyticsLines[sc]
	if len(lines) == 0 {
		lines = analyticsLines[domain.ScenarioNormal]
	}
	e.mu.Lock()
	l := lines[e.rng.IntN(len(lines))]
	e.mu.Unlock()
	return l[0], l[1]
}

func (e *Engine) publish(ctx context.Context, channel string, v any) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.logger.WarnContext(ctx, "scenario: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func cloneMetrics(in []domain.SystemMetric) []domain.SystemMetric {
	out := make([]domain.SystemMetric, len(in))
	for i, m := range in {
		out[i] = cloneMetric(m)
	}
	return out
}

func cloneMetric(m domain.SystemMetric) domain.SystemMetric {
	if m.ErrorRate != nil {
		m.ErrorRate = ptr(*m.ErrorRate)
	}
	if m.BlockedRequests != nil {
		m.BlockedRequests = ptr(*m.BlockedRequests)
	}
	if m.PendingQueue != nil {
		m.PendingQueue = ptr(*m.PendingQueue)
	}
	if m.BufferSize != nil {
		m.BufferSize = ptr(*m.BufferSize)
	}
	return m
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
