package scenario

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/notify"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type staticBonds []domain.Bond

func (s staticBonds) All() []domain.Bond { return s }

type feed struct {
	mu        sync.Mutex
	txs       []string
	analytics []string
}

func (f *feed) RecordTransaction(_ context.Context, typ domain.TransactionType, status domain.TransactionStatus, details string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, string(typ)+"/"+string(status)+"/"+details)
}

func (f *feed) RecordAnalytics(_ context.Context, service, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analytics = append(f.analytics, service+": "+msg)
}

type toasts struct{ got []notify.Toast }

func (t *toasts) Toast(_ context.Context, toast notify.Toast) { t.got = append(t.got, toast) }

func newTestEngine(cfg Config) (*Engine, *feed, *toasts) {
	bonds := staticBonds{{ID: "INE1", ISIN: "INE1", Issuer: "NTPC", CurrentPrice: 101.5}}
	ts := &toasts{}
	e := NewEngine(cfg, bonds, nil, ts, discard)
	f := &feed{}
	e.SetRecorder(f)
	return e, f, ts
}

func TestEngine_JitterStaysWithinFivePercent(t *testing.T) {
	e, _, _ := newTestEngine(Config{Seed: 3})
	for i := 0; i < 200; i++ {
		e.Tick(context.Background())
		for _, m := range e.Metrics() {
			base, ok := baselineFor(m.Service)
			require.True(t, ok)
			if base.Status != domain.StatusOperational {
				assert.Equal(t, base.Value, m.Value, m.Service)
				continue
			}
			assert.InEpsilon(t, base.Value, m.Value, 0.0501, m.Service)
		}
	}
}

func TestEngine_NoJitterInContingency(t *testing.T) {
	e, _, _ := newTestEngine(Config{Seed: 3, Initial: domain.ScenarioContingency})
	before := e.Metrics()
	e.Tick(context.Background())
	assert.Equal(t, before, e.Metrics())
}

func TestEngine_ScenarioOverrides(t *testing.T) {
	tests := []struct {
		scenario domain.Scenario
		check    func(t *testing.T, e *Engine)
	}{
		{domain.ScenarioAPIGatewayOverload, func(t *testing.T, e *Engine) {
			m, _ := e.Metric(domain.ServiceAPIGateway)
			assert.Equal(t, domain.StatusDegraded, m.Status)
			require.NotNil(t, m.BlockedRequests)
			assert.Positive(t, *m.BlockedRequests)
		}},
		{domain.ScenarioDLTCongestion, func(t *testing.T, e *Engine) {
			m, _ := e.Metric(domain.ServiceDLT)
			assert.Greater(t, m.Value, 2.1)
			require.NotNil(t, m.PendingQueue)
		}},
		{domain.ScenarioDPIOutage, func(t *testing.T, e *Engine) {
			assert.Equal(t, domain.StatusDown, e.ServiceStatus(domain.ServiceDPI))
			m, _ := e.Metric(domain.ServiceDPI)
			require.NotNil(t, m.ErrorRate)
			assert.Greater(t, *m.ErrorRate, 50.0)
		}},
		{domain.ScenarioContingency, func(t *testing.T, e *Engine) {
			for _, s := range []string{domain.ServiceAIPricing, domain.ServiceQuantum, domain.ServiceSwarm} {
				assert.Equal(t, domain.StatusDown, e.ServiceStatus(s), s)
			}
			m, _ := e.Metric(domain.ServiceOrderMatching)
			assert.Equal(t, 850.0, m.Value)
			require.NotNil(t, m.BufferSize)
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.scenario), func(t *testing.T) {
			e, _, _ := newTestEngine(Config{Seed: 1})
			require.NoError(t, e.SetScenario(context.Background(), tt.scenario))
			e.Tick(context.Background())
			tt.check(t, e)
		})
	}
}

func TestEngine_SetScenario(t *testing.T) {
	e, f, ts := newTestEngine(Config{Seed: 1})
	ctx := context.Background()

	err := e.SetScenario(ctx, "meltdown")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, domain.ScenarioNormal, e.Scenario())

	require.NoError(t, e.SetScenario(ctx, domain.ScenarioDPIOutage))
	require.NoError(t, e.SetScenario(ctx, domain.ScenarioDPIOutage))
	assert.Len(t, ts.got, 1)
	assert.Equal(t, notify.EventScenarioChanged, ts.got[0].Event)
	assert.Len(t, f.analytics, 1)

	require.NoError(t, e.SetScenario(ctx, domain.ScenarioNormal))
	assert.Equal(t, domain.StatusOperational, e.ServiceStatus(domain.ServiceDPI))
}

func TestEngine_FillerFeed(t *testing.T) {
	e, f, _ := newTestEngine(Config{Seed: 5, MatchProb: 1, BlockTradeProb: 1, AnalyticsProb: 1})
	e.Tick(context.Background())

	require.Len(t, f.txs, 2)
	assert.True(t, strings.HasPrefix(f.txs[0], "MATCH/SUCCESS/Matched"))
	assert.True(t, strings.HasPrefix(f.txs[1], "MATCH/SUCCESS/Block trade"))
	assert.Len(t, f.analytics, 1)
}

func TestEngine_UnknownServiceIsDown(t *testing.T) {
	e, _, _ := newTestEngine(Config{})
	assert.Equal(t, domain.StatusDown, e.ServiceStatus("Mainframe"))
}
