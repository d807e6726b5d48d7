package market

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/ingest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }
func (failingProvider) Bonds(context.Context, int) ([]domain.Bond, error) {
	return nil, errors.New("quota exceeded")
}
func (failingProvider) PriceUpdates(context.Context, []domain.Bond, int) ([]domain.PriceUpdate, error) {
	return nil, errors.New("quota exceeded")
}
func (failingProvider) Commentary(context.Context, string, domain.Scenario) (string, error) {
	return "", errors.New("quota exceeded")
}

type fixedScenario struct{ sc domain.Scenario }

func (f fixedScenario) Scenario() domain.Scenario { return f.sc }

type recorded struct {
	mu        sync.Mutex
	txs       []domain.TransactionType
	analytics []string
}

func (r *recorded) RecordTransaction(_ context.Context, typ domain.TransactionType, _ domain.TransactionStatus, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, typ)
}

func (r *recorded) RecordAnalytics(_ context.Context, _ string, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analytics = append(r.analytics, msg)
}

type countingReconciler struct{ calls int }

func (c *countingReconciler) ReconcileHoldings(context.Context) int {
	c.calls++
	return 0
}

func newTestService(p Provider, sc domain.Scenario) (*Service, *recorded) {
	svc := NewService(Config{InitialBonds: 5, UpdateBatch: 3}, NewBook(), p, ingest.NewParser(discard), nil, nil, fixedScenario{sc}, discard)
	rec := &recorded{}
	svc.SetRecorder(rec)
	return svc, rec
}

func TestFallback_UsesSecondaryOnFailure(t *testing.T) {
	f := NewFallback(failingProvider{}, NewSynthetic(1), discard)
	bonds, err := f.Bonds(context.Background(), 4)
	require.NoError(t, err)
	assert.Len(t, bonds, 4)

	text, err := f.Commentary(context.Background(), "Rates", domain.ScenarioNormal)
	require.NoError(t, err)
	assert.Contains(t, text, "### Rates")
}

func TestFallback_NilPrimary(t *testing.T) {
	f := NewFallback(nil, NewSynthetic(1), discard)
	assert.Equal(t, "synthetic", f.Name())
	bonds, err := f.Bonds(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, bonds, 2)
}

func TestService_InitializeAndRefresh(t *testing.T) {
	svc, rec := newTestService(NewSynthetic(7), domain.ScenarioNormal)
	ctx := context.Background()

	require.NoError(t, svc.Initialize(ctx))
	assert.Equal(t, 5, svc.Book().Len())
	assert.Equal(t, SourceGenerated, svc.Source())

	require.NoError(t, svc.Refresh(ctx))
	assert.Equal(t, []domain.TransactionType{domain.TxPriceUpdate}, rec.txs)
}

func TestService_InitializeFailureLeavesEmptyBook(t *testing.T) {
	svc, _ := newTestService(failingProvider{}, domain.ScenarioNormal)
	require.NoError(t, svc.Initialize(context.Background()))
	assert.Equal(t, 0, svc.Book().Len())
}

func TestService_RefreshSuspendedInContingency(t *testing.T) {
	svc, rec := newTestService(NewSynthetic(7), domain.ScenarioContingency)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))
	before := svc.Book().All()

	err := svc.Refresh(ctx)
	require.ErrorIs(t, err, domain.ErrContingency)
	assert.Equal(t, before, svc.Book().All())
	assert.Empty(t, rec.txs)
}

func TestService_ImportReplacesBookAndReconciles(t *testing.T) {
	svc, _ := newTestService(NewSynthetic(7), domain.ScenarioNormal)
	rc := &countingReconciler{}
	svc.SetReconciler(rc)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))

	n, err := svc.Import(ctx, "bonds.csv", strings.NewReader("isin,price\nINE1,100\nINE2,101\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, svc.Book().Len())
	assert.Equal(t, SourceCSV, svc.Source())
	assert.Equal(t, 1, rc.calls)
}

func TestService_ImportErrorKeepsBook(t *testing.T) {
	svc, _ := newTestService(NewSynthetic(7), domain.ScenarioNormal)
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx))

	_, err := svc.Import(ctx, "bonds.txt", strings.NewReader("isin\nX\n"), nil)
	require.ErrorIs(t, err, domain.ErrUnsupportedFile)
	assert.Equal(t, 5, svc.Book().Len())
	assert.Equal(t, SourceGenerated, svc.Source())
}

func TestService_CommentaryErrorDocument(t *testing.T) {
	svc, _ := newTestService(failingProvider{}, domain.ScenarioNormal)
	doc := svc.Commentary(context.Background(), "Rates")
	assert.Contains(t, doc.PlainText(), "could not be generated")
}

type heldLock struct{ held bool }

func (l *heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.held = true
	return func() { l.held = false }, nil
}

func TestService_ImportIsExclusive(t *testing.T) {
	svc, _ := newTestService(NewSynthetic(1), domain.ScenarioNormal)
	lock := &heldLock{}
	svc.SetLockManager(lock)
	csv := "ISIN,Price\nINE001,101\n"

	n, err := svc.Import(context.Background(), "a.csv", strings.NewReader(csv), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, lock.held, "lock released after import")

	lock.held = true
	_, err = svc.Import(context.Background(), "a.csv", strings.NewReader(csv), nil)
	require.ErrorIs(t, err, domain.ErrLockHeld)
}
