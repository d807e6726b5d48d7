package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/ingest"
	"github.com/alanyoungcy/bondsim/internal/market"
	"github.com/alanyoungcy/bondsim/internal/scenario"
	"github.com/alanyoungcy/bondsim/internal/scheduler"
	"github.com/alanyoungcy/bondsim/internal/server"
	"github.com/alanyoungcy/bondsim/internal/server/handler"
	"github.com/alanyoungcy/bondsim/internal/server/ws"
	"github.com/alanyoungcy/bondsim/internal/session"
	"github.com/alanyoungcy/bondsim/internal/simulator"
	"github.com/alanyoungcy/bondsim/internal/views"
)

// core is the simulation shared by every mode.
type core struct {
	book   *market.Book
	market *market.Service
	engine *scenario.Engine
	sim    *simulator.Simulator
	views  *views.Router
}

// buildCore assembles the book, market service, scenario engine and
// simulator on top of deps. The simulator's scheduler is released by Close.
func (a *App) buildCore(deps *Dependencies) *core {
	cfg := a.cfg
	book := market.NewBook()

	initial, _ := domain.ParseScenario(cfg.Scenario.Initial)
	engine := scenario.NewEngine(scenario.Config{
		Interval:       cfg.Scenario.Interval.Duration,
		Initial:        initial,
		MatchProb:      cfg.Scenario.MatchProb,
		BlockTradeProb: cfg.Scenario.BlockTradeProb,
		AnalyticsProb:  cfg.Scenario.AnalyticsProb,
		Seed:           cfg.Scenario.Seed,
	}, book, deps.SignalBus, deps.Notifier, a.logger)

	opts := []simulator.Option{
		simulator.WithBus(deps.SignalBus),
		simulator.WithToaster(deps.Notifier),
	}
	if deps.SessionStore != nil {
		opts = append(opts, simulator.WithPersister(session.NewPersister(deps.SessionStore, a.logger)))
	}
	if deps.Archiver != nil {
		opts = append(opts, simulator.WithArchiver(deps.Archiver))
	}
	sc := cfg.Simulator
	sim := simulator.New(simulator.Config{
		StartingBalance:          sc.StartingBalance,
		TransactionLog:           sc.TransactionLog,
		AnalyticsLog:             sc.AnalyticsLog,
		OrderDelay:               sc.OrderDelay.Duration,
		SettlementDelay:          sc.SettlementDelay.Duration,
		SettlementCongestedDelay: sc.SettlementCongestedDelay.Duration,
		KYCDelay:                 sc.KYCDelay.Duration,
		KYCSlowDelay:             sc.KYCSlowDelay.Duration,
		UPIDelay:                 sc.UPIDelay.Duration,
		FundingDelay:             sc.FundingDelay.Duration,
		SettlementSuccess:        sc.SettlementSuccess,
		UPISuccess:               sc.UPISuccess,
		FundingSuccess:           sc.FundingSuccess,
		Seed:                     sc.Seed,
	}, book, engine, scheduler.NewTimer(), a.logger, opts...)
	a.closers = append(a.closers, sim.Close)
	engine.SetRecorder(sim)

	svc := market.NewService(market.Config{
		InitialBonds:    cfg.Market.InitialBonds,
		UpdateBatch:     cfg.Market.UpdateBatch,
		RefreshInterval: cfg.Market.RefreshInterval.Duration,
		ImportLockTTL:   cfg.Market.ImportLockTTL.Duration,
	}, book, deps.Provider, ingest.NewParser(a.logger), deps.PriceCache, deps.SignalBus, engine, a.logger)
	svc.SetRecorder(sim)
	svc.SetReconciler(sim)
	if deps.LockManager != nil {
		svc.SetLockManager(deps.LockManager)
	}

	router := views.NewRouter(book, sim, engine)
	if deps.PriceCache != nil {
		router.SetPriceCache(deps.PriceCache, a.logger)
	}

	return &core{
		book:   book,
		market: svc,
		engine: engine,
		sim:    sim,
		views:  router,
	}
}

// startLoops runs the market refresh, scenario and archive loops on g.
func (a *App) startLoops(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	g.Go(func() error {
		return c.market.Run(ctx)
	})
	g.Go(func() error {
		return c.engine.Run(ctx)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}
}

// ServerMode fills the book and serves the HTTP and WebSocket API while the
// simulation loops run.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	c := a.buildCore(deps)
	if err := c.market.Initialize(ctx); err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startLoops(ctx, g, deps, c)
	a.startHTTPServer(ctx, g, deps, c)

	return g.Wait()
}

// HeadlessMode runs the simulation loops without the API and logs every
// toast. It is useful for soak runs against redis and the archive.
func (a *App) HeadlessMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting headless mode")

	c := a.buildCore(deps)
	if err := c.market.Initialize(ctx); err != nil {
		return fmt.Errorf("headless mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startLoops(ctx, g, deps, c)

	// Toast consumer.
	g.Go(func() error {
		ch, err := deps.SignalBus.Subscribe(ctx, domain.ChannelToasts)
		if err != nil {
			return fmt.Errorf("headless mode: subscribe %s: %w", domain.ChannelToasts, err)
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				a.logger.InfoContext(ctx, "toast", slog.String("payload", string(msg)))
			}
		}
	})

	return g.Wait()
}

// ImportMode loads the configured CSV into the book, snapshots it to the
// archive when one is configured and exits.
func (a *App) ImportMode(ctx context.Context, deps *Dependencies) error {
	path := a.cfg.Market.ImportFile
	a.logger.InfoContext(ctx, "starting import mode", slog.String("file", path))

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("import mode: %w", err)
	}
	defer f.Close()

	c := a.buildCore(deps)
	next := 0.25
	n, err := c.market.Import(ctx, filepath.Base(path), f, func(p float64) {
		if p >= next {
			a.logger.InfoContext(ctx, "import progress", slog.Float64("progress", p))
			next += 0.25
		}
	})
	if err != nil {
		return fmt.Errorf("import mode: %w", err)
	}

	if deps.Archiver == nil {
		a.logger.InfoContext(ctx, "import complete; no archive configured", slog.Int("bonds", n))
		return nil
	}
	obj, err := deps.Archiver.SnapshotBonds(ctx, c.book.All())
	if err != nil {
		return fmt.Errorf("import mode: snapshot: %w", err)
	}
	if err := deps.Archiver.Flush(ctx); err != nil {
		a.logger.WarnContext(ctx, "import mode: archive flush failed", slog.String("error", err.Error()))
	}
	a.logger.InfoContext(ctx, "import complete",
		slog.Int("bonds", n),
		slog.String("snapshot", obj),
	)
	return nil
}

// startHTTPServer builds the handlers and WebSocket hub for c and serves
// them until ctx is done.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	cfg := a.cfg.Server

	hub := ws.NewHub(deps.SignalBus, func() any {
		return map[string]any{
			"state":      c.sim.Snapshot(),
			"scenario":   c.engine.Scenario(),
			"metrics":    c.engine.Metrics(),
			"bookSource": c.market.Source(),
		}
	}, cfg.CORSOrigins, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Checks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, time.Now().UTC(), c.engine, c.market, c.sim),
		Bonds:    handler.NewBondHandler(c.book, c.market, deps.AuditStore, int64(cfg.MaxUploadMB)<<20, a.logger),
		Accounts: handler.NewAccountHandler(c.sim, deps.AuditStore, a.logger),
		Trades:   handler.NewTradeHandler(c.sim, a.logger),
		Scenario: handler.NewScenarioHandler(c.engine, deps.AuditStore, a.logger),
		Views:    handler.NewViewHandler(c.views, a.logger),
		Archive:  handler.NewArchiveHandler(deps.BlobReader, a.cfg.Archive.Prefix, deps.TxArchive, deps.AuditStore, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
		APIKey:      cfg.APIKey,
		RateLimit:   cfg.RateLimit,
		RateWindow:  cfg.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", cfg.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", cfg.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		grace := cfg.ShutdownGrace.Duration
		if grace <= 0 {
			grace = 5 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
}
