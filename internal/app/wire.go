package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/bondsim/internal/blob/s3"
	"github.com/alanyoungcy/bondsim/internal/cache/memory"
	"github.com/alanyoungcy/bondsim/internal/cache/redis"
	"github.com/alanyoungcy/bondsim/internal/config"
	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/market"
	"github.com/alanyoungcy/bondsim/internal/notify"
	"github.com/alanyoungcy/bondsim/internal/platform/gemini"
	"github.com/alanyoungcy/bondsim/internal/server/handler"
	"github.com/alanyoungcy/bondsim/internal/session"
	"github.com/alanyoungcy/bondsim/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes build on. Optional
// backends that are not configured are left as nil interfaces.
type Dependencies struct {
	// Stores
	AuditStore   domain.AuditStore
	TxArchive    domain.TransactionArchive
	SessionStore domain.SessionStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Market data
	Provider market.Provider

	// Checks feeds GET /api/health.
	Checks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.HealthCheck)}

	// --- PostgreSQL ---
	var pgClient *postgres.Client
	if cfg.Supabase.Enabled {
		var err error
		pgClient, err = postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.TxArchive = postgres.NewTransactionArchive(pool)
		deps.Checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	}

	// --- Redis, or the in-process fallback ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		var err error
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		streamMaxLen := cfg.Redis.StreamMaxLen
		if streamMaxLen <= 0 {
			streamMaxLen = 10000
		}
		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBusWithMaxLen(redisClient, streamMaxLen)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		logger.Info("wire: redis disabled, using in-process signal bus and rate limiter")
		deps.SignalBus = memory.NewSignalBus(int(max(cfg.Redis.StreamMaxLen, 0)))
		deps.RateLimiter = memory.NewRateLimiter()
	}

	// --- Session persistence ---
	switch strings.ToLower(cfg.Session.Backend) {
	case "file":
		fs, err := session.NewFileStore(cfg.Session.Dir)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: session: %w", err)
		}
		deps.SessionStore = fs
	case "redis":
		deps.SessionStore = redis.NewSessionStore(redisClient)
	case "postgres":
		deps.SessionStore = postgres.NewSessionStore(pgClient.Pool())
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	// Archiver: whenever something can receive evicted log entries.
	if deps.BlobWriter != nil || deps.TxArchive != nil {
		deps.Archiver = s3blob.NewArchiver(s3blob.ArchiverConfig{
			Prefix:        cfg.Archive.Prefix,
			FlushInterval: cfg.Archive.FlushInterval.Duration,
			MaxBatch:      cfg.Archive.MaxBatch,
			MaxBuffer:     cfg.Archive.MaxBuffer,
		}, deps.BlobWriter, deps.TxArchive, deps.AuditStore, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, deps.SignalBus, logger)

	// --- Market data provider ---
	synthetic := market.NewSynthetic(cfg.Market.Seed)
	if cfg.Gemini.APIKey != "" {
		gem, err := gemini.New(ctx, gemini.Config{
			APIKey:            cfg.Gemini.APIKey,
			Model:             cfg.Gemini.Model,
			RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
			Timeout:           cfg.Gemini.Timeout.Duration,
			Temperature:       float32(cfg.Gemini.Temperature),
		})
		if err != nil {
			logger.Warn("wire: gemini unavailable, using synthetic market data",
				slog.String("error", err.Error()),
			)
			deps.Provider = synthetic
		} else {
			deps.Provider = market.NewFallback(gem, synthetic, logger.With(slog.String("component", "market")))
		}
	} else {
		deps.Provider = synthetic
	}

	return deps, cleanup, nil
}
