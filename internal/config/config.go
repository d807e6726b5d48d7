// Package config defines the top-level configuration for the bond simulator
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BONDSIM_* environment variables.
type Config struct {
	Market    MarketConfig    `toml:"market"`
	Gemini    GeminiConfig    `toml:"gemini"`
	Simulator SimulatorConfig `toml:"simulator"`
	Scenario  ScenarioConfig  `toml:"scenario"`
	Session   SessionConfig   `toml:"session"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// MarketConfig controls the bond book and its refresh loop.
type MarketConfig struct {
	InitialBonds    int      `toml:"initial_bonds"`
	UpdateBatch     int      `toml:"update_batch"`
	RefreshInterval duration `toml:"refresh_interval"`
	ImportLockTTL   duration `toml:"import_lock_ttl"`
	Seed            uint64   `toml:"seed"`
	// ImportFile is the CSV read by the import mode.
	ImportFile string `toml:"import_file"`
}

// GeminiConfig holds the generative provider credentials. An empty APIKey
// leaves the synthetic provider in charge.
type GeminiConfig struct {
	APIKey            string   `toml:"api_key"`
	Model             string   `toml:"model"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
	Timeout           duration `toml:"timeout"`
	Temperature       float64  `toml:"temperature"`
}

// SimulatorConfig holds wallet defaults, log bounds and lifecycle timing.
type SimulatorConfig struct {
	// StartingBalance is a decimal string, e.g. "1000000".
	StartingBalance          decimal.Decimal `toml:"starting_balance"`
	TransactionLog           int             `toml:"transaction_log"`
	AnalyticsLog             int             `toml:"analytics_log"`
	OrderDelay               duration        `toml:"order_delay"`
	SettlementDelay          duration        `toml:"settlement_delay"`
	SettlementCongestedDelay duration        `toml:"settlement_congested_delay"`
	KYCDelay                 duration        `toml:"kyc_delay"`
	KYCSlowDelay             duration        `toml:"kyc_slow_delay"`
	UPIDelay                 duration        `toml:"upi_delay"`
	FundingDelay             duration        `toml:"funding_delay"`
	SettlementSuccess        float64         `toml:"settlement_success"`
	UPISuccess               float64         `toml:"upi_success"`
	FundingSuccess           float64         `toml:"funding_success"`
	Seed                     uint64          `toml:"seed"`
}

// ScenarioConfig controls the metrics engine.
type ScenarioConfig struct {
	Initial        string   `toml:"initial"`
	Interval       duration `toml:"interval"`
	MatchProb      float64  `toml:"match_prob"`
	BlockTradeProb float64  `toml:"block_trade_prob"`
	AnalyticsProb  float64  `toml:"analytics_prob"`
	Seed           uint64   `toml:"seed"`
}

// SessionConfig selects where the user session is persisted.
type SessionConfig struct {
	// Backend is one of memory, file, redis, postgres.
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	PriceTTL     duration `toml:"price_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls how evicted log entries are batched.
type ArchiveConfig struct {
	Prefix        string   `toml:"prefix"`
	FlushInterval duration `toml:"flush_interval"`
	MaxBatch      int      `toml:"max_batch"`
	MaxBuffer     int      `toml:"max_buffer"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required as a bearer token on mutating routes.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per client per RateWindow; 0 disables limiting.
	RateLimit     int      `toml:"rate_limit"`
	RateWindow    duration `toml:"rate_window"`
	MaxUploadMB   int      `toml:"max_upload_mb"`
	ShutdownGrace duration `toml:"shutdown_grace"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			InitialBonds:    20,
			UpdateBatch:     5,
			RefreshInterval: duration{30 * time.Second},
			ImportLockTTL:   duration{2 * time.Minute},
		},
		Gemini: GeminiConfig{
			Model:             "gemini-2.5-flash",
			RequestsPerMinute: 10,
			Timeout:           duration{30 * time.Second},
			Temperature:       0.7,
		},
		Simulator: SimulatorConfig{
			StartingBalance:          decimal.NewFromInt(1_000_000),
			TransactionLog:           200,
			AnalyticsLog:             100,
			OrderDelay:               duration{1500 * time.Millisecond},
			SettlementDelay:          duration{3 * time.Second},
			SettlementCongestedDelay: duration{12 * time.Second},
			KYCDelay:                 duration{4 * time.Second},
			KYCSlowDelay:             duration{10 * time.Second},
			UPIDelay:                 duration{3 * time.Second},
			FundingDelay:             duration{2500 * time.Millisecond},
			SettlementSuccess:        0.95,
			UPISuccess:               0.9,
			FundingSuccess:           0.95,
		},
		Scenario: ScenarioConfig{
			Initial:        string(domain.ScenarioNormal),
			Interval:       duration{2 * time.Second},
			MatchProb:      0.3,
			BlockTradeProb: 0.05,
			AnalyticsProb:  0.4,
		},
		Session: SessionConfig{
			Backend: "file",
			Dir:     ".bondsim",
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			PriceTTL:     duration{10 * time.Minute},
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "bondsim-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Prefix:        "archive",
			FlushInterval: duration{time.Minute},
			MaxBatch:      500,
			MaxBuffer:     5000,
		},
		Server: ServerConfig{
			Port:          8080,
			CORSOrigins:   []string{"*"},
			RateLimit:     120,
			RateWindow:    duration{time.Minute},
			MaxUploadMB:   32,
			ShutdownGrace: duration{10 * time.Second},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":   true,
	"headless": true,
	"import":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSessionBackends = map[string]bool{
	"memory":   true,
	"file":     true,
	"redis":    true,
	"postgres": true,
}

// Validate checks the configuration for obvious mistakes and returns an
// error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, headless, import)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market
	if c.Market.InitialBonds < 1 {
		errs = append(errs, "market: initial_bonds must be >= 1")
	}
	if c.Market.UpdateBatch < 0 {
		errs = append(errs, "market: update_batch must be >= 0")
	}
	if c.Market.RefreshInterval.Duration <= 0 {
		errs = append(errs, "market: refresh_interval must be > 0")
	}
	if strings.EqualFold(c.Mode, "import") && c.Market.ImportFile == "" {
		errs = append(errs, "market: import_file is required for mode import")
	}

	// Gemini
	if c.Gemini.APIKey != "" {
		if c.Gemini.Model == "" {
			errs = append(errs, "gemini: model must not be empty when api_key is set")
		}
		if c.Gemini.RequestsPerMinute < 1 {
			errs = append(errs, "gemini: requests_per_minute must be >= 1")
		}
	}

	// Simulator
	if !c.Simulator.StartingBalance.IsPositive() {
		errs = append(errs, "simulator: starting_balance must be > 0")
	}
	if c.Simulator.TransactionLog < 1 || c.Simulator.AnalyticsLog < 1 {
		errs = append(errs, "simulator: transaction_log and analytics_log must be >= 1")
	}
	for name, p := range map[string]float64{
		"settlement_success": c.Simulator.SettlementSuccess,
		"upi_success":        c.Simulator.UPISuccess,
		"funding_success":    c.Simulator.FundingSuccess,
	} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Sprintf("simulator: %s must be within [0, 1], got %g", name, p))
		}
	}

	// Scenario
	if _, ok := domain.ParseScenario(c.Scenario.Initial); !ok {
		errs = append(errs, fmt.Sprintf("scenario: unknown initial scenario %q", c.Scenario.Initial))
	}
	if c.Scenario.Interval.Duration <= 0 {
		errs = append(errs, "scenario: interval must be > 0")
	}

	// Session
	backend := strings.ToLower(c.Session.Backend)
	if !validSessionBackends[backend] {
		errs = append(errs, fmt.Sprintf("session: unknown backend %q (valid: memory, file, redis, postgres)", c.Session.Backend))
	}
	if backend == "file" && c.Session.Dir == "" {
		errs = append(errs, "session: dir must not be empty for the file backend")
	}
	if backend == "redis" && !c.Redis.Enabled {
		errs = append(errs, "session: backend redis requires redis.enabled")
	}
	if backend == "postgres" && !c.Supabase.Enabled {
		errs = append(errs, "session: backend postgres requires supabase.enabled")
	}

	// Supabase
	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 {
			errs = append(errs, "supabase: pool_min_conns must be >= 0")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Archive
	if c.Archive.FlushInterval.Duration <= 0 {
		errs = append(errs, "archive: flush_interval must be > 0")
	}
	if c.Archive.MaxBatch < 1 {
		errs = append(errs, "archive: max_batch must be >= 1")
	}

	// Server
	if strings.EqualFold(c.Mode, "server") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
