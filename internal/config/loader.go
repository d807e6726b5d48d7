package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BONDSIM_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BONDSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setInt(&cfg.Market.InitialBonds, "BONDSIM_MARKET_INITIAL_BONDS")
	setInt(&cfg.Market.UpdateBatch, "BONDSIM_MARKET_UPDATE_BATCH")
	setDuration(&cfg.Market.RefreshInterval, "BONDSIM_MARKET_REFRESH_INTERVAL")
	setDuration(&cfg.Market.ImportLockTTL, "BONDSIM_MARKET_IMPORT_LOCK_TTL")
	setUint64(&cfg.Market.Seed, "BONDSIM_MARKET_SEED")
	setStr(&cfg.Market.ImportFile, "BONDSIM_MARKET_IMPORT_FILE")

	// ── Gemini ──
	setStr(&cfg.Gemini.APIKey, "BONDSIM_GEMINI_API_KEY")
	setStr(&cfg.Gemini.APIKey, "GEMINI_API_KEY") // SDK convention
	setStr(&cfg.Gemini.Model, "BONDSIM_GEMINI_MODEL")
	setInt(&cfg.Gemini.RequestsPerMinute, "BONDSIM_GEMINI_REQUESTS_PER_MINUTE")
	setDuration(&cfg.Gemini.Timeout, "BONDSIM_GEMINI_TIMEOUT")
	setFloat64(&cfg.Gemini.Temperature, "BONDSIM_GEMINI_TEMPERATURE")

	// ── Simulator ──
	setDecimal(&cfg.Simulator.StartingBalance, "BONDSIM_SIMULATOR_STARTING_BALANCE")
	setInt(&cfg.Simulator.TransactionLog, "BONDSIM_SIMULATOR_TRANSACTION_LOG")
	setInt(&cfg.Simulator.AnalyticsLog, "BONDSIM_SIMULATOR_ANALYTICS_LOG")
	setDuration(&cfg.Simulator.OrderDelay, "BONDSIM_SIMULATOR_ORDER_DELAY")
	setDuration(&cfg.Simulator.SettlementDelay, "BONDSIM_SIMULATOR_SETTLEMENT_DELAY")
	setDuration(&cfg.Simulator.SettlementCongestedDelay, "BONDSIM_SIMULATOR_SETTLEMENT_CONGESTED_DELAY")
	setDuration(&cfg.Simulator.KYCDelay, "BONDSIM_SIMULATOR_KYC_DELAY")
	setDuration(&cfg.Simulator.KYCSlowDelay, "BONDSIM_SIMULATOR_KYC_SLOW_DELAY")
	setDuration(&cfg.Simulator.UPIDelay, "BONDSIM_SIMULATOR_UPI_DELAY")
	setDuration(&cfg.Simulator.FundingDelay, "BONDSIM_SIMULATOR_FUNDING_DELAY")
	setFloat64(&cfg.Simulator.SettlementSuccess, "BONDSIM_SIMULATOR_SETTLEMENT_SUCCESS")
	setFloat64(&cfg.Simulator.UPISuccess, "BONDSIM_SIMULATOR_UPI_SUCCESS")
	setFloat64(&cfg.Simulator.FundingSuccess, "BONDSIM_SIMULATOR_FUNDING_SUCCESS")
	setUint64(&cfg.Simulator.Seed, "BONDSIM_SIMULATOR_SEED")

	// ── Scenario ──
	setStr(&cfg.Scenario.Initial, "BONDSIM_SCENARIO_INITIAL")
	setDuration(&cfg.Scenario.Interval, "BONDSIM_SCENARIO_INTERVAL")
	setFloat64(&cfg.Scenario.MatchProb, "BONDSIM_SCENARIO_MATCH_PROB")
	setFloat64(&cfg.Scenario.BlockTradeProb, "BONDSIM_SCENARIO_BLOCK_TRADE_PROB")
	setFloat64(&cfg.Scenario.AnalyticsProb, "BONDSIM_SCENARIO_ANALYTICS_PROB")
	setUint64(&cfg.Scenario.Seed, "BONDSIM_SCENARIO_SEED")

	// ── Session ──
	setStr(&cfg.Session.Backend, "BONDSIM_SESSION_BACKEND")
	setStr(&cfg.Session.Dir, "BONDSIM_SESSION_DIR")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "BONDSIM_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "BONDSIM_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "BONDSIM_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "BONDSIM_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "BONDSIM_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "BONDSIM_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "BONDSIM_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "BONDSIM_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "BONDSIM_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "BONDSIM_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "BONDSIM_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BONDSIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BONDSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BONDSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BONDSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BONDSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BONDSIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BONDSIM_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "BONDSIM_REDIS_PRICE_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "BONDSIM_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BONDSIM_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BONDSIM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BONDSIM_S3_REGION")
	setStr(&cfg.S3.Bucket, "BONDSIM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BONDSIM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BONDSIM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BONDSIM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BONDSIM_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setStr(&cfg.Archive.Prefix, "BONDSIM_ARCHIVE_PREFIX")
	setDuration(&cfg.Archive.FlushInterval, "BONDSIM_ARCHIVE_FLUSH_INTERVAL")
	setInt(&cfg.Archive.MaxBatch, "BONDSIM_ARCHIVE_MAX_BATCH")
	setInt(&cfg.Archive.MaxBuffer, "BONDSIM_ARCHIVE_MAX_BUFFER")

	// ── Server ──
	setInt(&cfg.Server.Port, "BONDSIM_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform convention
	setStringSlice(&cfg.Server.CORSOrigins, "BONDSIM_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BONDSIM_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BONDSIM_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "BONDSIM_SERVER_RATE_WINDOW")
	setInt(&cfg.Server.MaxUploadMB, "BONDSIM_SERVER_MAX_UPLOAD_MB")
	setDuration(&cfg.Server.ShutdownGrace, "BONDSIM_SERVER_SHUTDOWN_GRACE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BONDSIM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BONDSIM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BONDSIM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BONDSIM_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BONDSIM_MODE")
	setStr(&cfg.LogLevel, "BONDSIM_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
