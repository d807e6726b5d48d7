package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Simulator.StartingBalance = decimal.Zero
	cfg.Simulator.UPISuccess = 1.5
	cfg.Scenario.Initial = "meltdown"
	cfg.Session.Backend = "redis"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "starting_balance must be > 0")
	assert.Contains(t, msg, "upi_success must be within [0, 1]")
	assert.Contains(t, msg, `unknown initial scenario "meltdown"`)
	assert.Contains(t, msg, "requires redis.enabled")
}

func TestValidate_ImportNeedsFile(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "import"
	require.ErrorContains(t, cfg.Validate(), "import_file is required")

	cfg.Market.ImportFile = "bonds.csv"
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bondsim.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "headless"

[simulator]
starting_balance = "250000.50"
order_delay = "750ms"

[scenario]
initial = "dlt_congestion"

[server]
port = 9000
`), 0o600))

	t.Setenv("BONDSIM_SERVER_PORT", "9100")
	t.Setenv("BONDSIM_NOTIFY_EVENTS", "transaction_failed, scenario_changed,")
	t.Setenv("BONDSIM_REDIS_ENABLED", "true")
	t.Setenv("BONDSIM_SIMULATOR_SEED", "42")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "headless", cfg.Mode)
	assert.True(t, cfg.Simulator.StartingBalance.Equal(decimal.RequireFromString("250000.50")))
	assert.Equal(t, 750*time.Millisecond, cfg.Simulator.OrderDelay.Duration)
	assert.Equal(t, "dlt_congestion", cfg.Scenario.Initial)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"transaction_failed", "scenario_changed"}, cfg.Notify.Events)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, uint64(42), cfg.Simulator.Seed)
	// untouched keys keep their defaults
	assert.Equal(t, 200, cfg.Simulator.TransactionLog)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "server", cfg.Mode)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Gemini.APIKey = "g-key"
	cfg.Supabase.Password = "pw"
	cfg.S3.SecretKey = "secret"
	cfg.Server.APIKey = "api"
	cfg.Notify.Events = []string{"transaction_failed"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Gemini.APIKey)
	assert.Equal(t, "***", out.Supabase.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Redis.Password)

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "transaction_failed", cfg.Notify.Events[0])
	assert.Equal(t, "g-key", cfg.Gemini.APIKey)
}
