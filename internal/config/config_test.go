package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidateInPaperMode(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModePaper, cfg.Mode)
	assert.Equal(t, 1, cfg.Polymarket.SignatureType)
	assert.Equal(t, 2, cfg.Lifecycle.MaxTradesPerWindow)
	assert.Equal(t, 500*time.Millisecond, cfg.Lifecycle.StaleTickAge.Duration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "live without key",
			mutate:  func(c *Config) { c.Mode = ModeLive; c.Wallet.FunderAddress = "0xabc" },
			wantErr: "private_key or encrypted_key_path",
		},
		{
			name: "live proxy without funder",
			mutate: func(c *Config) {
				c.Mode = ModeLive
				c.Wallet.PrivateKey = "0x01"
			},
			wantErr: "funder_address is required",
		},
		{
			name: "live eoa needs no funder",
			mutate: func(c *Config) {
				c.Mode = ModeLive
				c.Wallet.PrivateKey = "0x01"
				c.Polymarket.SignatureType = 0
			},
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "backtest" },
			wantErr: `unknown mode "backtest"`,
		},
		{
			name:    "partial api credentials",
			mutate:  func(c *Config) { c.Polymarket.APIKey = "k" },
			wantErr: "must be set together",
		},
		{
			name:    "encrypted key without password",
			mutate:  func(c *Config) { c.Wallet.EncryptedKeyPath = "key.enc" },
			wantErr: "key_password is required",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.S3.Enabled = true },
			wantErr: "s3: bucket and region",
		},
		{
			name:    "telegram token without chat",
			mutate:  func(c *Config) { c.Notify.TelegramToken = "t" },
			wantErr: "telegram_chat_id",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: "unknown log level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "nope"
	cfg.Journal.Dir = ""
	cfg.Binance.WSURL = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "journal: dir")
	assert.Contains(t, err.Error(), "binance: ws_url")
}

func TestLoadFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "live"

[wallet]
private_key = "0xfeed"
funder_address = "0x1111111111111111111111111111111111111111"

[lifecycle]
max_trades_per_window = 3
exit_cooldown = "7s"
stale_tick_age = "250ms"

[strategy]
tiers = [1.0, 2.0, 3.0]
velocity_lookback_secs = 4.5

[redis]
enabled = true
lock_ttl = "45s"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeLive, cfg.Mode)
	assert.Equal(t, 3, cfg.Lifecycle.MaxTradesPerWindow)
	assert.Equal(t, 7*time.Second, cfg.Lifecycle.ExitCooldown.Duration)
	assert.Equal(t, 250*time.Millisecond, cfg.Lifecycle.StaleTickAge.Duration)
	assert.Equal(t, []float64{1, 2, 3}, cfg.Strategy.Tiers)
	assert.InDelta(t, 4.5, cfg.Strategy.VelocityLookback, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.Redis.LockTTL.Duration)
	// Untouched sections keep their defaults.
	assert.Equal(t, "https://clob.polymarket.com", cfg.Polymarket.ClobHost)
	assert.Equal(t, 20*time.Second, cfg.Lifecycle.EntryBlackout.Duration)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[lifecycle]\nexit_cooldown = \"soon\"\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UPDOWN_MODE", "live")
	t.Setenv("UPDOWN_LOG_LEVEL", "debug")
	t.Setenv("UPDOWN_LIFECYCLE_MAX_TRADES_PER_WINDOW", "4")
	t.Setenv("UPDOWN_LIFECYCLE_STALE_TICK_AGE", "1s")
	t.Setenv("UPDOWN_STRATEGY_KELLY_SCALAR", "0.2")
	t.Setenv("UPDOWN_REDIS_ENABLED", "true")
	t.Setenv("UPDOWN_NOTIFY_EVENTS", " trade_opened, ,error ")
	t.Setenv("UPDOWN_POSTGRES_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeLive, cfg.Mode)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Lifecycle.MaxTradesPerWindow)
	assert.Equal(t, time.Second, cfg.Lifecycle.StaleTickAge.Duration)
	assert.InDelta(t, 0.2, cfg.Strategy.KellyScalar, 1e-9)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"trade_opened", "error"}, cfg.Notify.Events)
	assert.Equal(t, 5432, cfg.Postgres.Port, "unparsable values are ignored")
}

func TestLegacyEnvNames(t *testing.T) {
	t.Setenv("POLYMARKET_PRIVATE_KEY", "0xlegacy")
	t.Setenv("POLYMARKET_PROXY_ADDRESS", "0xproxy")
	t.Setenv("POLYMARKET_API_KEY", "key")
	t.Setenv("POLYMARKET_API_SECRET", "secret")
	t.Setenv("POLYMARKET_API_PASSPHRASE", "pass")
	t.Setenv("UPDOWN_WALLET_FUNDER_ADDRESS", "0xnew")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0xlegacy", cfg.Wallet.PrivateKey)
	assert.Equal(t, "0xnew", cfg.Wallet.FunderAddress, "UPDOWN_* wins over the legacy name")
	assert.Equal(t, "key", cfg.Polymarket.APIKey)
	assert.Equal(t, "secret", cfg.Polymarket.APISecret)
	assert.Equal(t, "pass", cfg.Polymarket.APIPassphrase)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xsecret"
	cfg.Polymarket.APISecret = "s"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.S3.SecretKey = "sk"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	out := RedactedConfig(&cfg)

	assert.Equal(t, redacted, out.Wallet.PrivateKey)
	assert.Equal(t, redacted, out.Polymarket.APISecret)
	assert.Equal(t, redacted, out.Postgres.DSN)
	assert.Equal(t, redacted, out.S3.SecretKey)
	assert.Equal(t, redacted, out.Notify.DiscordWebhookURL)
	assert.Empty(t, out.Server.APIKey, "empty secrets stay empty")
	assert.Equal(t, "0xsecret", cfg.Wallet.PrivateKey, "original untouched")

	out.Strategy.Tiers[0] = 999
	assert.NotEqual(t, 999.0, cfg.Strategy.Tiers[0])
}
