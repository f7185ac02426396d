package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, loads .env when present
// and applies environment overrides. An empty path skips the file. The
// result is not validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// A missing .env is normal in production.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides copies set UPDOWN_* variables over the config. The
// POLYMARKET_* names used by earlier deployments are read first, so the
// UPDOWN_* form wins when both are present.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "UPDOWN_MODE")

	// ── Log ──
	setStr(&cfg.Log.Level, "UPDOWN_LOG_LEVEL")
	setStr(&cfg.Log.File, "UPDOWN_LOG_FILE")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYMARKET_PRIVATE_KEY")
	setStr(&cfg.Wallet.FunderAddress, "POLYMARKET_PROXY_ADDRESS")
	setStr(&cfg.Wallet.PrivateKey, "UPDOWN_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "UPDOWN_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "UPDOWN_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.FunderAddress, "UPDOWN_WALLET_FUNDER_ADDRESS")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.APIKey, "POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.APISecret, "POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.APIPassphrase, "POLYMARKET_API_PASSPHRASE")
	setStr(&cfg.Polymarket.ClobHost, "UPDOWN_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "UPDOWN_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "UPDOWN_POLYMARKET_DATA_HOST")
	setInt(&cfg.Polymarket.ChainID, "UPDOWN_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "UPDOWN_POLYMARKET_SIGNATURE_TYPE")
	setInt(&cfg.Polymarket.FeeRateBps, "UPDOWN_POLYMARKET_FEE_RATE_BPS")
	setStr(&cfg.Polymarket.APIKey, "UPDOWN_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.APISecret, "UPDOWN_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.APIPassphrase, "UPDOWN_POLYMARKET_API_PASSPHRASE")

	// ── Binance ──
	setStr(&cfg.Binance.WSURL, "UPDOWN_BINANCE_WS_URL")
	setInt(&cfg.Binance.MaxFailures, "UPDOWN_BINANCE_MAX_FAILURES")

	// ── Polygon ──
	setStr(&cfg.Polygon.RPCURL, "UPDOWN_POLYGON_RPC_URL")
	setBool(&cfg.Polygon.Redeem, "UPDOWN_POLYGON_REDEEM")

	// ── Lifecycle ──
	setInt(&cfg.Lifecycle.MaxTradesPerWindow, "UPDOWN_LIFECYCLE_MAX_TRADES_PER_WINDOW")
	setFloat64(&cfg.Lifecycle.EntrySlippage, "UPDOWN_LIFECYCLE_ENTRY_SLIPPAGE")
	setFloat64(&cfg.Lifecycle.ExitSlippage, "UPDOWN_LIFECYCLE_EXIT_SLIPPAGE")
	setDuration(&cfg.Lifecycle.StaleTickAge, "UPDOWN_LIFECYCLE_STALE_TICK_AGE")

	// ── Strategy ──
	setFloat64(&cfg.Strategy.MomentumWeight, "UPDOWN_STRATEGY_MOMENTUM_WEIGHT")
	setFloat64(&cfg.Strategy.KellyScalar, "UPDOWN_STRATEGY_KELLY_SCALAR")
	setFloat64(&cfg.Strategy.BaseMinEdge, "UPDOWN_STRATEGY_BASE_MIN_EDGE")

	// ── Paper / journal ──
	setFloat64(&cfg.Paper.StartingBalance, "UPDOWN_PAPER_STARTING_BALANCE")
	setStr(&cfg.Journal.Dir, "UPDOWN_JOURNAL_DIR")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "UPDOWN_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "UPDOWN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "UPDOWN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UPDOWN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UPDOWN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UPDOWN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UPDOWN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UPDOWN_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "UPDOWN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "UPDOWN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "UPDOWN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWN_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWN_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "UPDOWN_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "UPDOWN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "UPDOWN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UPDOWN_S3_REGION")
	setStr(&cfg.S3.Bucket, "UPDOWN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "UPDOWN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UPDOWN_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "UPDOWN_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "UPDOWN_S3_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "UPDOWN_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "UPDOWN_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "UPDOWN_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "UPDOWN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "UPDOWN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "UPDOWN_NOTIFY_EVENTS")
}

// Typed env helpers. Each only mutates the target when the variable is set
// and parses.

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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
