// Package config defines the bot's configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields are populated from a TOML file
// and then overridden by UPDOWN_* environment variables.
type Config struct {
	Mode       string           `toml:"mode"`
	Log        LogConfig        `toml:"log"`
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Binance    BinanceConfig    `toml:"binance"`
	Polygon    PolygonConfig    `toml:"polygon"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Lifecycle  LifecycleConfig  `toml:"lifecycle"`
	Paper      PaperConfig      `toml:"paper"`
	Journal    JournalConfig    `toml:"journal"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
}

// LogConfig controls the slog handler and optional rotating file.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// WalletConfig holds the signing key source and the funding address.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// FunderAddress is the proxy wallet holding funds. Empty means the
	// signing EOA trades for itself.
	FunderAddress string `toml:"funder_address"`
}

// PolymarketConfig holds API endpoints, chain parameters and optional
// pre-issued L2 credentials. Without credentials the bot derives them.
type PolymarketConfig struct {
	ClobHost        string `toml:"clob_host"`
	GammaHost       string `toml:"gamma_host"`
	DataHost        string `toml:"data_host"`
	ChainID         int    `toml:"chain_id"`
	SignatureType   int    `toml:"signature_type"`
	FeeRateBps      int    `toml:"fee_rate_bps"`
	ExchangeAddress string `toml:"exchange_address"`
	APIKey          string `toml:"api_key"`
	APISecret       string `toml:"api_secret"`
	APIPassphrase   string `toml:"api_passphrase"`
}

// BinanceConfig controls the trade stream.
type BinanceConfig struct {
	WSURL             string   `toml:"ws_url"`
	ReconnectDelay    duration `toml:"reconnect_delay"`
	MaxReconnectDelay duration `toml:"max_reconnect_delay"`
	MaxFailures       int      `toml:"max_failures"`
}

// PolygonConfig controls on-chain redemption. Redeem needs RPCURL.
type PolygonConfig struct {
	RPCURL            string `toml:"rpc_url"`
	Redeem            bool   `toml:"redeem"`
	ConditionalTokens string `toml:"conditional_tokens"`
	Collateral        string `toml:"collateral"`
}

// StrategyConfig holds the signal model and sizing constants.
type StrategyConfig struct {
	MomentumWeight    float64   `toml:"momentum_weight"`
	MomentumClamp     float64   `toml:"momentum_clamp"`
	LogitClamp        float64   `toml:"logit_clamp"`
	ExecutionFriction float64   `toml:"execution_friction"`
	BaseMinEdge       float64   `toml:"base_min_edge"`
	MaxStartEdge      float64   `toml:"max_start_edge"`
	WindowSeconds     float64   `toml:"window_seconds"`
	MinAsk            float64   `toml:"min_ask"`
	MaxAsk            float64   `toml:"max_ask"`
	ToxicVelocity     float64   `toml:"toxic_velocity"`
	MinVelocity       float64   `toml:"min_velocity"`
	VelocityLookback  float64   `toml:"velocity_lookback_secs"`
	KellyScalar       float64   `toml:"kelly_scalar"`
	VolPenaltyFactor  float64   `toml:"vol_penalty_factor"`
	VolPenaltyCap     float64   `toml:"vol_penalty_cap"`
	SniperMax         float64   `toml:"sniper_max"`
	SniperDivisor     float64   `toml:"sniper_divisor"`
	SniperMinVel      float64   `toml:"sniper_min_velocity"`
	MaxBetMultiple    float64   `toml:"max_bet_multiple"`
	MinShares         int       `toml:"min_shares"`
	MinEVUSDC         float64   `toml:"min_ev_usdc"`
	Tiers             []float64 `toml:"tiers"`
	TierRiskFraction  float64   `toml:"tier_risk_fraction"`
	TierHysteresis    float64   `toml:"tier_hysteresis"`
	EjectPrice        float64   `toml:"eject_price"`
}

// LifecycleConfig holds per-window limits and orchestration timings.
type LifecycleConfig struct {
	MaxTradesPerWindow int      `toml:"max_trades_per_window"`
	ExitCooldown       duration `toml:"exit_cooldown"`
	EntryBlackout      duration `toml:"entry_blackout"`
	StaleTickAge       duration `toml:"stale_tick_age"`
	BreakerBlock       duration `toml:"breaker_block"`
	BasisSamples       int      `toml:"basis_samples"`
	EntrySlippage      float64  `toml:"entry_slippage"`
	ExitSlippage       float64  `toml:"exit_slippage"`
	DiscoveryInterval  duration `toml:"discovery_interval"`
	StatusInterval     duration `toml:"status_interval"`
	OrderTimeout       duration `toml:"order_timeout"`
	ShutdownTimeout    duration `toml:"shutdown_timeout"`
	OrderRateLimit     int      `toml:"order_rate_limit"`
	OrderRateWindow    duration `toml:"order_rate_window"`
}

// PaperConfig controls the simulated executor.
type PaperConfig struct {
	StartingBalance float64 `toml:"starting_balance"`
}

// JournalConfig controls the local JSONL journal.
type JournalConfig struct {
	Dir string `toml:"dir"`
}

// PostgresConfig controls the journal mirror database.
type PostgresConfig struct {
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

// RedisConfig controls the quote cache, instance lock, order rate limiter
// and journal event stream.
type RedisConfig struct {
	Enabled        bool     `toml:"enabled"`
	Addr           string   `toml:"addr"`
	Password       string   `toml:"password"`
	DB             int      `toml:"db"`
	PoolSize       int      `toml:"pool_size"`
	MaxRetries     int      `toml:"max_retries"`
	TLSEnabled     bool     `toml:"tls_enabled"`
	KeyPrefix      string   `toml:"key_prefix"`
	QuoteTTL       duration `toml:"quote_ttl"`
	LockKey        string   `toml:"lock_key"`
	LockTTL        duration `toml:"lock_ttl"`
	JournalChannel string   `toml:"journal_channel"`
	JournalStream  string   `toml:"journal_stream"`
}

// S3Config controls the journal archive.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	Prefix          string   `toml:"prefix"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// ServerConfig controls the status API.
type ServerConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	APIKey     string   `toml:"api_key"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	StatusPush duration `toml:"status_push"`
}

// NotifyConfig holds alert channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration decodes TOML strings like "5s" or "500ms".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the production defaults.
func Defaults() Config {
	return Config{
		Mode: ModePaper,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			DataHost:      "https://data-api.polymarket.com",
			ChainID:       137,
			SignatureType: 1,
		},
		Binance: BinanceConfig{
			WSURL:             "wss://stream.binance.com:9443/ws/btcusdt@aggTrade",
			ReconnectDelay:    duration{time.Second},
			MaxReconnectDelay: duration{30 * time.Second},
		},
		Polygon: PolygonConfig{
			RPCURL:            "https://polygon-rpc.com",
			ConditionalTokens: "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045",
			Collateral:        "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		},
		Strategy: StrategyConfig{
			MomentumWeight:    0.15,
			MomentumClamp:     2.0,
			LogitClamp:        20,
			ExecutionFriction: 0.015,
			BaseMinEdge:       0.015,
			MaxStartEdge:      0.040,
			WindowSeconds:     300,
			MinAsk:            0.10,
			MaxAsk:            0.95,
			ToxicVelocity:     10,
			MinVelocity:       2,
			VelocityLookback:  3,
			KellyScalar:       0.10,
			VolPenaltyFactor:  20,
			VolPenaltyCap:     0.5,
			SniperMax:         2,
			SniperDivisor:     5,
			SniperMinVel:      2,
			MaxBetMultiple:    5,
			MinShares:         3,
			MinEVUSDC:         0.05,
			Tiers: []float64{
				0.50, 1, 1.5, 2, 2.5, 3, 4, 5, 7.5, 10, 12.5, 15, 17.5, 20, 22.5,
				25, 30, 35, 40, 45, 50, 60, 70, 80, 90, 100,
			},
			TierRiskFraction: 0.03,
			TierHysteresis:   0.80,
			EjectPrice:       0.99,
		},
		Lifecycle: LifecycleConfig{
			MaxTradesPerWindow: 2,
			ExitCooldown:       duration{5 * time.Second},
			EntryBlackout:      duration{20 * time.Second},
			StaleTickAge:       duration{500 * time.Millisecond},
			BreakerBlock:       duration{5 * time.Second},
			BasisSamples:       60,
			EntrySlippage:      0.02,
			ExitSlippage:       0.02,
			DiscoveryInterval:  duration{time.Second},
			StatusInterval:     duration{500 * time.Millisecond},
			OrderTimeout:       duration{30 * time.Second},
			ShutdownTimeout:    duration{15 * time.Second},
			OrderRateLimit:     10,
			OrderRateWindow:    duration{time.Second},
		},
		Paper: PaperConfig{StartingBalance: 100},
		Journal: JournalConfig{
			Dir: "journal",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "updown",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       10,
			MaxRetries:     3,
			KeyPrefix:      "updown:",
			QuoteTTL:       duration{time.Minute},
			LockKey:        "instance",
			LockTTL:        duration{30 * time.Second},
			JournalChannel: "journal",
			JournalStream:  "journal:stream",
		},
		S3: S3Config{
			Region:          "us-east-1",
			Prefix:          "journal",
			UseSSL:          true,
			ArchiveInterval: duration{15 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:    true,
			Addr:       "127.0.0.1:8000",
			RateLimit:  20,
			RateWindow: duration{time.Second},
			StatusPush: duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_opened", "trade_closed", "correction", "circuit_breaker", "error"},
		},
	}
}

// Run modes.
const (
	ModeLive  = "live"
	ModePaper = "paper"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks for invalid or missing values and returns one error
// describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch c.Mode {
	case ModeLive, ModePaper:
	default:
		add("unknown mode %q (valid: live, paper)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		add("unknown log level %q (valid: debug, info, warn, error)", c.Log.Level)
	}

	if c.Mode == ModeLive {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			add("wallet: private_key or encrypted_key_path is required in live mode")
		}
		if c.Polymarket.SignatureType != 0 && c.Wallet.FunderAddress == "" {
			add("wallet: funder_address is required for signature_type %d", c.Polymarket.SignatureType)
		}
		if c.Polygon.Redeem && c.Polygon.RPCURL == "" {
			add("polygon: rpc_url is required when redeem is enabled")
		}
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		add("wallet: key_password is required with encrypted_key_path")
	}

	if c.Polymarket.ClobHost == "" || c.Polymarket.GammaHost == "" || c.Polymarket.DataHost == "" {
		add("polymarket: clob_host, gamma_host and data_host must be set")
	}
	if c.Polymarket.ChainID <= 0 {
		add("polymarket: chain_id must be positive")
	}
	if st := c.Polymarket.SignatureType; st < 0 || st > 2 {
		add("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (safe), got %d", st)
	}
	creds := []string{c.Polymarket.APIKey, c.Polymarket.APISecret, c.Polymarket.APIPassphrase}
	set := 0
	for _, v := range creds {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != len(creds) {
		add("polymarket: api_key, api_secret and api_passphrase must be set together")
	}

	if c.Binance.WSURL == "" {
		add("binance: ws_url must be set")
	}
	if c.Lifecycle.MaxTradesPerWindow <= 0 {
		add("lifecycle: max_trades_per_window must be positive")
	}
	if c.Lifecycle.EntrySlippage < 0 || c.Lifecycle.ExitSlippage < 0 {
		add("lifecycle: slippage must not be negative")
	}
	if c.Lifecycle.DiscoveryInterval.Duration <= 0 || c.Lifecycle.OrderTimeout.Duration <= 0 {
		add("lifecycle: discovery_interval and order_timeout must be positive")
	}
	if c.Mode == ModePaper && c.Paper.StartingBalance <= 0 {
		add("paper: starting_balance must be positive")
	}
	if c.Journal.Dir == "" {
		add("journal: dir must be set")
	}

	if c.Postgres.Enabled && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		add("postgres: dsn or host is required when enabled")
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr is required when enabled")
		}
		if c.Redis.LockTTL.Duration < time.Second {
			add("redis: lock_ttl must be at least 1s")
		}
	}
	if c.S3.Enabled && (c.S3.Bucket == "" || c.S3.Region == "") {
		add("s3: bucket and region are required when enabled")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		add("server: addr is required when enabled")
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
