package config

import "slices"

const redacted = "***"

// RedactedConfig returns a copy of cfg with every secret replaced by "***",
// safe to log.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Polymarket.APIKey)
	redact(&out.Polymarket.APISecret)
	redact(&out.Polymarket.APIPassphrase)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Slices are shared by the struct copy.
	out.Strategy.Tiers = slices.Clone(cfg.Strategy.Tiers)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
