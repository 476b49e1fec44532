package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// OKX
	out.OKX = cfg.OKX
	redact(&out.OKX.ApiKey)
	redact(&out.OKX.ApiSecret)
	redact(&out.OKX.ApiPassphrase)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Geo.BlockedCountries != nil {
		out.Geo.BlockedCountries = make([]string, len(cfg.Geo.BlockedCountries))
		copy(out.Geo.BlockedCountries, cfg.Geo.BlockedCountries)
	}
	if cfg.Feed.Symbols != nil {
		out.Feed.Symbols = make([]string, len(cfg.Feed.Symbols))
		copy(out.Feed.Symbols, cfg.Feed.Symbols)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
