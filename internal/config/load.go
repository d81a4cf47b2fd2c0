package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "LEXIS"

// defaultTiers are the built-in tier limits. Each value can be overridden
// through quota.tiers.<tier>.<field>.
var defaultTiers = map[string]TierLimits{
	"free": {
		RequestsPerMinute: 5, RequestsPerHour: 30, RequestsPerDay: 100,
		TokensPerMinute: 20_000, TokensPerHour: 100_000, TokensPerDay: 300_000,
		CostPerHourUSD: 0.25, CostPerDayUSD: 1, MaxCostPerRequest: 0.05,
	},
	"basic": {
		RequestsPerMinute: 15, RequestsPerHour: 200, RequestsPerDay: 1_000,
		TokensPerMinute: 60_000, TokensPerHour: 500_000, TokensPerDay: 2_000_000,
		CostPerHourUSD: 1.5, CostPerDayUSD: 5, MaxCostPerRequest: 0.15,
	},
	"premium": {
		RequestsPerMinute: 60, RequestsPerHour: 1_000, RequestsPerDay: 10_000,
		TokensPerMinute: 200_000, TokensPerHour: 2_000_000, TokensPerDay: 10_000_000,
		CostPerHourUSD: 8, CostPerDayUSD: 40, MaxCostPerRequest: 0.5,
	},
	"enterprise": {
		RequestsPerMinute: 300, RequestsPerHour: 10_000, RequestsPerDay: 100_000,
		TokensPerMinute: 1_000_000, TokensPerHour: 20_000_000, TokensPerDay: 100_000_000,
		CostPerHourUSD: 100, CostPerDayUSD: 500, MaxCostPerRequest: 2,
	},
}

// defaultContentRules seed the context-sensitive content filter.
var defaultContentRules = []map[string]any{
	{"word": "kill", "severity": "flag", "allowed_contexts": []string{"computing", "operating system", "linux", "unix", "process", "software"}},
	{"word": "execute", "severity": "flag", "allowed_contexts": []string{"computing", "programming", "software", "law", "legal", "finance"}},
	{"word": "shoot", "severity": "flag", "allowed_contexts": []string{"photography", "film", "cinema", "basketball", "football", "sport"}},
	{"word": "drug", "severity": "flag", "allowed_contexts": []string{"pharmacology", "medicine", "medical", "health", "biology", "chemistry"}},
	{"word": "overdose", "severity": "flag", "allowed_contexts": []string{"pharmacology", "medicine", "medical", "health"}},
	{"word": "abort", "severity": "flag", "allowed_contexts": []string{"computing", "programming", "aviation", "aerospace", "medicine"}},
	{"word": "weapon", "severity": "flag", "allowed_contexts": []string{"history", "military", "defense", "law"}},
	{"word": "fuck", "severity": "block"},
	{"word": "shit", "severity": "block"},
	{"word": "cunt", "severity": "block"},
}

// setDefaults registers every configuration key with its default value.
// Keys without a sensible default are bound explicitly so that they can be
// supplied through the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime_minutes", 5)
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("redis.db", 0)
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.4)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("llm.input_cost_per_million", 0.10)
	v.SetDefault("llm.output_cost_per_million", 0.40)

	v.SetDefault("generation.default_count", 10)
	v.SetDefault("generation.max_count", 50)
	v.SetDefault("generation.cache_ttl_seconds", 600)
	v.SetDefault("generation.duplicate_retry_threshold", 0.4)
	v.SetDefault("generation.max_duplicate_retries", 2)
	v.SetDefault("generation.source_concurrency", 4)
	v.SetDefault("generation.estimated_tokens_per_term", 120)
	v.SetDefault("generation.estimated_prompt_tokens", 600)

	v.SetDefault("quota.soft_threshold", 0.8)
	v.SetDefault("quota.global_daily_cost_usd", 250.0)
	for tier, limits := range defaultTiers {
		prefix := "quota.tiers." + tier + "."
		v.SetDefault(prefix+"requests_per_minute", limits.RequestsPerMinute)
		v.SetDefault(prefix+"requests_per_hour", limits.RequestsPerHour)
		v.SetDefault(prefix+"requests_per_day", limits.RequestsPerDay)
		v.SetDefault(prefix+"tokens_per_minute", limits.TokensPerMinute)
		v.SetDefault(prefix+"tokens_per_hour", limits.TokensPerHour)
		v.SetDefault(prefix+"tokens_per_day", limits.TokensPerDay)
		v.SetDefault(prefix+"cost_per_hour_usd", limits.CostPerHourUSD)
		v.SetDefault(prefix+"cost_per_day_usd", limits.CostPerDayUSD)
		v.SetDefault(prefix+"max_cost_per_request_usd", limits.MaxCostPerRequest)
	}

	v.SetDefault("review.confidence_threshold", 0.7)
	v.SetDefault("review.default_page_size", 20)
	v.SetDefault("review.max_page_size", 100)

	v.SetDefault("validation.min_words", 2)
	v.SetDefault("validation.min_chars", 8)
	v.SetDefault("validation.max_term_chars", 80)
	v.SetDefault("validation.content_rules", defaultContentRules)

	v.SetDefault("freshness.default_interval_minutes", 30)
	v.SetDefault("freshness.max_sources", 10)
	v.SetDefault("freshness.max_multiplier", 2.0)
	v.SetDefault("freshness.breaking_window_minutes", 60)
	v.SetDefault("freshness.cutoff_hours", 48)
	v.SetDefault("freshness.decay", "exponential")
	v.SetDefault("freshness.inactivity_timeout_hours", 72)

	v.SetDefault("sources.wikipedia_base_url", "https://en.wikipedia.org")
	v.SetDefault("sources.glossary_url_template", "https://en.wikipedia.org/wiki/Glossary_of_{topic}")
	v.SetDefault("sources.news_feed_url_template", "https://news.google.com/rss/search?q={topic}&hl=en-US&gl=US&ceid=US:en")
	v.SetDefault("sources.http_timeout_seconds", 10)
	v.SetDefault("sources.requests_per_second", 2.0)
	v.SetDefault("sources.user_agent", "lexis-api/1.0 (+https://github.com/phrazzld/lexis-api)")

	v.SetDefault("relationships.pool_size", 200)
	v.SetDefault("relationships.topic_breadth", 1)
	v.SetDefault("relationships.similarity_threshold", 0.35)
	v.SetDefault("relationships.use_model_tagger", false)

	v.SetDefault("task.worker_count", 4)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.stuck_task_age_minutes", 30)
	v.SetDefault("task.poll_interval_seconds", 5)
	v.SetDefault("task.max_attempts", 5)
	v.SetDefault("task.base_backoff_seconds", 10)

	// Required keys have no default, so viper only learns about them here.
	for _, key := range []string{
		"database.url",
		"redis.addr",
		"redis.password",
		"neo4j.uri",
		"neo4j.password",
		"auth.jwt_secret",
		"llm.gemini_api_key",
		"llm.openai_api_key",
		"llm.openai_base_url",
		"llm.gemini_base_url",
	} {
		_ = v.BindEnv(key)
	}
}

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadAuth reads only the auth section from the same sources as Load, for
// tools that mint tokens without a database or model configured.
func LoadAuth() (*AuthConfig, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg.Auth, nil
}

func newViper() (*viper.Viper, error) {
	v := viper.New()

	// The prefix must be in place before setDefaults binds the required keys.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// Validate checks struct-level constraints on an already populated config.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	for _, tier := range []string{"free", "basic", "premium", "enterprise"} {
		if _, ok := cfg.Quota.Tiers[tier]; !ok {
			return fmt.Errorf("config validation failed: missing limits for tier %q", tier)
		}
	}
	return nil
}
