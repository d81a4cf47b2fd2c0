package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database" validate:"required"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Neo4j         Neo4jConfig         `mapstructure:"neo4j"`
	Auth          AuthConfig          `mapstructure:"auth" validate:"required"`
	LLM           LLMConfig           `mapstructure:"llm" validate:"required"`
	Generation    GenerationConfig    `mapstructure:"generation" validate:"required"`
	Quota         QuotaConfig         `mapstructure:"quota" validate:"required"`
	Review        ReviewConfig        `mapstructure:"review" validate:"required"`
	Validation    ValidationConfig    `mapstructure:"validation" validate:"required"`
	Freshness     FreshnessConfig     `mapstructure:"freshness" validate:"required"`
	Sources       SourcesConfig       `mapstructure:"sources" validate:"required"`
	Relationships RelationshipsConfig `mapstructure:"relationships" validate:"required"`
	Task          TaskConfig          `mapstructure:"task" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int      `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string   `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds" validate:"gte=1"`
	CORSAllowedOrigins     []string `mapstructure:"cors_allowed_origins"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL                    string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" validate:"gte=1"`
	MigrateOnStart         bool   `mapstructure:"migrate_on_start"`
}

// RedisConfig configures the optional Redis instance backing quota counters
// and the generation cache. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// Neo4jConfig configures the optional graph mirror. An empty URI disables it.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri" validate:"omitempty,url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// Enabled reports whether a Neo4j URI was configured.
func (c Neo4jConfig) Enabled() bool { return c.URI != "" }

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0,lt=44640"`
}

// LLMConfig contains all language model integration settings.
type LLMConfig struct {
	Provider             string  `mapstructure:"provider" validate:"required,oneof=gemini openai"`
	GeminiAPIKey         string  `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	OpenAIAPIKey         string  `mapstructure:"openai_api_key" validate:"required_if=Provider openai"`
	OpenAIBaseURL        string  `mapstructure:"openai_base_url" validate:"omitempty,url"`
	GeminiBaseURL        string  `mapstructure:"gemini_base_url" validate:"omitempty,url"`
	ModelName            string  `mapstructure:"model_name" validate:"required"`
	Temperature          float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxRetries           int     `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds    int     `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
	TimeoutSeconds       int     `mapstructure:"timeout_seconds" validate:"gte=1,lte=600"`
	InputCostPerMillion  float64 `mapstructure:"input_cost_per_million" validate:"gte=0"`
	OutputCostPerMillion float64 `mapstructure:"output_cost_per_million" validate:"gte=0"`
}

// GenerationConfig tunes the generation orchestrator.
type GenerationConfig struct {
	DefaultCount            int     `mapstructure:"default_count" validate:"gte=1,lte=50"`
	MaxCount                int     `mapstructure:"max_count" validate:"gte=1,lte=50"`
	CacheTTLSeconds         int     `mapstructure:"cache_ttl_seconds" validate:"gte=0"`
	DuplicateRetryThreshold float64 `mapstructure:"duplicate_retry_threshold" validate:"gt=0,lte=1"`
	MaxDuplicateRetries     int     `mapstructure:"max_duplicate_retries" validate:"gte=0,lte=5"`
	SourceConcurrency       int     `mapstructure:"source_concurrency" validate:"gte=1"`
	EstimatedTokensPerTerm  int     `mapstructure:"estimated_tokens_per_term" validate:"gte=1"`
	EstimatedPromptTokens   int     `mapstructure:"estimated_prompt_tokens" validate:"gte=0"`
}

// TierLimits holds the hard limits for a quota tier. A zero limit means unlimited.
type TierLimits struct {
	RequestsPerMinute int64   `mapstructure:"requests_per_minute" validate:"gte=0"`
	RequestsPerHour   int64   `mapstructure:"requests_per_hour" validate:"gte=0"`
	RequestsPerDay    int64   `mapstructure:"requests_per_day" validate:"gte=0"`
	TokensPerMinute   int64   `mapstructure:"tokens_per_minute" validate:"gte=0"`
	TokensPerHour     int64   `mapstructure:"tokens_per_hour" validate:"gte=0"`
	TokensPerDay      int64   `mapstructure:"tokens_per_day" validate:"gte=0"`
	CostPerHourUSD    float64 `mapstructure:"cost_per_hour_usd" validate:"gte=0"`
	CostPerDayUSD     float64 `mapstructure:"cost_per_day_usd" validate:"gte=0"`
	MaxCostPerRequest float64 `mapstructure:"max_cost_per_request_usd" validate:"gte=0"`
}

// QuotaConfig configures the quota and cost governor.
type QuotaConfig struct {
	SoftThreshold      float64               `mapstructure:"soft_threshold" validate:"gt=0,lt=1"`
	GlobalDailyCostUSD float64               `mapstructure:"global_daily_cost_usd" validate:"gte=0"`
	Tiers              map[string]TierLimits `mapstructure:"tiers" validate:"required,dive,keys,oneof=free basic premium enterprise,endkeys"`
}

// ReviewConfig configures review routing and listing.
type ReviewConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" validate:"gt=0,lte=1"`
	DefaultPageSize     int     `mapstructure:"default_page_size" validate:"gte=1"`
	MaxPageSize         int     `mapstructure:"max_page_size" validate:"gtefield=DefaultPageSize"`
}

// ContentRule is a single inappropriate-content filter entry.
// AllowedContexts lists topic keywords in which the word is acceptable.
type ContentRule struct {
	Word            string   `mapstructure:"word" validate:"required"`
	Severity        string   `mapstructure:"severity" validate:"required,oneof=block flag"`
	AllowedContexts []string `mapstructure:"allowed_contexts"`
}

// ValidationConfig configures sanitization and validation.
type ValidationConfig struct {
	MinWords     int           `mapstructure:"min_words" validate:"gte=1"`
	MinChars     int           `mapstructure:"min_chars" validate:"gte=1"`
	MaxTermChars int           `mapstructure:"max_term_chars" validate:"gte=1"`
	ContentRules []ContentRule `mapstructure:"content_rules" validate:"dive"`
}

// FreshnessConfig configures the freshness monitor and recency decay.
type FreshnessConfig struct {
	DefaultIntervalMinutes int     `mapstructure:"default_interval_minutes" validate:"gte=1"`
	MaxSources             int     `mapstructure:"max_sources" validate:"gte=1"`
	MaxMultiplier          float64 `mapstructure:"max_multiplier" validate:"gte=1"`
	BreakingWindowMinutes  int     `mapstructure:"breaking_window_minutes" validate:"gte=0"`
	CutoffHours            int     `mapstructure:"cutoff_hours" validate:"gte=1"`
	Decay                  string  `mapstructure:"decay" validate:"oneof=linear exponential"`
	InactivityTimeoutHours int     `mapstructure:"inactivity_timeout_hours" validate:"gte=1"`
}

// SourcesConfig configures the external reference-content providers.
type SourcesConfig struct {
	WikipediaBaseURL    string  `mapstructure:"wikipedia_base_url" validate:"omitempty,url"`
	GlossaryURLTemplate string  `mapstructure:"glossary_url_template"`
	NewsFeedURLTemplate string  `mapstructure:"news_feed_url_template"`
	HTTPTimeoutSeconds  int     `mapstructure:"http_timeout_seconds" validate:"gte=1"`
	RequestsPerSecond   float64 `mapstructure:"requests_per_second" validate:"gt=0"`
	UserAgent           string  `mapstructure:"user_agent" validate:"required"`
}

// RelationshipsConfig configures the relationship extractor.
type RelationshipsConfig struct {
	PoolSize            int     `mapstructure:"pool_size" validate:"gte=1,lte=1000"`
	TopicBreadth        int     `mapstructure:"topic_breadth" validate:"gte=0"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gt=0,lte=1"`
	UseModelTagger      bool    `mapstructure:"use_model_tagger"`
}

// TaskConfig contains settings for the background task processing system.
type TaskConfig struct {
	WorkerCount         int `mapstructure:"worker_count" validate:"gte=1"`
	QueueSize           int `mapstructure:"queue_size" validate:"gte=1"`
	StuckTaskAgeMinutes int `mapstructure:"stuck_task_age_minutes" validate:"gte=1"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" validate:"gte=1"`
	MaxAttempts         int `mapstructure:"max_attempts" validate:"gte=1"`
	BaseBackoffSeconds  int `mapstructure:"base_backoff_seconds" validate:"gte=1"`
}
