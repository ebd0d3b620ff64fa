// Package config loads, merges, and validates the service configuration:
// provider credentials and capabilities, task routing, limits, retry and
// breaker tuning, confidence thresholds, and enrichment cache settings.
package config

// ModelConfig advertises one model's capabilities.
type ModelConfig struct {
	SupportsVision    bool `yaml:"supports_vision"`
	SupportsTools     bool `yaml:"supports_tools"`
	SupportsGrounding bool `yaml:"supports_grounding"`
	SupportsThinking  bool `yaml:"supports_thinking"`
	SupportsStreaming bool `yaml:"supports_streaming"`

	// SiblingModel is tried once when this model returns 503/404.
	SiblingModel string `yaml:"sibling_model,omitempty"`
}

// ProviderConfig configures one LLM vendor.
type ProviderConfig struct {
	// Vendor selects the adapter implementation ("gemini" or "anthropic").
	Vendor string `yaml:"vendor"`

	Enabled bool `yaml:"enabled"`

	// APIKeyEnv names the environment variable holding the key, so keys
	// never live in config files.
	APIKeyEnv string `yaml:"api_key_env"`

	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url,omitempty"`

	// TimeoutSec is the default per-call wall-clock budget.
	TimeoutSec int `yaml:"timeout,omitempty"`

	Models map[string]ModelConfig `yaml:"models"`
}

// RouteTarget names one provider/model pair.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// TaskRoute holds the primary and optional fallback targets for a task type.
type TaskRoute struct {
	Primary  RouteTarget  `yaml:"primary"`
	Fallback *RouteTarget `yaml:"fallback,omitempty"`
}

// TierModelsConfig pins the provider/model each escalation tier forces
// through the router's override path. Tier 1 and 1.5 follow task routing.
type TierModelsConfig struct {
	Tier2 RouteTarget `yaml:"tier2"`
	Tier3 RouteTarget `yaml:"tier3"`
}

// LimitsConfig caps per-user daily usage.
type LimitsConfig struct {
	DailyRequests int     `yaml:"daily_requests"`
	DailyCostUSD  float64 `yaml:"daily_cost_usd"`
}

// RetryConfig tunes the router's backoff policy.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BaseDelayMs int     `yaml:"base_delay_ms"`
	MaxDelayMs  int     `yaml:"max_delay_ms"`
	Jitter      float64 `yaml:"jitter"`
}

// CircuitBreakerConfig tunes the per-provider breaker.
type CircuitBreakerConfig struct {
	FailureThreshold   int `yaml:"failure_threshold"`
	RecoveryTimeoutSec int `yaml:"recovery_timeout"`
	SuccessThreshold   int `yaml:"success_threshold"`
	SampleWindowSec    int `yaml:"sample_window"`
}

// StreamingConfig gates which tasks stream.
type StreamingConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Tasks     []string `yaml:"tasks"`
	Tier1Only bool     `yaml:"tier1_only"`
}

// StreamsTask reports whether taskType is allowed to stream.
func (s StreamingConfig) StreamsTask(taskType string) bool {
	if !s.Enabled {
		return false
	}
	if len(s.Tasks) == 0 {
		return true
	}
	for _, t := range s.Tasks {
		if t == taskType {
			return true
		}
	}
	return false
}

// ConfidenceConfig holds the escalation thresholds. Escalation fires on
// strictly-less-than Tier1Threshold.
type ConfidenceConfig struct {
	Tier1Threshold   int `yaml:"tier1_threshold"`
	Tier15Threshold  int `yaml:"tier1_5_threshold"`
	AutoThreshold    int `yaml:"auto_threshold"`
	SuggestThreshold int `yaml:"suggest_threshold"`
}

// FuzzyThresholds are maximum edit distances for canonical-name resolution.
type FuzzyThresholds struct {
	Producer int `yaml:"producer"`
	Wine     int `yaml:"wine"`
}

// EnrichmentConfig tunes the enrichment cache.
type EnrichmentConfig struct {
	CacheTTLDays    int             `yaml:"cache_ttl_days"`
	FuzzyThresholds FuzzyThresholds `yaml:"fuzzy_thresholds"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxConns int `yaml:"max_conns"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`

	// CancelTokenDir is the shared directory for cancellation token files.
	CancelTokenDir string `yaml:"cancel_token_dir"`
}

// Config is the root, ready-to-use configuration.
type Config struct {
	Providers      map[string]ProviderConfig `yaml:"providers"`
	TaskRouting    map[string]TaskRoute      `yaml:"task_routing"`
	TierModels     TierModelsConfig          `yaml:"tier_models"`
	Limits         LimitsConfig              `yaml:"limits"`
	Retry          RetryConfig               `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig      `yaml:"circuit_breaker"`
	Streaming      StreamingConfig           `yaml:"streaming"`
	Confidence     ConfidenceConfig          `yaml:"confidence"`
	Enrichment     EnrichmentConfig          `yaml:"enrichment"`
	Database       DatabaseConfig            `yaml:"database"`
	Server         ServerConfig              `yaml:"server"`
}

// Route resolves the routing entry for a task type.
func (c *Config) Route(taskType string) (TaskRoute, bool) {
	r, ok := c.TaskRouting[taskType]
	return r, ok
}
