package config

// builtinConfig is the baseline configuration merged under user-supplied
// YAML. Model capability tables live here so deployments only override what
// differs.
func builtinConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"gemini": {
				Vendor:       "gemini",
				Enabled:      true,
				APIKeyEnv:    "GOOGLE_API_KEY",
				DefaultModel: "gemini-2.5-flash",
				TimeoutSec:   60,
				Models: map[string]ModelConfig{
					"gemini-2.5-flash": {
						SupportsVision:    true,
						SupportsTools:     true,
						SupportsGrounding: true,
						SupportsThinking:  true,
						SupportsStreaming: true,
						SiblingModel:      "gemini-2.0-flash",
					},
					"gemini-2.5-pro": {
						SupportsVision:    true,
						SupportsTools:     true,
						SupportsGrounding: true,
						SupportsThinking:  true,
						SupportsStreaming: true,
						SiblingModel:      "gemini-2.5-flash",
					},
					"gemini-2.0-flash": {
						SupportsVision:    true,
						SupportsTools:     true,
						SupportsStreaming: true,
					},
				},
			},
			"anthropic": {
				Vendor:       "anthropic",
				Enabled:      true,
				APIKeyEnv:    "ANTHROPIC_API_KEY",
				DefaultModel: "claude-sonnet-4-5",
				TimeoutSec:   90,
				Models: map[string]ModelConfig{
					"claude-sonnet-4-5": {
						SupportsVision:    true,
						SupportsTools:     true,
						SupportsGrounding: true,
						SupportsThinking:  true,
						SupportsStreaming: true,
					},
					"claude-opus-4-1": {
						SupportsVision:    true,
						SupportsTools:     true,
						SupportsGrounding: true,
						SupportsThinking:  true,
						SupportsStreaming: true,
						SiblingModel:      "claude-sonnet-4-5",
					},
				},
			},
		},
		TaskRouting: map[string]TaskRoute{
			"identify_text": {
				Primary:  RouteTarget{Provider: "gemini", Model: "gemini-2.5-flash"},
				Fallback: &RouteTarget{Provider: "anthropic", Model: "claude-sonnet-4-5"},
			},
			"identify_image": {
				Primary:  RouteTarget{Provider: "gemini", Model: "gemini-2.5-flash"},
				Fallback: &RouteTarget{Provider: "anthropic", Model: "claude-sonnet-4-5"},
			},
			"enrich": {
				Primary:  RouteTarget{Provider: "gemini", Model: "gemini-2.5-flash"},
				Fallback: &RouteTarget{Provider: "anthropic", Model: "claude-sonnet-4-5"},
			},
			"clarify_match": {
				Primary: RouteTarget{Provider: "gemini", Model: "gemini-2.0-flash"},
			},
		},
		TierModels: TierModelsConfig{
			Tier2: RouteTarget{Provider: "anthropic", Model: "claude-sonnet-4-5"},
			Tier3: RouteTarget{Provider: "anthropic", Model: "claude-opus-4-1"},
		},
		Limits: LimitsConfig{
			DailyRequests: 200,
			DailyCostUSD:  5.0,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelayMs: 500,
			MaxDelayMs:  8000,
			Jitter:      0.1,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:   5,
			RecoveryTimeoutSec: 60,
			SuccessThreshold:   2,
			SampleWindowSec:    300,
		},
		Streaming: StreamingConfig{
			Enabled: true,
			Tasks:   []string{"identify_text", "identify_image", "enrich"},
		},
		Confidence: ConfidenceConfig{
			Tier1Threshold:   85,
			Tier15Threshold:  70,
			AutoThreshold:    85,
			SuggestThreshold: 50,
		},
		Enrichment: EnrichmentConfig{
			CacheTTLDays: 90,
			FuzzyThresholds: FuzzyThresholds{
				Producer: 2,
				Wine:     3,
			},
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "sommelier",
			Database: "sommelier",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Server: ServerConfig{
			Port:           8080,
			CancelTokenDir: "/tmp/sommelier-cancel",
		},
	}
}
