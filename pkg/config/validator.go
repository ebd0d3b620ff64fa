package config

import "fmt"

// validate checks cross-field consistency before the config is used.
func validate(cfg *Config) error {
	enabled := map[string]bool{}
	for name, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		enabled[name] = true
		if p.Vendor != "gemini" && p.Vendor != "anthropic" {
			return newValidationError(
				fmt.Sprintf("providers.%s.vendor", name),
				fmt.Sprintf("unknown vendor %q", p.Vendor))
		}
		if p.APIKeyEnv == "" {
			return newValidationError(
				fmt.Sprintf("providers.%s.api_key_env", name), "required for enabled provider")
		}
		if p.DefaultModel == "" {
			return newValidationError(
				fmt.Sprintf("providers.%s.default_model", name), "required for enabled provider")
		}
		if _, ok := p.Models[p.DefaultModel]; !ok {
			return newValidationError(
				fmt.Sprintf("providers.%s.default_model", name),
				fmt.Sprintf("model %q missing from capability table", p.DefaultModel))
		}
	}
	if len(enabled) == 0 {
		return newValidationError("providers", "at least one provider must be enabled")
	}

	for task, route := range cfg.TaskRouting {
		if !enabled[route.Primary.Provider] {
			return newValidationError(
				fmt.Sprintf("task_routing.%s.primary.provider", task),
				fmt.Sprintf("provider %q is not enabled", route.Primary.Provider))
		}
		if route.Fallback != nil && !enabled[route.Fallback.Provider] {
			return newValidationError(
				fmt.Sprintf("task_routing.%s.fallback.provider", task),
				fmt.Sprintf("provider %q is not enabled", route.Fallback.Provider))
		}
	}

	for tier, tgt := range map[string]RouteTarget{
		"tier2": cfg.TierModels.Tier2,
		"tier3": cfg.TierModels.Tier3,
	} {
		if !enabled[tgt.Provider] {
			return newValidationError(
				fmt.Sprintf("tier_models.%s.provider", tier),
				fmt.Sprintf("provider %q is not enabled", tgt.Provider))
		}
	}

	c := cfg.Confidence
	for field, v := range map[string]int{
		"confidence.tier1_threshold":   c.Tier1Threshold,
		"confidence.tier1_5_threshold": c.Tier15Threshold,
		"confidence.auto_threshold":    c.AutoThreshold,
		"confidence.suggest_threshold": c.SuggestThreshold,
	} {
		if v < 0 || v > 100 {
			return newValidationError(field, "must be in [0,100]")
		}
	}
	if c.SuggestThreshold > c.AutoThreshold {
		return newValidationError("confidence.suggest_threshold", "must not exceed auto_threshold")
	}

	if cfg.Retry.MaxAttempts < 1 {
		return newValidationError("retry.max_attempts", "must be at least 1")
	}
	if cfg.Retry.BaseDelayMs <= 0 || cfg.Retry.MaxDelayMs < cfg.Retry.BaseDelayMs {
		return newValidationError("retry", "base_delay_ms must be positive and no greater than max_delay_ms")
	}

	b := cfg.CircuitBreaker
	if b.FailureThreshold < 1 || b.SuccessThreshold < 1 || b.SampleWindowSec < 1 || b.RecoveryTimeoutSec < 1 {
		return newValidationError("circuit_breaker", "all thresholds and windows must be positive")
	}

	if cfg.Enrichment.CacheTTLDays < 1 {
		return newValidationError("enrichment.cache_ttl_days", "must be positive")
	}
	if cfg.Enrichment.FuzzyThresholds.Producer < 0 || cfg.Enrichment.FuzzyThresholds.Wine < 0 {
		return newValidationError("enrichment.fuzzy_thresholds", "must be non-negative")
	}
	return nil
}
