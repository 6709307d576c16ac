package config

import (
	"fmt"
	"strings"
)

var validRuntimeKinds = map[string]bool{
	"local": true,
	"llm":   true,
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for inconsistencies. All problems are
// reported at once.
func Validate(cfg *Config) error {
	var problems []string

	if !validRuntimeKinds[cfg.Runtime.Kind] {
		problems = append(problems, fmt.Sprintf("runtime.kind must be local or llm, got %q", cfg.Runtime.Kind))
	}
	if cfg.Runtime.MaxRounds < 0 {
		problems = append(problems, "runtime.max_rounds must not be negative")
	}
	if cfg.Runtime.CallTimeoutMs < 0 {
		problems = append(problems, "runtime.call_timeout_ms must not be negative")
	}

	if cfg.Runtime.Kind == "llm" && !cfg.AI.Credential.Configured() {
		problems = append(problems, "runtime.kind is llm but ai.credential has no provider/api_key")
	}
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 1 {
		problems = append(problems, "ai.temperature must be between 0 and 1")
	}

	if cfg.Chain.RPCURL != "" && cfg.Chain.ContractAddress == "" {
		problems = append(problems, "chain.rpc_url is set but chain.contract_address is empty")
	}

	if cfg.Pricing.BaseUSD <= 0 {
		problems = append(problems, "pricing.base_usd must be positive")
	}
	if cfg.Pricing.FloorUSD > cfg.Pricing.CeilingUSD {
		problems = append(problems, "pricing.floor_usd must not exceed pricing.ceiling_usd")
	}
	if cfg.Pricing.VolumeDiscount < 0 || cfg.Pricing.VolumeDiscount >= 1 {
		problems = append(problems, "pricing.volume_discount must be in [0, 1)")
	}

	if cfg.Budget.MonthlyCapUSD <= 0 {
		problems = append(problems, "budget.monthly_cap_usd must be positive")
	}

	if cfg.Selection.CandidateLimit <= 0 {
		problems = append(problems, "selection.candidate_limit must be positive")
	}

	if cfg.Logging.Level != "" && !validLogLevels[cfg.Logging.Level] {
		problems = append(problems, fmt.Sprintf("logging.level %q is not a valid level", cfg.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
