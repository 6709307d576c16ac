package config

import (
	"github.com/harlan/mixcue/pkg/llm"
)

// Config is the main mixcue configuration.
type Config struct {
	// Runtime selects the decision runtime
	Runtime RuntimeConfig `json:"runtime" mapstructure:"runtime"`

	// AI holds provider credentials for the llm runtime
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Chain configures the marketplace contract reader
	Chain ChainConfig `json:"chain" mapstructure:"chain"`

	// Pricing configures the quote engine
	Pricing PricingConfig `json:"pricing" mapstructure:"pricing"`

	// Budget configures the wallet ledger
	Budget BudgetConfig `json:"budget" mapstructure:"budget"`

	// Selection configures candidate selection
	Selection SelectionConfig `json:"selection" mapstructure:"selection"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory for sqlite databases
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// RuntimeConfig selects and tunes the decision runtime.
type RuntimeConfig struct {
	Kind          string `json:"kind" mapstructure:"kind"` // local, llm
	MaxRounds     int    `json:"max_rounds" mapstructure:"max_rounds"`
	CallTimeoutMs int    `json:"call_timeout_ms" mapstructure:"call_timeout_ms"`
}

// AIConfig holds llm provider settings.
type AIConfig struct {
	Credential  llm.Credential `json:"credential" mapstructure:"credential"`
	Temperature float64        `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int            `json:"max_tokens" mapstructure:"max_tokens"`
}

// ChainConfig configures on-chain listing verification.
type ChainConfig struct {
	RPCURL          string `json:"rpc_url" mapstructure:"rpc_url"`
	ContractAddress string `json:"contract_address" mapstructure:"contract_address"`
	TimeoutMs       int    `json:"timeout_ms" mapstructure:"timeout_ms"`
}

// PricingConfig configures the quote engine.
type PricingConfig struct {
	BaseUSD         float64 `json:"base_usd" mapstructure:"base_usd"`
	FloorUSD        float64 `json:"floor_usd" mapstructure:"floor_usd"`
	CeilingUSD      float64 `json:"ceiling_usd" mapstructure:"ceiling_usd"`
	VolumeThreshold int     `json:"volume_threshold" mapstructure:"volume_threshold"`
	VolumeDiscount  float64 `json:"volume_discount" mapstructure:"volume_discount"`
}

// BudgetConfig configures the wallet ledger.
type BudgetConfig struct {
	MonthlyCapUSD float64 `json:"monthly_cap_usd" mapstructure:"monthly_cap_usd"`
	ResetCron     string  `json:"reset_cron" mapstructure:"reset_cron"`
}

// SelectionConfig configures candidate selection.
type SelectionConfig struct {
	CandidateLimit int  `json:"candidate_limit" mapstructure:"candidate_limit"`
	UseEmbeddings  bool `json:"use_embeddings" mapstructure:"use_embeddings"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
	File   string `json:"file" mapstructure:"file"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Kind:          "local",
			MaxRounds:     6,
			CallTimeoutMs: 30000,
		},
		AI: AIConfig{
			Temperature: 0.2,
			MaxTokens:   1024,
		},
		Chain: ChainConfig{
			TimeoutMs: 10000,
		},
		Pricing: PricingConfig{
			BaseUSD:         0.02,
			FloorUSD:        0.01,
			CeilingUSD:      50.00,
			VolumeThreshold: 10,
			VolumeDiscount:  0.10,
		},
		Budget: BudgetConfig{
			MonthlyCapUSD: 25.00,
		},
		Selection: SelectionConfig{
			CandidateLimit: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9109",
		},
	}
}
