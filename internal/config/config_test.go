package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlan/mixcue/pkg/llm"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixcue.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Runtime.Kind)
	assert.Equal(t, 0.02, cfg.Pricing.BaseUSD)
	assert.Equal(t, 25.00, cfg.Budget.MonthlyCapUSD)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mixcue.json")

	raw, err := json.Marshal(map[string]interface{}{
		"runtime": map[string]interface{}{"kind": "llm"},
		"budget":  map[string]interface{}{"monthly_cap_usd": 5.0},
		"ai": map[string]interface{}{
			"credential": map[string]interface{}{
				"provider": "anthropic",
				"api_key":  "sk-test",
				"model":    "claude-sonnet-4-20250514",
			},
		},
		"data_dir": dir,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "llm", cfg.Runtime.Kind)
	assert.Equal(t, 5.0, cfg.Budget.MonthlyCapUSD)
	assert.Equal(t, "anthropic", cfg.AI.Credential.Provider)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.02, cfg.Pricing.BaseUSD)
	assert.Equal(t, filepath.Join(dir, "catalog.db"), cfg.CatalogDBPath())
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mixcue.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.Budget.MonthlyCapUSD = 12.50
	require.NoError(t, loader.Save(cfg))

	reloaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 12.50, reloaded.Budget.MonthlyCapUSD)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown runtime kind",
			mutate:  func(c *Config) { c.Runtime.Kind = "hybrid" },
			wantErr: "runtime.kind",
		},
		{
			name:    "llm runtime without credential",
			mutate:  func(c *Config) { c.Runtime.Kind = "llm" },
			wantErr: "ai.credential",
		},
		{
			name: "llm runtime with credential passes",
			mutate: func(c *Config) {
				c.Runtime.Kind = "llm"
				c.AI.Credential = llm.Credential{Provider: "openai", APIKey: "sk"}
			},
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.AI.Temperature = 1.5 },
			wantErr: "ai.temperature",
		},
		{
			name:    "rpc url without contract",
			mutate:  func(c *Config) { c.Chain.RPCURL = "http://localhost:8545" },
			wantErr: "chain.contract_address",
		},
		{
			name:    "floor above ceiling",
			mutate:  func(c *Config) { c.Pricing.FloorUSD = 100 },
			wantErr: "pricing.floor_usd",
		},
		{
			name:    "non-positive cap",
			mutate:  func(c *Config) { c.Budget.MonthlyCapUSD = 0 },
			wantErr: "budget.monthly_cap_usd",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runtime.Kind = "hybrid"
	cfg.Budget.MonthlyCapUSD = -1

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime.kind")
	assert.Contains(t, err.Error(), "budget.monthly_cap_usd")
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mixcue.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.DataDir = dir
	require.NoError(t, loader.Save(cfg))

	reloaded := make(chan *Config, 1)
	watcher, err := NewWatcher(loader, zerolog.Nop(), func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, err)
	defer watcher.Stop()

	cfg.Budget.MonthlyCapUSD = 3.00
	require.NoError(t, loader.Save(cfg))

	select {
	case got := <-reloaded:
		assert.Equal(t, 3.00, got.Budget.MonthlyCapUSD)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcherKeepsPreviousConfigOnInvalidEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mixcue.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.DataDir = dir
	require.NoError(t, loader.Save(cfg))

	reloaded := make(chan *Config, 1)
	watcher, err := NewWatcher(loader, zerolog.Nop(), func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`{"runtime":{"kind":"hybrid"}}`), 0644))

	select {
	case <-reloaded:
		t.Fatal("invalid config must not trigger a reload")
	case <-time.After(1500 * time.Millisecond):
	}
}
