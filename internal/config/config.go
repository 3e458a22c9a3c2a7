package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/tron-run/tron/internal/guardrail"
)

// StorageConfig configures the embedded sqlite pool (internal/storage).
type StorageConfig struct {
	Path          string `json:"path"`
	MaxOpenConns  int    `json:"maxOpenConns"`
	BusyTimeoutMS int    `json:"busyTimeoutMs"`
}

// BroadcastConfig configures the event fan-out hub (internal/broadcast).
type BroadcastConfig struct {
	QueueSize int `json:"queueSize"`
}

// GuardrailConfig points at an optional override file disabling
// non-core rules (internal/guardrail).
type GuardrailConfig struct {
	OverridePath string `json:"overridePath"`
}

// ProviderConfig names the driver/model pair sessions default to when a
// caller doesn't specify one (session.create's fallback, spec §6.4).
type ProviderConfig struct {
	DefaultModel string `json:"defaultModel"`
}

// ServerConfig configures the RPC HTTP listener (internal/rpc).
type ServerConfig struct {
	Port      int    `json:"port"`
	Directory string `json:"directory"`
}

// Config is the merged configuration tron-server boots from.
type Config struct {
	Storage   StorageConfig   `json:"storage"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Guardrail GuardrailConfig `json:"guardrail"`
	Provider  ProviderConfig  `json:"provider"`
	Server    ServerConfig    `json:"server"`
}

// Default returns the configuration a process boots with before any
// file or environment override is applied.
func Default() *Config {
	paths := GetPaths()
	return &Config{
		Storage: StorageConfig{
			Path:          paths.StoragePath(),
			MaxOpenConns:  8,
			BusyTimeoutMS: 2000,
		},
		Broadcast: BroadcastConfig{QueueSize: 256},
		Guardrail: GuardrailConfig{OverridePath: paths.GuardrailOverridePath()},
		Provider:  ProviderConfig{DefaultModel: ""},
		Server:    ServerConfig{Port: 8080},
	}
}

// Load resolves configuration from, in priority order: built-in
// defaults, the global config file (~/.config/tron/tron.jsonc), a
// project-local config file (<directory>/.tron/tron.jsonc), a .env file
// in directory, and environment variables. Later sources win.
func Load(directory string) (*Config, error) {
	cfg := Default()

	loadJSONCFile(GlobalConfigPath(), cfg)
	if directory != "" {
		loadJSONCFile(ProjectConfigPath(directory), cfg)
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}
	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadJSONCFile merges path's JSONC content into cfg, silently skipping
// a missing file the way the teacher's loadConfigFile does.
func loadJSONCFile(path string, cfg *Config) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	data = jsonc.ToJSON(data)

	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return
	}
	mergeConfig(cfg, &fileCfg)
}

// mergeConfig overlays source's non-zero scalar fields onto target.
func mergeConfig(target, source *Config) {
	if source.Storage.Path != "" {
		target.Storage.Path = source.Storage.Path
	}
	if source.Storage.MaxOpenConns != 0 {
		target.Storage.MaxOpenConns = source.Storage.MaxOpenConns
	}
	if source.Storage.BusyTimeoutMS != 0 {
		target.Storage.BusyTimeoutMS = source.Storage.BusyTimeoutMS
	}
	if source.Broadcast.QueueSize != 0 {
		target.Broadcast.QueueSize = source.Broadcast.QueueSize
	}
	if source.Guardrail.OverridePath != "" {
		target.Guardrail.OverridePath = source.Guardrail.OverridePath
	}
	if source.Provider.DefaultModel != "" {
		target.Provider.DefaultModel = source.Provider.DefaultModel
	}
	if source.Server.Port != 0 {
		target.Server.Port = source.Server.Port
	}
	if source.Server.Directory != "" {
		target.Server.Directory = source.Server.Directory
	}
}

// applyEnvOverrides gives environment variables the final say, matching
// the teacher's OPENCODE_MODEL-style overrides under the TRON_ prefix.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRON_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("TRON_GUARDRAIL_OVERRIDES"); v != "" {
		cfg.Guardrail.OverridePath = v
	}
	if v := os.Getenv("TRON_DEFAULT_MODEL"); v != "" {
		cfg.Provider.DefaultModel = v
	}
	if v := os.Getenv("TRON_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
}

// Save writes cfg as indented JSON to path, creating parent directories
// as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// guardrailOverrides is the YAML shape of a guardrail override file: a
// flat list of non-core rule IDs to disable.
type guardrailOverrides struct {
	Disabled []string `yaml:"disabled"`
}

// ApplyGuardrailOverrides reads path (if present) and disables every
// listed rule ID on engine. A missing file is not an error: most
// deployments run with the built-in rule set unmodified.
func ApplyGuardrailOverrides(engine *guardrail.Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read guardrail overrides: %w", err)
	}

	var overrides guardrailOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse guardrail overrides %s: %w", path, err)
	}
	for _, ruleID := range overrides.Disabled {
		engine.SetDisabled(ruleID, true)
	}
	return nil
}
