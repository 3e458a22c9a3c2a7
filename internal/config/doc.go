// Package config loads and merges the settings tron-server boots from:
// storage location and pool tuning, the broadcast hub's queue depth, an
// optional guardrail rule override file, the default provider/model, and
// the RPC listener's port.
//
// # Loading Order
//
// Load resolves configuration from, in priority order (later wins):
//
//  1. Built-in defaults (Default)
//  2. Global config: ~/.config/tron/tron.jsonc
//  3. Project config: <directory>/.tron/tron.jsonc
//  4. A .env file in <directory>, loaded via github.com/joho/godotenv
//  5. Environment variables (TRON_STORAGE_PATH, TRON_GUARDRAIL_OVERRIDES,
//     TRON_DEFAULT_MODEL, TRON_PORT)
//
// Config files are JSONC (JSON with // and /* */ comments stripped via
// github.com/tidwall/jsonc before unmarshaling).
//
// # Guardrail Overrides
//
// GuardrailConfig.OverridePath names a YAML file (gopkg.in/yaml.v3) of the
// shape:
//
//	disabled:
//	  - some-non-core-rule-id
//
// ApplyGuardrailOverrides reads it and disables each named rule on a
// *guardrail.Engine; naming a TierCore rule here is a no-op, since core
// rules are never eligible for override at the rule-definition level.
//
// # Path Management
//
// Paths follows the XDG Base Directory Specification:
//   - Data: ~/.local/share/tron (XDG_DATA_HOME)
//   - Config: ~/.config/tron (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/tron (XDG_CACHE_HOME)
//   - State: ~/.local/state/tron (XDG_STATE_HOME)
package config
