package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tron-run/tron/internal/guardrail"
)

func withIsolatedHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldHome := os.Getenv("HOME")
	oldXDGConfig := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("HOME", tmpDir)
	os.Unsetenv("XDG_CONFIG_HOME")
	t.Cleanup(func() {
		os.Setenv("HOME", oldHome)
		if oldXDGConfig != "" {
			os.Setenv("XDG_CONFIG_HOME", oldXDGConfig)
		}
	})
	return tmpDir
}

func TestDefault_PopulatesStoragePathUnderDataHome(t *testing.T) {
	withIsolatedHome(t)
	cfg := Default()
	assert.NotEmpty(t, cfg.Storage.Path)
	assert.Equal(t, 8, cfg.Storage.MaxOpenConns)
	assert.Equal(t, 2000, cfg.Storage.BusyTimeoutMS)
	assert.Equal(t, 256, cfg.Broadcast.QueueSize)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_MergesProjectConfigOverDefaults(t *testing.T) {
	withIsolatedHome(t)
	projectDir := t.TempDir()

	configJSON := `{
		// project overrides
		"storage": { "path": "/tmp/project.db", "maxOpenConns": 4 },
		"provider": { "defaultModel": "anthropic/claude-3-5-sonnet" },
		"server": { "port": 9090 }
	}`
	configPath := ProjectConfigPath(projectDir)
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(configJSON), 0644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/project.db", cfg.Storage.Path)
	assert.Equal(t, 4, cfg.Storage.MaxOpenConns)
	assert.Equal(t, "anthropic/claude-3-5-sonnet", cfg.Provider.DefaultModel)
	assert.Equal(t, 9090, cfg.Server.Port)
	// BusyTimeoutMS wasn't overridden; the default should survive the merge.
	assert.Equal(t, 2000, cfg.Storage.BusyTimeoutMS)
}

func TestLoad_EnvironmentOverridesFileConfig(t *testing.T) {
	withIsolatedHome(t)
	projectDir := t.TempDir()

	configPath := ProjectConfigPath(projectDir)
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(`{"provider": {"defaultModel": "file/model"}}`), 0644))

	os.Setenv("TRON_DEFAULT_MODEL", "env/model")
	os.Setenv("TRON_PORT", "7070")
	defer os.Unsetenv("TRON_DEFAULT_MODEL")
	defer os.Unsetenv("TRON_PORT")

	cfg, err := Load(projectDir)
	require.NoError(t, err)

	assert.Equal(t, "env/model", cfg.Provider.DefaultModel)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_MissingConfigFilesFallsBackToDefaults(t *testing.T) {
	withIsolatedHome(t)
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestSaveThenLoad_RoundTripsStorageConfig(t *testing.T) {
	withIsolatedHome(t)
	projectDir := t.TempDir()
	cfg := Default()
	cfg.Storage.Path = "/tmp/saved.db"

	path := ProjectConfigPath(projectDir)
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(projectDir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/saved.db", loaded.Storage.Path)
}

func TestApplyGuardrailOverrides_MissingFileIsNotAnError(t *testing.T) {
	engine := guardrail.NewEngine()
	err := ApplyGuardrailOverrides(engine, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)
}

func TestApplyGuardrailOverrides_DisablesNamedRules(t *testing.T) {
	engine := guardrail.NewEngine()
	require.NoError(t, guardrail.RegisterCoreRules(engine))
	require.NoError(t, engine.Register(&guardrail.Rule{
		ID:       "custom-test-rule",
		Tier:     guardrail.TierCustom,
		Severity: guardrail.SeverityWarn,
		Priority: 1,
		Kind:     guardrail.KindContext,
		ContextPredicate: func(ctx guardrail.EvalContext) (bool, string) {
			return false, ""
		},
	}))

	dir := t.TempDir()
	overridesPath := filepath.Join(dir, "guardrails.yaml")
	require.NoError(t, os.WriteFile(overridesPath, []byte("disabled:\n  - custom-test-rule\n"), 0644))

	require.NoError(t, ApplyGuardrailOverrides(engine, overridesPath))
}

func TestPaths_DeriveFromXDGEnvironment(t *testing.T) {
	tmpDir := t.TempDir()
	oldXDGData := os.Getenv("XDG_DATA_HOME")
	os.Setenv("XDG_DATA_HOME", tmpDir)
	defer os.Setenv("XDG_DATA_HOME", oldXDGData)

	paths := GetPaths()
	assert.Equal(t, filepath.Join(tmpDir, "tron"), paths.Data)
	assert.Equal(t, filepath.Join(tmpDir, "tron", "tron.db"), paths.StoragePath())
}
