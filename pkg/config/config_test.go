package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadFromFileKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
Distribution: Ubuntu
Apps:
  - Git.Git
  - Neovim.Neovim
FailureAction: Abort
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Ubuntu", cfg.Distribution)
	assert.Equal(t, []string{"Git.Git", "Neovim.Neovim"}, cfg.Apps)
	assert.Equal(t, ActionAbort, cfg.FailureAction)
	assert.Equal(t, 2, cfg.DefaultWSLVersion)
	assert.Equal(t, "ResumeWSLSetupTask", cfg.TaskName)
	assert.Len(t, cfg.Features, 3)
	assert.Equal(t, path, cfg.Source)
}

func TestLoadFromFileRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"wsl version", "DefaultWSLVersion: 3\n", "DefaultWSLVersion"},
		{"failure action", "FailureAction: retry\n", "FailureAction"},
		{"feature name", "Features:\n  - Name: \"bad'name\"\n", "invalid feature name"},
		{"empty features", "Features: []\n", "Features must not be empty"},
		{"task name", "TaskName: 'a\\b'\n", "invalid TaskName"},
		{"negative delay", "RestartDelaySeconds: -5\n", "RestartDelaySeconds"},
		{"script action", "PostflightFailureAction: explode\n", "PostflightFailureAction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromFileMalformedYAML(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, "Apps: [unterminated\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestLoadConfigExplicitMissingPath(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func stubDefaultSources(t *testing.T, csp func() (*Configuration, error)) {
	t.Helper()
	prevPath, prevCSP := defaultConfigPath, loadCSP
	defaultConfigPath = filepath.Join(t.TempDir(), "Config.yaml")
	loadCSP = csp
	t.Cleanup(func() { defaultConfigPath, loadCSP = prevPath, prevCSP })
}

func TestLoadConfigNoCSPUsesDefaults(t *testing.T) {
	stubDefaultSources(t, func() (*Configuration, error) {
		return nil, fmt.Errorf("%w at HKLM\\%s", ErrNoCSPConfig, CSPRegistryPath)
	})
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "defaults", cfg.Source)
}

func TestLoadConfigInvalidCSPIsError(t *testing.T) {
	invalid := errors.New(`invalid CSP configuration: FailureAction "explode" is not one of continue, warn, abort`)
	stubDefaultSources(t, func() (*Configuration, error) { return nil, invalid })
	cfg, err := LoadConfig("")
	require.ErrorIs(t, err, invalid)
	assert.Nil(t, cfg)
}

func TestLoadConfigFromCSPSource(t *testing.T) {
	stubDefaultSources(t, func() (*Configuration, error) {
		cfg := GetDefaultConfig()
		cfg.Source = `HKLM\` + CSPRegistryPath
		return cfg, nil
	})
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, `HKLM\`+CSPRegistryPath, cfg.Source)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "Config.yaml")
	cfg := GetDefaultConfig()
	cfg.Apps = []string{"Git.Git"}
	cfg.DryRun = true

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Git.Git"}, loaded.Apps)
	assert.False(t, loaded.DryRun, "command-line only fields are not persisted")
}

func TestDefaultInstallLogPath(t *testing.T) {
	t.Setenv("USERPROFILE", filepath.Join("C:", "Users", "dev"))
	assert.Equal(t, filepath.Join("C:", "Users", "dev", "Desktop", "winget_install_log.txt"), DefaultInstallLogPath())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"Git.Git", "7zip.7zip"}, SplitList(" Git.Git, ,7zip.7zip,"))
	assert.Empty(t, SplitList(""))
}
