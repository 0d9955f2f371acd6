package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/wslbootstrap/pkg/config"
)

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"--resume", "--non-interactive", "--abort-on-error", "-vv", "--log-path", "install.txt"})
	require.NoError(t, err)
	assert.True(t, o.resume)
	assert.True(t, o.nonInteractive)
	assert.True(t, o.abortOnError)
	assert.Equal(t, 2, o.verbosity)
	assert.Equal(t, "install.txt", o.logPath)

	_, err = parseFlags([]string{"--bogus"})
	assert.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	cfg := config.GetDefaultConfig()
	applyFlags(cfg, &options{abortOnError: true, logPath: `D:\log.txt`, verbosity: 2, resume: true, dryRun: true})
	assert.Equal(t, config.ActionAbort, cfg.FailureAction)
	assert.Equal(t, `D:\log.txt`, cfg.InstallLogPath)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.True(t, cfg.NonInteractive, "task invocations never prompt")
	assert.True(t, cfg.DryRun)
	assert.NoError(t, cfg.Validate())

	cfg = config.GetDefaultConfig()
	applyFlags(cfg, &options{})
	assert.Equal(t, config.ActionContinue, cfg.FailureAction)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.False(t, cfg.NonInteractive)
}

func TestTaskArguments(t *testing.T) {
	args, err := taskArguments(&options{}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"--resume", "--non-interactive"}, args)

	args, err = taskArguments(&options{configPath: "cfg.yaml", noPreflight: true}, `C:\Users\dev\Desktop\winget_install_log.txt`)
	require.NoError(t, err)
	abs, _ := filepath.Abs("cfg.yaml")
	assert.Equal(t, []string{
		"--resume", "--non-interactive", "--config", abs, "--no-preflight",
		"--log-path", `C:\Users\dev\Desktop\winget_install_log.txt`,
	}, args)
}

func TestRunVersion(t *testing.T) {
	assert.Equal(t, 0, run([]string{"--version"}))
	assert.Equal(t, 1, run([]string{"--no-such-flag"}))
}

func TestRunWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "Config.yaml")
	require.Equal(t, 0, run([]string{"--write-config", path, "--abort-on-error", "--dry-run"}))

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.ActionAbort, cfg.FailureAction)
	assert.False(t, cfg.DryRun, "command-line only fields are not persisted")
}
