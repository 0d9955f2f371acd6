// pkg/config/config.go - configuration settings for WSLBootstrap.

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const ConfigPath = `C:\ProgramData\WSLBootstrap\Config.yaml`

// CSP OMA-URI registry path for enterprise policy configuration
const CSPRegistryPath = `SOFTWARE\WSLBootstrap\Config`

// Failure actions for installs and pre/postflight scripts.
const (
	ActionContinue = "continue"
	ActionWarn     = "warn"
	ActionAbort    = "abort"
)

// Feature is one Windows optional feature to enable.
type Feature struct {
	Name  string `yaml:"Name"`
	Label string `yaml:"Label"`
}

// Configuration holds the configurable options for WSLBootstrap in YAML format
type Configuration struct {
	Features          []Feature `yaml:"Features"`
	Distribution      string    `yaml:"Distribution"`
	DefaultWSLVersion int       `yaml:"DefaultWSLVersion"`
	Apps              []string  `yaml:"Apps"`

	InstallLogPath string `yaml:"InstallLogPath"` // winget output, defaults to the user's Desktop
	FailureAction  string `yaml:"FailureAction"`  // "continue" or "abort" for app installs

	TaskName            string `yaml:"TaskName"`
	RestartDelaySeconds int    `yaml:"RestartDelaySeconds"`
	RestartNotice       bool   `yaml:"RestartNotice"` // show a dialog before restarting

	StatePath    string `yaml:"StatePath"`
	UseStateFile bool   `yaml:"UseStateFile"`

	InstallPath             string `yaml:"InstallPath"`
	LogPath                 string `yaml:"LogPath"`
	LogLevel                string `yaml:"LogLevel"`
	Verbose                 bool   `yaml:"Verbose"`
	Debug                   bool   `yaml:"Debug"`
	NoPreflight             bool   `yaml:"NoPreflight"`
	PreflightFailureAction  string `yaml:"PreflightFailureAction"`
	PostflightFailureAction string `yaml:"PostflightFailureAction"`
	EventLog                bool   `yaml:"EventLog"`

	// Set from the command line only.
	DryRun         bool   `yaml:"-"`
	NonInteractive bool   `yaml:"-"`
	Source         string `yaml:"-"`
}

// ErrNoCSPConfig is returned by LoadConfigFromCSP when no CSP registry
// settings are present.
var ErrNoCSPConfig = errors.New("no CSP registry settings")

// Replaced in tests.
var (
	defaultConfigPath = ConfigPath
	loadCSP           = LoadConfigFromCSP
)

// LoadConfig loads the configuration from path, or ConfigPath when path is empty.
// A missing default file falls back to CSP registry settings and then to defaults.
// CSP settings that are present but invalid are an error, as is a missing
// explicit path.
func LoadConfig(path string) (*Configuration, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if explicit {
			return nil, fmt.Errorf("configuration file does not exist: %s", path)
		}
		log.Printf("Configuration file does not exist: %s", path)

		cfg, cspErr := loadCSP()
		if cspErr == nil {
			log.Printf("Loaded configuration from CSP OMA-URI registry settings")
			return cfg, nil
		}
		if !errors.Is(cspErr, ErrNoCSPConfig) {
			return nil, cspErr
		}
		log.Printf("No CSP registry settings found, using built-in defaults")

		cfg = GetDefaultConfig()
		cfg.Source = "defaults"
		return cfg, nil
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		log.Printf("Failed to load configuration file: %v", err)
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML file over the defaults.
// Keys missing from the file keep their default values.
func LoadFromFile(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Source = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to path as YAML.
func SaveConfig(cfg *Configuration, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serializing configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating configuration directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// GetDefaultConfig provides default configuration values.
func GetDefaultConfig() *Configuration {
	// Use ProgramW6432 environment variable to force 64-bit Program Files path
	programFiles := os.Getenv("ProgramW6432")
	if programFiles == "" {
		programFiles = `C:\Program Files`
	}
	return &Configuration{
		Features: []Feature{
			{Name: "Microsoft-Hyper-V-All", Label: "Hyper-V"},
			{Name: "Microsoft-Windows-Subsystem-Linux", Label: "Windows Subsystem for Linux"},
			{Name: "VirtualMachinePlatform", Label: "Virtual Machine Platform"},
		},
		Distribution:      "Debian",
		DefaultWSLVersion: 2,
		Apps: []string{
			"Git.Git",
			"Microsoft.VisualStudioCode",
			"Microsoft.WindowsTerminal",
			"Microsoft.PowerShell",
			"Docker.DockerDesktop",
			"Python.Python.3.12",
			"OpenJS.NodeJS.LTS",
			"GoLang.Go",
			"7zip.7zip",
			"Mozilla.Firefox",
		},
		InstallLogPath:          DefaultInstallLogPath(),
		FailureAction:           ActionContinue,
		TaskName:                "ResumeWSLSetupTask",
		RestartDelaySeconds:     15,
		StatePath:               `C:\ProgramData\WSLBootstrap\state.yaml`,
		UseStateFile:            true,
		InstallPath:             filepath.Join(programFiles, "WSLBootstrap"),
		LogPath:                 `C:\ProgramData\WSLBootstrap\logs`,
		LogLevel:                "INFO",
		PreflightFailureAction:  ActionContinue,
		PostflightFailureAction: ActionContinue,
		EventLog:                true,
	}
}

// DefaultInstallLogPath returns <USERPROFILE>\Desktop\winget_install_log.txt.
func DefaultInstallLogPath() string {
	profile := os.Getenv("USERPROFILE")
	if profile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			profile = home
		}
	}
	return filepath.Join(profile, "Desktop", "winget_install_log.txt")
}

// applyDefaults fills zero values that YAML may have cleared.
func (c *Configuration) applyDefaults() {
	d := GetDefaultConfig()
	if c.Distribution == "" {
		c.Distribution = d.Distribution
	}
	if c.DefaultWSLVersion == 0 {
		c.DefaultWSLVersion = d.DefaultWSLVersion
	}
	if c.InstallLogPath == "" {
		c.InstallLogPath = d.InstallLogPath
	}
	if c.FailureAction == "" {
		c.FailureAction = d.FailureAction
	}
	if c.TaskName == "" {
		c.TaskName = d.TaskName
	}
	if c.StatePath == "" {
		c.StatePath = d.StatePath
	}
	if c.LogPath == "" {
		c.LogPath = d.LogPath
	}
	if c.InstallPath == "" {
		c.InstallPath = d.InstallPath
	}
	if c.PreflightFailureAction == "" {
		c.PreflightFailureAction = ActionContinue
	}
	if c.PostflightFailureAction == "" {
		c.PostflightFailureAction = ActionContinue
	}
	c.FailureAction = strings.ToLower(c.FailureAction)
	c.PreflightFailureAction = strings.ToLower(c.PreflightFailureAction)
	c.PostflightFailureAction = strings.ToLower(c.PostflightFailureAction)
}

// Validate reports configuration values the workflow cannot run with.
func (c *Configuration) Validate() error {
	var problems []string

	if len(c.Features) == 0 {
		problems = append(problems, "Features must not be empty")
	}
	for _, f := range c.Features {
		if f.Name == "" || strings.ContainsAny(f.Name, `'"\`) {
			problems = append(problems, fmt.Sprintf("invalid feature name %q", f.Name))
		}
	}
	if c.DefaultWSLVersion != 1 && c.DefaultWSLVersion != 2 {
		problems = append(problems, fmt.Sprintf("DefaultWSLVersion must be 1 or 2, got %d", c.DefaultWSLVersion))
	}
	if c.RestartDelaySeconds < 0 {
		problems = append(problems, "RestartDelaySeconds must not be negative")
	}
	if c.FailureAction != ActionContinue && c.FailureAction != ActionAbort {
		problems = append(problems, fmt.Sprintf("FailureAction must be %q or %q, got %q", ActionContinue, ActionAbort, c.FailureAction))
	}
	for name, action := range map[string]string{
		"PreflightFailureAction":  c.PreflightFailureAction,
		"PostflightFailureAction": c.PostflightFailureAction,
	} {
		switch action {
		case ActionContinue, ActionWarn, ActionAbort:
		default:
			problems = append(problems, fmt.Sprintf("%s must be continue, warn or abort, got %q", name, action))
		}
	}
	if strings.ContainsAny(c.TaskName, `\/"`) || c.TaskName == "" {
		problems = append(problems, fmt.Sprintf("invalid TaskName %q", c.TaskName))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
