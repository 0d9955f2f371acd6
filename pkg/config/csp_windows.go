//go:build windows

package config

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// LoadConfigFromCSP loads configuration from Windows CSP OMA-URI registry settings.
// This serves as a fallback when the Config.yaml file doesn't exist.
func LoadConfigFromCSP() (*Configuration, error) {
	cfg := GetDefaultConfig()

	key, err := registry.OpenKey(registry.LOCAL_MACHINE, CSPRegistryPath, registry.READ)
	if errors.Is(err, registry.ErrNotExist) {
		return nil, fmt.Errorf("%w at HKLM\\%s", ErrNoCSPConfig, CSPRegistryPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open CSP registry key %s: %w", CSPRegistryPath, err)
	}
	defer key.Close()

	loadStringFromRegistry(key, "Distribution", &cfg.Distribution)
	loadStringFromRegistry(key, "InstallLogPath", &cfg.InstallLogPath)
	loadStringFromRegistry(key, "FailureAction", &cfg.FailureAction)
	loadStringFromRegistry(key, "TaskName", &cfg.TaskName)
	loadStringFromRegistry(key, "StatePath", &cfg.StatePath)
	loadStringFromRegistry(key, "InstallPath", &cfg.InstallPath)
	loadStringFromRegistry(key, "LogPath", &cfg.LogPath)
	loadStringFromRegistry(key, "LogLevel", &cfg.LogLevel)
	loadStringFromRegistry(key, "PreflightFailureAction", &cfg.PreflightFailureAction)
	loadStringFromRegistry(key, "PostflightFailureAction", &cfg.PostflightFailureAction)

	loadIntFromRegistry(key, "DefaultWSLVersion", &cfg.DefaultWSLVersion)
	loadIntFromRegistry(key, "RestartDelaySeconds", &cfg.RestartDelaySeconds)

	loadBoolFromRegistry(key, "RestartNotice", &cfg.RestartNotice)
	loadBoolFromRegistry(key, "UseStateFile", &cfg.UseStateFile)
	loadBoolFromRegistry(key, "Verbose", &cfg.Verbose)
	loadBoolFromRegistry(key, "Debug", &cfg.Debug)
	loadBoolFromRegistry(key, "NoPreflight", &cfg.NoPreflight)
	loadBoolFromRegistry(key, "EventLog", &cfg.EventLog)

	loadStringArrayFromRegistry(key, "Apps", &cfg.Apps)

	var features []string
	loadStringArrayFromRegistry(key, "Features", &features)
	if len(features) > 0 {
		cfg.Features = cfg.Features[:0]
		for _, name := range features {
			cfg.Features = append(cfg.Features, Feature{Name: name, Label: name})
		}
	}

	cfg.Source = `HKLM\` + CSPRegistryPath
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid CSP configuration: %w", err)
	}
	return cfg, nil
}

// loadStringFromRegistry loads a string value from registry if it exists.
func loadStringFromRegistry(key registry.Key, valueName string, target *string) {
	if val, _, err := key.GetStringValue(valueName); err == nil && val != "" {
		*target = val
		log.Printf("CSP: Loaded %s = %s", valueName, val)
	}
}

// loadBoolFromRegistry accepts "true"/"false", "1"/"0" or a DWORD.
func loadBoolFromRegistry(key registry.Key, valueName string, target *bool) {
	if val, _, err := key.GetStringValue(valueName); err == nil {
		if parsed, parseErr := strconv.ParseBool(val); parseErr == nil {
			*target = parsed
			log.Printf("CSP: Loaded %s = %t", valueName, parsed)
			return
		}
	}
	if val, _, err := key.GetIntegerValue(valueName); err == nil {
		*target = val != 0
		log.Printf("CSP: Loaded %s = %t", valueName, val != 0)
	}
}

func loadIntFromRegistry(key registry.Key, valueName string, target *int) {
	if val, _, err := key.GetStringValue(valueName); err == nil {
		if parsed, parseErr := strconv.Atoi(val); parseErr == nil {
			*target = parsed
			log.Printf("CSP: Loaded %s = %d", valueName, parsed)
			return
		}
	}
	if val, _, err := key.GetIntegerValue(valueName); err == nil {
		*target = int(val)
		log.Printf("CSP: Loaded %s = %d", valueName, int(val))
	}
}

// loadStringArrayFromRegistry reads REG_MULTI_SZ or a comma-separated string.
func loadStringArrayFromRegistry(key registry.Key, valueName string, target *[]string) {
	if vals, _, err := key.GetStringsValue(valueName); err == nil && len(vals) > 0 {
		if filtered := SplitList(strings.Join(vals, ",")); len(filtered) > 0 {
			*target = filtered
			log.Printf("CSP: Loaded %s = %v", valueName, filtered)
			return
		}
	}
	if val, _, err := key.GetStringValue(valueName); err == nil && val != "" {
		if filtered := SplitList(val); len(filtered) > 0 {
			*target = filtered
			log.Printf("CSP: Loaded %s = %v", valueName, filtered)
		}
	}
}
