//go:build !windows

package config

// LoadConfigFromCSP is only available on Windows; elsewhere there are never
// CSP settings to load.
func LoadConfigFromCSP() (*Configuration, error) {
	return nil, ErrNoCSPConfig
}
