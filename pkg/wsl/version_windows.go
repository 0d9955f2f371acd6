//go:build windows

package wsl

import (
	"context"
	"errors"

	"golang.org/x/sys/windows/registry"
)

const lxssKey = `Software\Microsoft\Windows\CurrentVersion\Lxss`

// DefaultVersion reads the Lxss DefaultVersion value. WSL treats a missing
// value as version 1.
func (c *CLI) DefaultVersion(ctx context.Context) (int, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, lxssKey, registry.QUERY_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	defer k.Close()

	v, _, err := k.GetIntegerValue("DefaultVersion")
	if errors.Is(err, registry.ErrNotExist) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
