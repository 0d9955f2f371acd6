//go:build !windows

package wsl

import (
	"context"
	"errors"
)

// DefaultVersion is only readable from the Windows registry.
func (c *CLI) DefaultVersion(ctx context.Context) (int, error) {
	return 0, errors.New("WSL default version is only available on Windows")
}
