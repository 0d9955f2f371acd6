//go:build !windows

package preflight

import (
	"context"
	"errors"
)

var errUnsupportedPlatform = errors.New("this tool only runs on Windows")

type unsupportedProbe struct{}

// NewSystemProbe returns a Probe that fails every check.
func NewSystemProbe() Probe {
	return unsupportedProbe{}
}

func (unsupportedProbe) IsAdmin() (bool, error) { return false, errUnsupportedPlatform }

func (unsupportedProbe) OSVersion(context.Context) (OSVersion, error) {
	return OSVersion{}, errUnsupportedPlatform
}
