//go:build windows

package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/yusufpapurcu/wmi"

	"github.com/windowsadmins/wslbootstrap/pkg/logging"
)

// Win32_OptionalFeature is the WMI class of optional features.
type Win32_OptionalFeature struct {
	Name         string
	InstallState uint32
}

// InstallState values of Win32_OptionalFeature.
const (
	installEnabled  = 1
	installDisabled = 2
	installAbsent   = 3
)

// State queries Win32_OptionalFeature, falling back to DISM when WMI fails.
func (s *SystemQuery) State(ctx context.Context, identifier string) (State, error) {
	var rows []Win32_OptionalFeature
	q := fmt.Sprintf("SELECT Name, InstallState FROM Win32_OptionalFeature WHERE Name = '%s'",
		strings.ReplaceAll(identifier, "'", ""))
	if err := wmi.Query(q, &rows); err != nil {
		logging.Warn("WMI feature query failed, asking DISM", "feature", identifier, "error", err)
		return s.dismState(ctx, identifier)
	}
	if len(rows) == 0 {
		return StateAbsent, nil
	}
	switch rows[0].InstallState {
	case installEnabled:
		return StateEnabled, nil
	case installDisabled:
		return StateDisabled, nil
	case installAbsent:
		return StateAbsent, nil
	}
	return StateUnknown, fmt.Errorf("feature %s has unexpected install state %d", identifier, rows[0].InstallState)
}
