//go:build windows

package preflight

import (
	"context"
	"fmt"

	"github.com/yusufpapurcu/wmi"
	"golang.org/x/sys/windows"
)

// Win32_OperatingSystem holds the WMI fields the guard needs.
type Win32_OperatingSystem struct {
	Caption     string
	Version     string
	BuildNumber string
}

// SystemProbe reads the process token and WMI.
type SystemProbe struct{}

// NewSystemProbe returns the Windows Probe.
func NewSystemProbe() Probe {
	return SystemProbe{}
}

// IsAdmin checks the process token for BUILTIN\Administrators membership.
func (SystemProbe) IsAdmin() (bool, error) {
	var adminSid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&adminSid)
	if err != nil {
		return false, err
	}
	defer windows.FreeSid(adminSid)
	token := windows.Token(0)
	return token.IsMember(adminSid)
}

// OSVersion queries Win32_OperatingSystem.
func (SystemProbe) OSVersion(ctx context.Context) (OSVersion, error) {
	var systems []Win32_OperatingSystem
	if err := wmi.Query("SELECT Caption, Version, BuildNumber FROM Win32_OperatingSystem", &systems); err != nil {
		return OSVersion{}, err
	}
	if len(systems) == 0 {
		return OSVersion{}, fmt.Errorf("no operating system information available")
	}
	v, err := ParseOSVersion(systems[0].Version, systems[0].BuildNumber)
	v.Caption = systems[0].Caption
	return v, err
}
