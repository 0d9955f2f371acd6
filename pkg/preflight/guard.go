// pkg/preflight/guard.go - environment preconditions checked before any change is made.

package preflight

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/windowsadmins/wslbootstrap/pkg/logging"
)

// Reasons a run cannot start.
const (
	ReasonNotAdmin      = "not-admin"
	ReasonUnsupportedOS = "unsupported-os"
	ReasonScriptFailed  = "script-failed"
)

// FatalError stops the run with a non-zero exit code.
type FatalError struct {
	Reason  string
	Message string
	Code    int
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FatalError) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for e.
func (e *FatalError) ExitCode() int {
	if e.Code == 0 {
		return 1
	}
	return e.Code
}

// OSVersion is the Windows version as reported by the OS.
type OSVersion struct {
	Major   int
	Minor   int
	Build   int
	Caption string
}

func (v OSVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// ParseOSVersion parses a version such as "10.0.19045". build, when set,
// overrides the third component.
func ParseOSVersion(ver, build string) (OSVersion, error) {
	var v OSVersion
	parts := strings.Split(strings.TrimSpace(ver), ".")
	nums := make([]int, 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return v, fmt.Errorf("invalid OS version %q: %w", ver, err)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Build = nums[0], nums[1], nums[2]
	if b := strings.TrimSpace(build); b != "" {
		n, err := strconv.Atoi(b)
		if err != nil {
			return v, fmt.Errorf("invalid build number %q: %w", build, err)
		}
		v.Build = n
	}
	return v, nil
}

// minimumVersion is major.build: Windows 10 build 19041 (2004) or any later major.
var minimumVersion = version.Must(version.NewVersion("10.19041"))

// Supported reports whether WSL 2 can run: major 11 or later, or major 10 with build 19041 or later.
func (v OSVersion) Supported() bool {
	cur, err := version.NewVersion(fmt.Sprintf("%d.%d", v.Major, v.Build))
	if err != nil {
		return false
	}
	return cur.GreaterThanOrEqual(minimumVersion)
}

// Probe reads the facts the guard checks.
type Probe interface {
	IsAdmin() (bool, error)
	OSVersion(ctx context.Context) (OSVersion, error)
}

// Guard verifies privileges and OS version.
type Guard struct {
	probe Probe
}

// NewGuard returns a Guard using probe.
func NewGuard(probe Probe) *Guard {
	return &Guard{probe: probe}
}

// Check returns a *FatalError when the run cannot proceed. It never retries.
func (g *Guard) Check(ctx context.Context) error {
	admin, err := g.probe.IsAdmin()
	if err != nil {
		return &FatalError{Reason: ReasonNotAdmin, Message: "could not determine administrator rights", Code: 1, Err: err}
	}
	if !admin {
		return &FatalError{Reason: ReasonNotAdmin, Message: "administrative access is required; run from an elevated prompt", Code: 1}
	}
	logging.Debug("Administrator check passed")

	v, err := g.probe.OSVersion(ctx)
	if err != nil {
		return &FatalError{Reason: ReasonUnsupportedOS, Message: "could not determine the Windows version", Code: 1, Err: err}
	}
	if !v.Supported() {
		return &FatalError{
			Reason:  ReasonUnsupportedOS,
			Message: fmt.Sprintf("Windows %s is not supported; Windows 10 build 19041 or later is required", v),
			Code:    1,
		}
	}
	logging.Info("Operating system supported", "version", v.String(), "caption", v.Caption)
	return nil
}
