// pkg/blocking/blocking.go - processes that must not run alongside a provisioning run.

package blocking

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/windowsadmins/wslbootstrap/pkg/logging"
)

// OtherInstances returns the PIDs of other processes running exe. exe may be
// a full path, an executable name, or a name without ".exe".
func OtherInstances(exe string) ([]int32, error) {
	return matching(exe, int32(os.Getpid()))
}

// ErrAlreadyRunning is wrapped by CheckSingleInstance.
var ErrAlreadyRunning = errors.New("another instance is already running")

// CheckSingleInstance fails when exe is already running in another process.
func CheckSingleInstance(exe string) error {
	pids, err := OtherInstances(exe)
	if err != nil {
		logging.Warn("Could not check for other instances", "error", err)
		return nil
	}
	if len(pids) > 0 {
		return fmt.Errorf("%w (pid %v)", ErrAlreadyRunning, pids)
	}
	return nil
}

func matching(appName string, skipPID int32) ([]int32, error) {
	logging.Debug("Checking if application is running", "app", appName)

	processes, err := process.Processes()
	if err != nil {
		return nil, err
	}

	clean := strings.ToLower(appName)
	byPath := filepath.IsAbs(appName) || strings.HasPrefix(clean, `c:\`)

	var pids []int32
	for _, proc := range processes {
		if proc.Pid == skipPID {
			continue
		}
		if byPath {
			exe, err := proc.Exe()
			if err == nil && strings.EqualFold(filepath.Clean(exe), filepath.Clean(appName)) {
				pids = append(pids, proc.Pid)
			}
			continue
		}

		name, err := proc.Name()
		if err != nil {
			continue
		}
		name = strings.ToLower(name)
		if name == clean || name == clean+".exe" {
			pids = append(pids, proc.Pid)
		}
	}
	if len(pids) > 0 {
		logging.Debug("Found running application", "app", appName, "pids", pids)
	}
	return pids, nil
}
