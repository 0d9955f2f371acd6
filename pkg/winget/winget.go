// pkg/winget/winget.go - installing the application catalog through winget.

package winget

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/windowsadmins/wslbootstrap/pkg/command"
	"github.com/windowsadmins/wslbootstrap/pkg/logging"
)

// ErrPackageManagerNotFound is returned when winget.exe is not on PATH.
var ErrPackageManagerNotFound = errors.New("winget.exe not found; install App Installer from the Microsoft Store")

// Entry is one catalog item.
type Entry struct {
	PackageID string
}

// DefaultCatalog returns the default applications in install order.
func DefaultCatalog() []Entry {
	return Entries([]string{
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
	})
}

// Entries converts package identifiers to catalog entries.
func Entries(ids []string) []Entry {
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, Entry{PackageID: id})
	}
	return out
}

// FailurePolicy controls what a failed install does to the rest of the batch.
type FailurePolicy int

const (
	ContinueOnError FailurePolicy = iota
	AbortOnError
)

// ParsePolicy maps the FailureAction config value.
func ParsePolicy(s string) FailurePolicy {
	if s == "abort" {
		return AbortOnError
	}
	return ContinueOnError
}

// PackageManager installs packages by identifier.
type PackageManager interface {
	// Locate fails with ErrPackageManagerNotFound when the tool is missing.
	Locate() (string, error)
	// Install returns the combined output and exit code. err is only set
	// when the tool could not be run at all.
	Install(ctx context.Context, packageID string) (output []byte, exitCode int, err error)
}

// CLI runs winget.exe.
type CLI struct {
	runner command.Runner
	path   string
}

// NewCLI returns a PackageManager backed by winget.exe.
func NewCLI(runner command.Runner) *CLI {
	return &CLI{runner: runner}
}

// Locate resolves winget.exe on PATH.
func (c *CLI) Locate() (string, error) {
	p, err := c.runner.LookPath("winget.exe")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPackageManagerNotFound, err)
	}
	c.path = p
	return p, nil
}

// InstallArgs returns the winget arguments for an unattended install of id.
func InstallArgs(id string) []string {
	return []string{
		"install", "--id", id, "--exact", "--silent",
		"--accept-source-agreements", "--accept-package-agreements",
		"--disable-interactivity",
	}
}

// Install runs winget for one package.
func (c *CLI) Install(ctx context.Context, packageID string) ([]byte, int, error) {
	exe := c.path
	if exe == "" {
		exe = "winget.exe"
	}
	res, err := c.runner.Run(ctx, exe, InstallArgs(packageID)...)
	if err != nil {
		if code, ok := command.ExitCode(err); ok {
			return res.Output, code, nil
		}
		return res.Output, res.ExitCode, err
	}
	return res.Output, 0, nil
}

// Result is the outcome of one catalog entry.
type Result struct {
	PackageID string
	ExitCode  int
	Succeeded bool
	Duration  time.Duration
	Err       error
}

// Report summarizes a catalog run.
type Report struct {
	Results   []Result
	Succeeded int
	Failed    int
	LogPath   string
	Aborted   bool
}

// FailedIDs lists the package identifiers that did not install.
func (r *Report) FailedIDs() []string {
	var ids []string
	for _, res := range r.Results {
		if !res.Succeeded {
			ids = append(ids, res.PackageID)
		}
	}
	return ids
}

// Installer runs the catalog through a PackageManager.
type Installer struct {
	pm     PackageManager
	policy FailurePolicy
	now    func() time.Time
	DryRun bool
}

// NewInstaller returns an Installer applying policy to failures.
func NewInstaller(pm PackageManager, policy FailurePolicy) *Installer {
	return &Installer{pm: pm, policy: policy, now: time.Now}
}

// InstallAll installs entries in order and appends each tool's output to
// logPath. The package manager is located before the log is created, so a
// missing tool leaves no log behind.
func (in *Installer) InstallAll(ctx context.Context, entries []Entry, logPath string) (*Report, error) {
	exe, err := in.pm.Locate()
	if err != nil {
		return nil, err
	}
	logging.Debug("Using package manager", "path", exe)

	report := &Report{LogPath: logPath}
	if in.DryRun {
		for _, e := range entries {
			logging.Info("Dry run, would install", "package", e.PackageID)
		}
		return report, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("creating install log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating install log: %w", err)
	}
	defer logFile.Close()

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		logging.Info("Installing application", "package", e.PackageID, "index", i+1, "total", len(entries))
		logging.LogInstallStart(e.PackageID)

		start := in.now()
		out, code, runErr := in.pm.Install(ctx, e.PackageID)
		res := Result{PackageID: e.PackageID, ExitCode: code, Duration: in.now().Sub(start), Err: runErr}
		res.Succeeded = runErr == nil && code == 0

		if err := writeBlock(logFile, e.PackageID, out, code, runErr); err != nil {
			logging.Warn("Failed to append to install log", "path", logPath, "error", err)
		}

		report.Results = append(report.Results, res)
		if res.Succeeded {
			report.Succeeded++
			logging.LogInstallComplete(e.PackageID, res.Duration)
			continue
		}

		report.Failed++
		failErr := runErr
		if failErr == nil {
			failErr = fmt.Errorf("winget exited with code %d", code)
		}
		logging.Error("Application install failed", "package", e.PackageID, "exit_code", code, "error", failErr)
		logging.LogInstallFailed(e.PackageID, code, res.Duration, failErr)

		if in.policy == AbortOnError {
			report.Aborted = true
			logging.Warn("Stopping application installs after failure", "package", e.PackageID, "remaining", len(entries)-i-1)
			break
		}
	}

	logging.Info("Application installs finished", "succeeded", report.Succeeded, "failed", report.Failed, "log", logPath)
	return report, nil
}

func writeBlock(f *os.File, id string, out []byte, code int, runErr error) error {
	if _, err := fmt.Fprintf(f, "==== Installing %s ====\r\n", id); err != nil {
		return err
	}
	if len(out) > 0 {
		if _, err := f.Write(out); err != nil {
			return err
		}
		if out[len(out)-1] != '\n' {
			if _, err := f.WriteString("\r\n"); err != nil {
				return err
			}
		}
	}
	if runErr != nil {
		if _, err := fmt.Fprintf(f, "Error: %v\r\n", runErr); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(f, "Exit code: %d\r\n\r\n", code)
	return err
}
