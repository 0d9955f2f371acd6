// pkg/wsl/wsl.go - Windows Subsystem for Linux defaults and distribution setup.

package wsl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/windowsadmins/wslbootstrap/pkg/command"
	"github.com/windowsadmins/wslbootstrap/pkg/logging"
)

const wslExe = "wsl.exe"

// Control is the subsystem as seen by the continuation steps.
type Control interface {
	DefaultVersion(ctx context.Context) (int, error)
	SetDefaultVersion(ctx context.Context, version int) error
	Distributions(ctx context.Context) ([]string, error)
	InstallDistribution(ctx context.Context, name string) error
}

// CLI drives wsl.exe.
type CLI struct {
	runner command.Runner
}

// NewCLI returns a Control backed by wsl.exe.
func NewCLI(runner command.Runner) *CLI {
	return &CLI{runner: runner}
}

// SetDefaultVersion runs `wsl --set-default-version`.
func (c *CLI) SetDefaultVersion(ctx context.Context, version int) error {
	res, err := c.runner.Run(ctx, wslExe, "--set-default-version", strconv.Itoa(version))
	if err != nil {
		return fmt.Errorf("setting WSL default version: %w", decodeErr(err))
	}
	logging.Debug("wsl --set-default-version", "output", DecodeOutput(res.Output))
	return nil
}

// Distributions lists installed distributions. wsl.exe exits non-zero when
// none are installed, which is reported as an empty list.
func (c *CLI) Distributions(ctx context.Context) ([]string, error) {
	res, err := c.runner.Run(ctx, wslExe, "--list", "--quiet")
	if err != nil {
		if _, ok := command.ExitCode(err); ok {
			logging.Debug("wsl --list reported no distributions", "output", DecodeOutput(res.Output))
			return nil, nil
		}
		return nil, fmt.Errorf("listing WSL distributions: %w", err)
	}
	return ParseDistributions(DecodeOutput(res.Output)), nil
}

// InstallDistribution installs name without launching it.
func (c *CLI) InstallDistribution(ctx context.Context, name string) error {
	res, err := c.runner.Run(ctx, wslExe, "--install", "-d", name, "--no-launch")
	if err != nil {
		return fmt.Errorf("installing distribution %s: %w", name, decodeErr(err))
	}
	logging.Debug("wsl --install", "distribution", name, "output", DecodeOutput(res.Output))
	return nil
}

// DecodeOutput converts wsl.exe output to a string. wsl.exe writes UTF-16LE
// to pipes; anything that is not is returned as UTF-8.
func DecodeOutput(b []byte) string {
	if looksUTF16LE(b) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		if out, err := dec.Bytes(b); err == nil {
			return strings.TrimSpace(strings.ReplaceAll(string(out), "\x00", ""))
		}
	}
	if !utf8.Valid(b) {
		b = bytes.ToValidUTF8(b, nil)
	}
	return strings.TrimSpace(string(b))
}

func looksUTF16LE(b []byte) bool {
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xFE {
		return true
	}
	if len(b) < 2 {
		return false
	}
	zeros := 0
	for i := 1; i < len(b); i += 2 {
		if b[i] == 0 {
			zeros++
		}
	}
	return zeros*2 >= len(b)/2
}

// ParseDistributions splits `wsl --list --quiet` output into names.
func ParseDistributions(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		name = strings.TrimSpace(strings.TrimSuffix(name, "(Default)"))
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// decodeErr re-renders an exit error with its output decoded.
func decodeErr(err error) error {
	var exitErr *command.ExitError
	if errors.As(err, &exitErr) {
		return &command.ExitError{Name: exitErr.Name, Code: exitErr.Code, Output: DecodeOutput([]byte(exitErr.Output))}
	}
	return err
}

// Options for Continue.
type Options struct {
	DefaultVersion int
	Distribution   string
	DryRun         bool
}

// StepReport records what Continue changed.
type StepReport struct {
	VersionChanged        bool
	DistributionInstalled bool
	MutatingCalls         int
	RebootMayBeRequired   bool
}

// Continue sets the default WSL version and installs the distribution,
// skipping each step that is already satisfied. A failed version change does
// not stop the distribution step; both failures are returned joined.
func Continue(ctx context.Context, c Control, opts Options) (StepReport, error) {
	var report StepReport
	var errs []error
	if opts.DefaultVersion == 0 {
		opts.DefaultVersion = 2
	}
	if opts.Distribution == "" {
		opts.Distribution = "Debian"
	}

	current, err := c.DefaultVersion(ctx)
	if err != nil {
		logging.Debug("Could not read WSL default version", "error", err)
	}
	if current == opts.DefaultVersion {
		logging.Debug("WSL default version already set", "version", current)
	} else if opts.DryRun {
		logging.Info("Dry run, would set WSL default version", "version", opts.DefaultVersion)
	} else {
		logging.Info("Setting WSL default version", "version", opts.DefaultVersion)
		report.MutatingCalls++
		if err := c.SetDefaultVersion(ctx, opts.DefaultVersion); err != nil {
			logging.LogWSLEvent("set-default-version", "failed", "Setting default version failed", logging.WithError(err), logging.WithLevel("ERROR"))
			errs = append(errs, err)
		} else {
			report.VersionChanged = true
			logging.LogWSLEvent("set-default-version", "completed", fmt.Sprintf("Default version set to %d", opts.DefaultVersion))
		}
	}

	distros, err := c.Distributions(ctx)
	if err != nil {
		return report, errors.Join(append(errs, err)...)
	}
	for _, d := range distros {
		if strings.EqualFold(d, opts.Distribution) {
			logging.Debug("Distribution already installed", "distribution", opts.Distribution)
			return report, errors.Join(errs...)
		}
	}

	if opts.DryRun {
		logging.Info("Dry run, would install distribution", "distribution", opts.Distribution)
		return report, errors.Join(errs...)
	}

	logging.Info("Installing distribution", "distribution", opts.Distribution)
	report.MutatingCalls++
	if err := c.InstallDistribution(ctx, opts.Distribution); err != nil {
		logging.LogWSLEvent("install", "failed", "Distribution install failed",
			logging.WithPackage(opts.Distribution), logging.WithError(err), logging.WithLevel("ERROR"))
		return report, errors.Join(append(errs, err)...)
	}
	report.DistributionInstalled = true
	report.RebootMayBeRequired = true
	logging.LogWSLEvent("install", "completed", "Distribution installed", logging.WithPackage(opts.Distribution))
	logging.Warn("Distribution installed; a further restart may be required before first use", "distribution", opts.Distribution)
	return report, errors.Join(errs...)
}
