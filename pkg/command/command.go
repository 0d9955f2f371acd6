// pkg/command/command.go - running external Windows tools and capturing their output.

package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result holds the combined output and exit status of a finished command.
type Result struct {
	Output   []byte
	ExitCode int
}

// String returns the trimmed combined output.
func (r Result) String() string {
	return strings.TrimSpace(string(r.Output))
}

// ExitError is returned when a command ran but exited with a non-zero status.
type ExitError struct {
	Name   string
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s exited with code %d", e.Name, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Name, e.Code, out)
}

// Runner runs external programs. Fakes implement it in tests.
type Runner interface {
	// Run executes name with args and waits for it. A non-zero exit status is
	// reported as *ExitError together with a populated Result.
	Run(ctx context.Context, name string, args ...string) (Result, error)
	// LookPath resolves an executable on PATH.
	LookPath(file string) (string, error)
}

// ExecRunner runs commands with os/exec and a hidden console window.
type ExecRunner struct{}

// NewExecRunner returns the default Runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command, capturing stdout and stderr together.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	hideConsoleWindow(cmd)

	out, err := cmd.CombinedOutput()
	res := Result{Output: out}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Name: name, Code: res.ExitCode, Output: string(out)}
	}
	res.ExitCode = -1
	return res, fmt.Errorf("running %s: %w", name, err)
}

// LookPath wraps exec.LookPath.
func (ExecRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// ExitCode extracts the exit status from an error returned by Run.
// It reports false when err did not come from a process that ran to completion.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// Line renders a command line for logs.
func Line(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, Quote(name))
	for _, a := range args {
		parts = append(parts, Quote(a))
	}
	return strings.Join(parts, " ")
}

// Quote wraps s in double quotes when it contains whitespace.
func Quote(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t") && !strings.HasPrefix(s, `"`) {
		return `"` + s + `"`
	}
	return s
}
