// pkg/preflight/scripts.go - optional preflight and postflight PowerShell scripts.

package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/windowsadmins/wslbootstrap/pkg/command"
	"github.com/windowsadmins/wslbootstrap/pkg/config"
	"github.com/windowsadmins/wslbootstrap/pkg/logging"
)

// Scripts runs preflight.ps1 and postflight.ps1 from Dir when present.
type Scripts struct {
	runner     command.Runner
	Dir        string
	PreAction  string
	PostAction string
}

// NewScripts returns a Scripts runner using the install directory and failure actions from cfg.
func NewScripts(runner command.Runner, cfg *config.Configuration) *Scripts {
	return &Scripts{
		runner:     runner,
		Dir:        cfg.InstallPath,
		PreAction:  cfg.PreflightFailureAction,
		PostAction: cfg.PostflightFailureAction,
	}
}

// RunPreflight runs preflight.ps1. Only the abort action turns a failure into an error.
func (s *Scripts) RunPreflight(ctx context.Context) error {
	return s.run(ctx, "preflight", s.PreAction)
}

// RunPostflight runs postflight.ps1.
func (s *Scripts) RunPostflight(ctx context.Context) error {
	return s.run(ctx, "postflight", s.PostAction)
}

func (s *Scripts) run(ctx context.Context, name, action string) error {
	scriptPath := filepath.Join(s.Dir, name+".ps1")
	if _, err := os.Stat(scriptPath); errors.Is(err, os.ErrNotExist) {
		logging.Debug("Script not found", "script", name, "path", scriptPath)
		return nil
	}

	start := time.Now()
	res, err := s.runner.Run(ctx,
		"pwsh.exe",
		"-NoLogo",
		"-NoProfile",
		"-NonInteractive",
		"-Command", fmt.Sprintf(`& "%s" 2>&1`, scriptPath),
	)
	for _, line := range cleanLines(res.Output) {
		logging.Info(line, "script", name)
	}

	if err == nil {
		logging.Info("Script completed successfully", "script", name)
		logging.LogScriptEvent(name, "completed", time.Since(start), nil)
		return nil
	}
	logging.LogScriptEvent(name, "failed", time.Since(start), err)

	switch action {
	case config.ActionAbort:
		return &FatalError{Reason: ReasonScriptFailed, Message: name + " script failed", Code: 1, Err: err}
	case config.ActionWarn:
		logging.Warn("Script failed, continuing", "script", name, "error", err)
	default:
		logging.Error("Script failed, continuing", "script", name, "error", err)
	}
	return nil
}

// cleanLines splits script output into non-empty lines without BOMs or colour codes.
func cleanLines(out []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(out), "\n") {
		txt := strings.TrimSpace(line)
		txt = strings.TrimPrefix(txt, "\ufeff")
		txt = strings.ReplaceAll(txt, "\u001b[0m", "")
		txt = strings.ReplaceAll(txt, "\u001b[", "")
		if txt != "" {
			lines = append(lines, txt)
		}
	}
	return lines
}
