// pkg/provision/provision.go - the end-to-end provisioning workflow.
//
// A run spans at most two process lifetimes. The first enables the optional
// features and, if anything changed, registers the reentry task and restarts.
// The second, started by that task, configures WSL, installs applications and
// removes the task.

package provision

import (
	"context"
	"errors"
	"time"

	"github.com/windowsadmins/wslbootstrap/pkg/features"
	"github.com/windowsadmins/wslbootstrap/pkg/logging"
	"github.com/windowsadmins/wslbootstrap/pkg/preflight"
	"github.com/windowsadmins/wslbootstrap/pkg/reboot"
	"github.com/windowsadmins/wslbootstrap/pkg/state"
	"github.com/windowsadmins/wslbootstrap/pkg/tasks"
	"github.com/windowsadmins/wslbootstrap/pkg/winget"
	"github.com/windowsadmins/wslbootstrap/pkg/wsl"
)

// Checker verifies preconditions.
type Checker interface {
	Check(ctx context.Context) error
}

// ScriptRunner runs the optional preflight and postflight hooks.
type ScriptRunner interface {
	RunPreflight(ctx context.Context) error
	RunPostflight(ctx context.Context) error
}

// Workflow wires every stage. Scripts and Store may be nil.
type Workflow struct {
	Guard    Checker
	Scripts  ScriptRunner
	Registry tasks.Registry
	TaskName string

	Features features.Query
	Catalog  []features.Descriptor

	Coordinator *reboot.Coordinator

	WSL        wsl.Control
	WSLOptions wsl.Options

	Installer      *winget.Installer
	Apps           []winget.Entry
	InstallLogPath string

	Store *state.Store

	// DryRun keeps the reentry task and state file in place after a resumed run.
	DryRun bool
}

// Result describes what a Run did.
type Result struct {
	State           state.RunState
	Outcome         reboot.Outcome
	FeaturesChanged bool
	Steps           wsl.StepReport
	Install         *winget.Report
	Warnings        []string
	Duration        time.Duration
}

// Summary converts r for the session log.
func (r *Result) Summary() logging.SessionSummary {
	s := logging.SessionSummary{
		FeaturesChanged: r.FeaturesChanged,
		RebootScheduled: r.Outcome == reboot.RebootScheduled,
		Resumed:         r.State.HasResumed,
		MutatingSteps:   r.Steps.MutatingCalls,
		Duration:        r.Duration,
		Warnings:        r.Warnings,
	}
	if r.Install != nil {
		s.Successes = r.Install.Succeeded
		s.Failures = r.Install.Failed
		for _, res := range r.Install.Results {
			s.PackagesHandled = append(s.PackagesHandled, res.PackageID)
		}
	}
	return s
}

func (r *Result) warn(msg string, keyValues ...interface{}) {
	logging.Warn(msg, keyValues...)
	r.Warnings = append(r.Warnings, msg)
}

// Run executes the workflow. A RebootScheduled outcome with a nil error
// means the process should exit 0 straight away.
func (w *Workflow) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}
	defer func() { res.Duration = time.Since(start) }()

	if err := w.Guard.Check(ctx); err != nil {
		return res, err
	}

	resumed := tasks.NewDetector(w.Registry, w.TaskName).Detect(ctx)
	rs := state.New(resumed)
	res.State = rs
	if resumed {
		logging.Info("Resuming after restart", "task", w.TaskName)
		rebooted, err := w.Store.MarkResumed()
		if err != nil {
			res.warn("Could not update state file", "error", err)
		} else if w.Store != nil && !rebooted {
			logging.Debug("Boot time unchanged since the reentry task was registered")
		}
	} else {
		logging.Info("Starting fresh provisioning run")
	}

	if w.Scripts != nil {
		if err := w.Scripts.RunPreflight(ctx); err != nil {
			return res, err
		}
	}

	changed, err := features.Ensure(ctx, w.Features, w.Catalog)
	res.FeaturesChanged = changed
	if err != nil {
		return res, err
	}
	rs = rs.WithRestart(changed)
	res.State = rs

	outcome, err := w.Coordinator.MaybeReboot(ctx, rs)
	res.Outcome = outcome
	if err != nil {
		return res, err
	}
	if outcome == reboot.RebootScheduled {
		if next, err := rs.Advance(state.PhaseAwaitingReboot); err == nil {
			res.State = next
		}
		return res, nil
	}

	steps, err := wsl.Continue(ctx, w.WSL, w.WSLOptions)
	res.Steps = steps
	if err != nil {
		res.warn("WSL setup step failed, continuing with application installs", "error", err)
	}
	if steps.RebootMayBeRequired {
		res.warn("A further restart may be required before the distribution can be used")
	}

	report, err := w.Installer.InstallAll(ctx, w.Apps, w.InstallLogPath)
	res.Install = report
	if err != nil {
		return res, err
	}

	if w.Scripts != nil {
		if err := w.Scripts.RunPostflight(ctx); err != nil {
			return res, err
		}
	}

	w.cleanupIfResumed(ctx, res)

	if next, err := res.State.Advance(state.PhaseComplete); err == nil {
		res.State = next
	}
	return res, nil
}

// cleanupIfResumed removes the reentry task and state file after a resumed run.
// Failures are warnings and never change the exit status.
func (w *Workflow) cleanupIfResumed(ctx context.Context, res *Result) {
	if !res.State.HasResumed {
		return
	}
	if w.DryRun {
		logging.Info("Dry run, would remove reentry task", "task", w.TaskName)
		logging.LogCustomEvent("task", "delete", "skipped", "Dry run, reentry task kept", logging.WithPackage(w.TaskName))
		return
	}
	if err := w.Registry.Delete(ctx, w.TaskName); err != nil {
		logging.LogTaskEvent(w.TaskName, "delete", "failed", err)
		res.warn("Failed to remove reentry task", "task", w.TaskName, "error", err)
	} else {
		logging.LogTaskEvent(w.TaskName, "delete", "completed", nil)
		logging.Info("Removed reentry task", "task", w.TaskName)
	}
	if err := w.Store.Remove(); err != nil {
		res.warn("Failed to remove state file", "path", w.Store.Path(), "error", err)
	}
}

// ExitCode maps a Run error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var fe *preflight.FatalError
	if errors.As(err, &fe) {
		return fe.ExitCode()
	}
	return 1
}

// Describe renders err for the console.
func Describe(err error) string {
	switch {
	case errors.Is(err, winget.ErrPackageManagerNotFound):
		return "winget is not installed. Install App Installer from the Microsoft Store and run this tool again."
	case errors.Is(err, context.Canceled):
		return "interrupted"
	}
	return err.Error()
}
