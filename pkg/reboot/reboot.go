// pkg/reboot/reboot.go - deciding on, and scheduling, the restart that feature enablement needs.

package reboot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/windowsadmins/wslbootstrap/pkg/command"
	"github.com/windowsadmins/wslbootstrap/pkg/logging"
	"github.com/windowsadmins/wslbootstrap/pkg/state"
	"github.com/windowsadmins/wslbootstrap/pkg/tasks"
)

// Action is the decision for a given RunState.
type Action int

const (
	ActionContinue Action = iota
	ActionScheduleRestart
	ActionWarnAndContinue
)

func (a Action) String() string {
	switch a {
	case ActionScheduleRestart:
		return "schedule-restart"
	case ActionWarnAndContinue:
		return "warn-and-continue"
	default:
		return "continue"
	}
}

// Decide applies the restart decision table.
func Decide(rs state.RunState) Action {
	switch {
	case !rs.NeedRestart:
		return ActionContinue
	case rs.HasResumed:
		return ActionWarnAndContinue
	default:
		return ActionScheduleRestart
	}
}

// Outcome tells the caller whether to keep going.
type Outcome int

const (
	Continued Outcome = iota
	// RebootScheduled means the process must exit 0 without further work.
	RebootScheduled
)

func (o Outcome) String() string {
	if o == RebootScheduled {
		return "reboot-scheduled"
	}
	return "continued"
}

// Restarter schedules an OS restart.
type Restarter interface {
	ScheduleRestart(ctx context.Context, delay time.Duration, reason string) error
}

// Notifier tells an interactive user a restart is coming.
type Notifier interface {
	Notify(delay time.Duration, reason string)
}

// Recorder persists the AwaitingReboot phase.
type Recorder interface {
	MarkAwaitingReboot(executable, taskName, sessionID string) error
}

// ShutdownRestarter restarts through shutdown.exe.
type ShutdownRestarter struct {
	runner command.Runner
}

// NewShutdownRestarter returns a Restarter backed by shutdown.exe.
func NewShutdownRestarter(runner command.Runner) *ShutdownRestarter {
	return &ShutdownRestarter{runner: runner}
}

// ScheduleRestart issues a planned restart after delay.
func (r *ShutdownRestarter) ScheduleRestart(ctx context.Context, delay time.Duration, reason string) error {
	secs := int(delay / time.Second)
	// p:4:2 is "Application: Installation (Planned)".
	args := []string{"/r", "/t", strconv.Itoa(secs), "/d", "p:4:2", "/c", reason}
	if _, err := r.runner.Run(ctx, "shutdown.exe", args...); err != nil {
		return fmt.Errorf("scheduling restart: %w", err)
	}
	return nil
}

// Coordinator registers the reentry task and restarts when the decision table says so.
type Coordinator struct {
	Registry  tasks.Registry
	Restarter Restarter
	Task      tasks.ReentryTask
	Delay     time.Duration
	Reason    string

	// Optional.
	Notifier Notifier
	Recorder Recorder
	DryRun   bool
}

// DefaultReason is shown by Windows in the restart warning.
const DefaultReason = "Restarting to finish enabling Windows features for WSL setup."

// MaybeReboot acts on rs. When it returns RebootScheduled the caller must stop.
// A registration failure is returned before any restart is attempted.
func (c *Coordinator) MaybeReboot(ctx context.Context, rs state.RunState) (Outcome, error) {
	action := Decide(rs)
	logging.Debug("Restart decision", "need_restart", rs.NeedRestart, "has_resumed", rs.HasResumed, "action", action)

	switch action {
	case ActionContinue:
		return Continued, nil
	case ActionWarnAndContinue:
		logging.Warn("Features changed on a resumed run, not scheduling a second restart")
		logging.LogRebootEvent("skipped", "Features changed after resume; second restart not scheduled",
			logging.WithLevel("WARN"))
		return Continued, nil
	}

	reason := c.Reason
	if reason == "" {
		reason = DefaultReason
	}

	if c.DryRun {
		logging.Info("Dry run, would register reentry task and restart",
			"task", c.Task.Name, "command", c.Task.CommandLine(), "delay", c.Delay)
		logging.LogRebootEvent("dry-run", "Restart would be scheduled")
		return RebootScheduled, nil
	}

	if err := c.Registry.Register(ctx, c.Task); err != nil {
		logging.LogTaskEvent(c.Task.Name, "register", "failed", err)
		return Continued, err
	}
	logging.LogTaskEvent(c.Task.Name, "register", "completed", nil)
	logging.Info("Registered reentry task", "task", c.Task.Name, "command", c.Task.CommandLine())

	if c.Recorder != nil {
		if err := c.Recorder.MarkAwaitingReboot(c.Task.Executable, c.Task.Name, logging.GetSessionID()); err != nil {
			logging.Warn("Failed to write state file", "error", err)
		}
	}

	if c.Notifier != nil {
		c.Notifier.Notify(c.Delay, reason)
	}

	if err := c.Restarter.ScheduleRestart(ctx, c.Delay, reason); err != nil {
		logging.Error("Restart could not be scheduled; restart manually to continue setup", "error", err)
		logging.LogRebootEvent("failed", "Restart could not be scheduled", logging.WithError(err), logging.WithLevel("ERROR"))
		return Continued, err
	}
	logging.Info("Restart scheduled", "delay", c.Delay)
	logging.LogRebootEvent("scheduled", "Restart scheduled", logging.WithDuration(c.Delay))
	return RebootScheduled, nil
}
