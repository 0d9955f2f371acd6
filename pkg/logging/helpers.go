// pkg/logging/helpers.go - package-level session helpers for the bootstrap workflow

package logging

import (
	"fmt"
	"time"
)

// StartSession begins the structured session for the current run.
func StartSession(runType string, metadata map[string]interface{}) error {
	if instance == nil {
		return fmt.Errorf("logging not initialized")
	}
	SetRunType(runType)
	return instance.structured.StartSession(GetSessionID(), runType, metadata)
}

// EndSession completes the structured session.
func EndSession(status string, summary SessionSummary) error {
	if instance == nil {
		return fmt.Errorf("logging not initialized")
	}
	return instance.structured.EndSession(status, summary)
}

// emit must be called directly by an exported helper so the recorded source
// points at the helper's caller.
func emit(eventType, action, status, message string, opts ...EventOption) error {
	if instance == nil || instance.structured == nil {
		return nil
	}
	return instance.structured.LogEvent(newEvent(3, eventType, action, status, message, opts...))
}

// LogCustomEvent writes a free-form event to the session stream.
func LogCustomEvent(eventType, action, status, message string, opts ...EventOption) error {
	return emit(eventType, action, status, message, opts...)
}

// LogFeatureEvent records an optional feature check or enablement.
func LogFeatureEvent(feature, action, status, message string, opts ...EventOption) error {
	return emit("feature", action, status, message, append([]EventOption{WithPackage(feature)}, opts...)...)
}

// LogTaskEvent records a reentry task registration, lookup or removal.
func LogTaskEvent(taskName, action, status string, err error) error {
	level := "INFO"
	if err != nil {
		level = "WARN"
	}
	return emit("task", action, status,
		fmt.Sprintf("Scheduled task %s: %s %s", taskName, action, status),
		WithContext("task_name", taskName),
		WithError(err),
		WithLevel(level))
}

// LogRebootEvent records a reboot decision.
func LogRebootEvent(status, message string, opts ...EventOption) error {
	return emit("reboot", "decide", status, message, opts...)
}

// LogWSLEvent records a subsystem continuation step.
func LogWSLEvent(action, status, message string, opts ...EventOption) error {
	return emit("wsl", action, status, message, opts...)
}

// LogInstallStart logs the start of a package installation.
func LogInstallStart(packageID string) error {
	return emit("install", "start", "started",
		fmt.Sprintf("Starting installation of %s", packageID),
		WithPackage(packageID))
}

// LogInstallComplete logs a successful installation.
func LogInstallComplete(packageID string, duration time.Duration) error {
	return emit("install", "complete", "completed",
		fmt.Sprintf("Successfully installed %s", packageID),
		WithPackage(packageID),
		WithDuration(duration),
		WithExitCode(0))
}

// LogInstallFailed logs a failed installation.
func LogInstallFailed(packageID string, exitCode int, duration time.Duration, err error) error {
	return emit("install", "complete", "failed",
		fmt.Sprintf("Failed to install %s", packageID),
		WithPackage(packageID),
		WithDuration(duration),
		WithExitCode(exitCode),
		WithError(err),
		WithLevel("ERROR"))
}

// LogScriptEvent logs a preflight or postflight script run.
func LogScriptEvent(script, status string, duration time.Duration, err error) error {
	opts := []EventOption{WithDuration(duration)}
	if err != nil {
		opts = append(opts, WithError(err), WithLevel("ERROR"))
	}
	return emit(script, "execute", status, fmt.Sprintf("%s script %s", script, status), opts...)
}
