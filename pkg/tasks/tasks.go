// pkg/tasks/tasks.go - the boot-triggered reentry task and its registry.

package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/wslbootstrap/pkg/command"
)

const (
	DefaultTaskName = "ResumeWSLSetupTask"

	TriggerOnStart   = "ONSTART"
	PrincipalSystem  = "SYSTEM"
	RunLevelHighest  = "HIGHEST"
	schtasksExe      = "SCHTASKS.EXE"
	maxTaskRunLength = 261 // schtasks /TR limit
)

// ReentryTask describes the scheduled task that re-invokes this program after a restart.
type ReentryTask struct {
	Name       string
	Executable string
	Arguments  []string
	Trigger    string
	Principal  string
	RunLevel   string
}

// NewReentryTask builds a start-up task running executable as SYSTEM with highest privileges.
func NewReentryTask(name, executable string, args ...string) ReentryTask {
	if name == "" {
		name = DefaultTaskName
	}
	return ReentryTask{
		Name:       name,
		Executable: executable,
		Arguments:  args,
		Trigger:    TriggerOnStart,
		Principal:  PrincipalSystem,
		RunLevel:   RunLevelHighest,
	}
}

// ForCurrentProcess builds the reentry task for the running executable.
func ForCurrentProcess(name string, args ...string) (ReentryTask, error) {
	exe, err := ResolveExecutable()
	if err != nil {
		return ReentryTask{}, err
	}
	return NewReentryTask(name, exe, args...), nil
}

// ResolveExecutable returns the absolute path of the running binary with symlinks resolved.
func ResolveExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Abs(exe)
}

// CommandLine renders the task action as schtasks expects it in /TR.
func (t ReentryTask) CommandLine() string {
	parts := []string{`"` + t.Executable + `"`}
	for _, a := range t.Arguments {
		parts = append(parts, command.Quote(a))
	}
	return strings.Join(parts, " ")
}

// Validate checks the task can be registered.
func (t ReentryTask) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("task name is empty")
	}
	if t.Executable == "" || !filepath.IsAbs(t.Executable) {
		return fmt.Errorf("task executable must be an absolute path, got %q", t.Executable)
	}
	if n := len(t.CommandLine()); n > maxTaskRunLength {
		return fmt.Errorf("task command line is %d characters, schtasks allows %d", n, maxTaskRunLength)
	}
	return nil
}

// Registry is the OS task scheduler as seen by the workflow.
type Registry interface {
	Exists(ctx context.Context, name string) (bool, error)
	Register(ctx context.Context, task ReentryTask) error
	Delete(ctx context.Context, name string) error
}

// SchtasksRegistry drives SCHTASKS.EXE.
type SchtasksRegistry struct {
	runner command.Runner
}

// NewSchtasksRegistry returns a Registry backed by SCHTASKS.EXE.
func NewSchtasksRegistry(runner command.Runner) *SchtasksRegistry {
	return &SchtasksRegistry{runner: runner}
}

// Exists queries the task by name. schtasks exits 1 when the task is absent.
func (r *SchtasksRegistry) Exists(ctx context.Context, name string) (bool, error) {
	_, err := r.runner.Run(ctx, schtasksExe, "/QUERY", "/TN", name)
	if err == nil {
		return true, nil
	}
	if code, ok := command.ExitCode(err); ok && code == 1 {
		return false, nil
	}
	return false, fmt.Errorf("querying scheduled task %s: %w", name, err)
}

// Register creates the task, replacing any task with the same name.
func (r *SchtasksRegistry) Register(ctx context.Context, task ReentryTask) error {
	if err := task.Validate(); err != nil {
		return err
	}
	_, err := r.runner.Run(ctx, schtasksExe,
		"/CREATE", "/F",
		"/SC", task.Trigger,
		"/TN", task.Name,
		"/TR", task.CommandLine(),
		"/RU", task.Principal,
		"/RL", task.RunLevel,
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduled task %s: %w", task.Name, err)
	}
	return nil
}

// Delete removes the task.
func (r *SchtasksRegistry) Delete(ctx context.Context, name string) error {
	if _, err := r.runner.Run(ctx, schtasksExe, "/DELETE", "/F", "/TN", name); err != nil {
		return fmt.Errorf("failed to remove scheduled task %s: %w", name, err)
	}
	return nil
}
