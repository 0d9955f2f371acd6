package reboot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/wslbootstrap/pkg/command/commandtest"
	"github.com/windowsadmins/wslbootstrap/pkg/state"
	"github.com/windowsadmins/wslbootstrap/pkg/tasks"
)

type fakeRegistry struct {
	registered []tasks.ReentryTask
	err        error
}

func (f *fakeRegistry) Exists(context.Context, string) (bool, error) { return len(f.registered) > 0, nil }
func (f *fakeRegistry) Delete(context.Context, string) error         { return nil }
func (f *fakeRegistry) Register(_ context.Context, t tasks.ReentryTask) error {
	if f.err != nil {
		return f.err
	}
	f.registered = append(f.registered, t)
	return nil
}

type fakeRestarter struct {
	calls int
	delay time.Duration
	err   error
}

func (f *fakeRestarter) ScheduleRestart(_ context.Context, d time.Duration, _ string) error {
	f.calls++
	f.delay = d
	return f.err
}

type fakeRecorder struct{ phases []string }

func (f *fakeRecorder) MarkAwaitingReboot(exe, task, _ string) error {
	f.phases = append(f.phases, task)
	return nil
}

type fakeNotifier struct{ shown int }

func (f *fakeNotifier) Notify(time.Duration, string) { f.shown++ }

func newCoordinator() (*Coordinator, *fakeRegistry, *fakeRestarter) {
	reg := &fakeRegistry{}
	rst := &fakeRestarter{}
	return &Coordinator{
		Registry:  reg,
		Restarter: rst,
		Task:      tasks.NewReentryTask("ResumeWSLSetupTask", `C:\wslbootstrap.exe`, "--resume"),
		Delay:     15 * time.Second,
	}, reg, rst
}

func TestDecide(t *testing.T) {
	tests := []struct {
		need, resumed bool
		want          Action
	}{
		{false, false, ActionContinue},
		{false, true, ActionContinue},
		{true, false, ActionScheduleRestart},
		{true, true, ActionWarnAndContinue},
	}
	for _, tt := range tests {
		rs := state.RunState{NeedRestart: tt.need, HasResumed: tt.resumed}
		assert.Equal(t, tt.want, Decide(rs), "need=%v resumed=%v", tt.need, tt.resumed)
	}
}

func TestNoRestartNeededNeverTouchesTasks(t *testing.T) {
	for _, resumed := range []bool{false, true} {
		c, reg, rst := newCoordinator()
		out, err := c.MaybeReboot(context.Background(), state.New(resumed))
		require.NoError(t, err)
		assert.Equal(t, Continued, out)
		assert.Empty(t, reg.registered)
		assert.Zero(t, rst.calls)
	}
}

func TestFreshRunWithChangesSchedulesRestart(t *testing.T) {
	c, reg, rst := newCoordinator()
	rec := &fakeRecorder{}
	n := &fakeNotifier{}
	c.Recorder = rec
	c.Notifier = n

	out, err := c.MaybeReboot(context.Background(), state.New(false).WithRestart(true))
	require.NoError(t, err)
	assert.Equal(t, RebootScheduled, out)
	require.Len(t, reg.registered, 1)
	assert.Equal(t, "ResumeWSLSetupTask", reg.registered[0].Name)
	assert.Equal(t, "SYSTEM", reg.registered[0].Principal)
	assert.Equal(t, 1, rst.calls)
	assert.Equal(t, 15*time.Second, rst.delay)
	assert.Equal(t, []string{"ResumeWSLSetupTask"}, rec.phases)
	assert.Equal(t, 1, n.shown)
}

func TestResumedRunWithChangesWarnsOnly(t *testing.T) {
	c, reg, rst := newCoordinator()
	out, err := c.MaybeReboot(context.Background(), state.New(true).WithRestart(true))
	require.NoError(t, err)
	assert.Equal(t, Continued, out)
	assert.Empty(t, reg.registered)
	assert.Zero(t, rst.calls)
}

func TestRegisterFailureDoesNotRestart(t *testing.T) {
	c, reg, rst := newCoordinator()
	reg.err = errors.New("access denied")
	_, err := c.MaybeReboot(context.Background(), state.New(false).WithRestart(true))
	require.Error(t, err)
	assert.Zero(t, rst.calls)
}

func TestRestartFailureIsReturned(t *testing.T) {
	c, reg, rst := newCoordinator()
	rst.err = errors.New("shutdown in progress")
	out, err := c.MaybeReboot(context.Background(), state.New(false).WithRestart(true))
	require.Error(t, err)
	assert.Equal(t, Continued, out)
	assert.Len(t, reg.registered, 1, "task stays registered so a manual restart resumes")
}

func TestDryRunSchedulesNothing(t *testing.T) {
	c, reg, rst := newCoordinator()
	c.DryRun = true
	out, err := c.MaybeReboot(context.Background(), state.New(false).WithRestart(true))
	require.NoError(t, err)
	assert.Equal(t, RebootScheduled, out)
	assert.Empty(t, reg.registered)
	assert.Zero(t, rst.calls)
}

func TestShutdownRestarterArguments(t *testing.T) {
	runner := commandtest.New()
	require.NoError(t, NewShutdownRestarter(runner).ScheduleRestart(context.Background(), 15*time.Second, "setup"))
	require.Len(t, runner.Calls, 1)
	assert.Equal(t, "shutdown.exe", runner.Calls[0].Name)
	assert.Equal(t, []string{"/r", "/t", "15", "/d", "p:4:2", "/c", "setup"}, runner.Calls[0].Args)

	runner = commandtest.New().On("shutdown.exe", commandtest.Response{ExitCode: 1190})
	assert.Error(t, NewShutdownRestarter(runner).ScheduleRestart(context.Background(), time.Second, "x"))
}
