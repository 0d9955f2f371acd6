package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/wslbootstrap/pkg/command/commandtest"
)

const testExe = `C:\Program Files\WSLBootstrap\wslbootstrap.exe`

// absExe returns an executable path that is absolute on the test platform.
func absExe() string {
	if filepath.IsAbs(testExe) {
		return testExe
	}
	return "/opt/wslbootstrap/wslbootstrap"
}

func TestNewReentryTaskDefaults(t *testing.T) {
	task := NewReentryTask("", testExe, "--resume")
	assert.Equal(t, DefaultTaskName, task.Name)
	assert.Equal(t, TriggerOnStart, task.Trigger)
	assert.Equal(t, PrincipalSystem, task.Principal)
	assert.Equal(t, RunLevelHighest, task.RunLevel)
}

func TestCommandLineQuotesExecutableAndArguments(t *testing.T) {
	task := NewReentryTask("x", testExe, "--resume", "--config", `C:\My Configs\c.yaml`)
	assert.Equal(t,
		`"C:\Program Files\WSLBootstrap\wslbootstrap.exe" --resume --config "C:\My Configs\c.yaml"`,
		task.CommandLine())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    ReentryTask
		wantErr string
	}{
		{name: "valid", task: NewReentryTask("x", absExe(), "--resume")},
		{name: "empty name", task: ReentryTask{Executable: absExe()}, wantErr: "name is empty"},
		{name: "relative executable", task: NewReentryTask("x", "wslbootstrap.exe"), wantErr: "absolute path"},
		{name: "too long", task: NewReentryTask("x", absExe(), strings.Repeat("a", 300)), wantErr: "schtasks allows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSchtasksExists(t *testing.T) {
	ctx := context.Background()

	runner := commandtest.New()
	reg := NewSchtasksRegistry(runner)
	ok, err := reg.Exists(ctx, "ResumeWSLSetupTask")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "SCHTASKS.EXE /QUERY /TN ResumeWSLSetupTask", runner.Calls[0].String())

	runner = commandtest.New().On("SCHTASKS.EXE /QUERY", commandtest.Response{ExitCode: 1, Output: "ERROR: The system cannot find the file specified."})
	ok, err = NewSchtasksRegistry(runner).Exists(ctx, "ResumeWSLSetupTask")
	require.NoError(t, err)
	assert.False(t, ok)

	runner = commandtest.New().On("SCHTASKS.EXE /QUERY", commandtest.Response{Err: errors.New("access denied")})
	_, err = NewSchtasksRegistry(runner).Exists(ctx, "ResumeWSLSetupTask")
	assert.Error(t, err)
}

func TestSchtasksRegisterArguments(t *testing.T) {
	runner := commandtest.New()
	reg := NewSchtasksRegistry(runner)
	task := ReentryTask{
		Name: "ResumeWSLSetupTask", Executable: absExe(), Arguments: []string{"--resume"},
		Trigger: TriggerOnStart, Principal: PrincipalSystem, RunLevel: RunLevelHighest,
	}

	require.NoError(t, reg.Register(context.Background(), task))
	require.Len(t, runner.Calls, 1)
	call := runner.Calls[0]
	assert.Equal(t, "SCHTASKS.EXE", call.Name)
	assert.Equal(t, []string{
		"/CREATE", "/F", "/SC", "ONSTART", "/TN", "ResumeWSLSetupTask",
		"/TR", task.CommandLine(), "/RU", "SYSTEM", "/RL", "HIGHEST",
	}, call.Args)
}

func TestSchtasksRegisterFailure(t *testing.T) {
	runner := commandtest.New().On("SCHTASKS.EXE /CREATE", commandtest.Response{ExitCode: 1, Output: "ERROR: Access is denied."})
	task := NewReentryTask("ResumeWSLSetupTask", absExe())
	err := NewSchtasksRegistry(runner).Register(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access is denied")
}

func TestSchtasksDelete(t *testing.T) {
	runner := commandtest.New()
	require.NoError(t, NewSchtasksRegistry(runner).Delete(context.Background(), "ResumeWSLSetupTask"))
	assert.Len(t, runner.CallsTo("SCHTASKS.EXE /DELETE /F /TN ResumeWSLSetupTask"), 1)
}

type fakeRegistry struct {
	exists bool
	err    error
}

func (f fakeRegistry) Exists(context.Context, string) (bool, error) { return f.exists, f.err }
func (f fakeRegistry) Register(context.Context, ReentryTask) error  { return nil }
func (f fakeRegistry) Delete(context.Context, string) error         { return nil }

func TestDetector(t *testing.T) {
	ctx := context.Background()
	assert.True(t, NewDetector(fakeRegistry{exists: true}, "").Detect(ctx))
	assert.False(t, NewDetector(fakeRegistry{}, "").Detect(ctx))
	assert.False(t, NewDetector(fakeRegistry{exists: true, err: errors.New("boom")}, "").Detect(ctx))
}
