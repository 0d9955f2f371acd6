package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/wslbootstrap/pkg/features"
	"github.com/windowsadmins/wslbootstrap/pkg/preflight"
	"github.com/windowsadmins/wslbootstrap/pkg/reboot"
	"github.com/windowsadmins/wslbootstrap/pkg/state"
	"github.com/windowsadmins/wslbootstrap/pkg/tasks"
	"github.com/windowsadmins/wslbootstrap/pkg/winget"
	"github.com/windowsadmins/wslbootstrap/pkg/wsl"
)

const taskName = "ResumeWSLSetupTask"

type passGuard struct{ err error }

func (g passGuard) Check(context.Context) error { return g.err }

// host is a fake machine shared by every capability.
type host struct {
	tasks        map[string]tasks.ReentryTask
	registerErr  error
	deleteErr    error
	registerCall int

	features    map[string]features.State
	enableCalls []string

	restarts int

	wslVersion   int
	distros      []string
	wslMutations int

	wingetMissing bool
	failing       map[string]int
	installed     []string
}

func newHost() *host {
	return &host{
		tasks:    map[string]tasks.ReentryTask{},
		features: map[string]features.State{},
		failing:  map[string]int{},
	}
}

func (h *host) Exists(_ context.Context, name string) (bool, error) {
	_, ok := h.tasks[name]
	return ok, nil
}

func (h *host) Register(_ context.Context, t tasks.ReentryTask) error {
	h.registerCall++
	if h.registerErr != nil {
		return h.registerErr
	}
	h.tasks[t.Name] = t
	return nil
}

func (h *host) Delete(_ context.Context, name string) error {
	if h.deleteErr != nil {
		return h.deleteErr
	}
	delete(h.tasks, name)
	return nil
}

type featureQuery struct{ h *host }

func (q featureQuery) State(_ context.Context, id string) (features.State, error) {
	if st, ok := q.h.features[id]; ok {
		return st, nil
	}
	return features.StateDisabled, nil
}

func (q featureQuery) Enable(_ context.Context, id string) error {
	q.h.enableCalls = append(q.h.enableCalls, id)
	// Enabled features only report Enabled after the restart.
	return nil
}

type restarter struct{ h *host }

func (r restarter) ScheduleRestart(context.Context, time.Duration, string) error {
	r.h.restarts++
	return nil
}

type wslControl struct{ h *host }

func (c wslControl) DefaultVersion(context.Context) (int, error) { return c.h.wslVersion, nil }
func (c wslControl) SetDefaultVersion(_ context.Context, v int) error {
	c.h.wslMutations++
	c.h.wslVersion = v
	return nil
}
func (c wslControl) Distributions(context.Context) ([]string, error) { return c.h.distros, nil }
func (c wslControl) InstallDistribution(_ context.Context, name string) error {
	c.h.wslMutations++
	c.h.distros = append(c.h.distros, name)
	return nil
}

type packageManager struct{ h *host }

func (p packageManager) Locate() (string, error) {
	if p.h.wingetMissing {
		return "", winget.ErrPackageManagerNotFound
	}
	return `C:\winget.exe`, nil
}

func (p packageManager) Install(_ context.Context, id string) ([]byte, int, error) {
	p.h.installed = append(p.h.installed, id)
	return []byte("ok"), p.h.failing[id], nil
}

// restart simulates the reboot: features enabled before it now report Enabled.
func (h *host) restart() {
	for _, id := range h.enableCalls {
		h.features[id] = features.StateEnabled
	}
	h.restarts = 0
}

func (h *host) enableAll() {
	for _, f := range features.DefaultCatalog() {
		h.features[f.Identifier] = features.StateEnabled
	}
}

type fixture struct {
	h       *host
	logPath string
	store   *state.Store
}

func newFixture(t *testing.T) *fixture {
	dir := t.TempDir()
	return &fixture{
		h:       newHost(),
		logPath: filepath.Join(dir, "Desktop", "winget_install_log.txt"),
		store:   state.NewStore(filepath.Join(dir, "state.yaml")),
	}
}

func (f *fixture) workflow() *Workflow {
	return &Workflow{
		Guard:    passGuard{},
		Registry: f.h,
		TaskName: taskName,
		Features: featureQuery{f.h},
		Catalog:  features.DefaultCatalog(),
		Coordinator: &reboot.Coordinator{
			Registry:  f.h,
			Restarter: restarter{f.h},
			Task:      tasks.NewReentryTask(taskName, `C:\wslbootstrap.exe`, "--resume", "--non-interactive"),
			Delay:     15 * time.Second,
			Recorder:  f.store,
		},
		WSL:            wslControl{f.h},
		WSLOptions:     wsl.Options{DefaultVersion: 2, Distribution: "Debian"},
		Installer:      winget.NewInstaller(packageManager{f.h}, winget.ContinueOnError),
		Apps:           winget.Entries([]string{"Git.Git", "Microsoft.VisualStudioCode", "7zip.7zip"}),
		InstallLogPath: f.logPath,
		Store:          f.store,
	}
}

func TestFreshMachineSchedulesRestartAndStops(t *testing.T) {
	f := newFixture(t)

	res, err := f.workflow().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, ExitCode(err))
	assert.True(t, res.FeaturesChanged)
	assert.Equal(t, reboot.RebootScheduled, res.Outcome)
	assert.Equal(t, state.PhaseAwaitingReboot, res.State.Phase)
	assert.Len(t, f.h.enableCalls, 3)
	assert.Equal(t, 1, f.h.registerCall)
	assert.Len(t, f.h.tasks, 1)
	assert.Equal(t, 1, f.h.restarts)

	assert.Zero(t, f.h.wslMutations, "continuation steps must not run")
	assert.Empty(t, f.h.installed)
	_, statErr := os.Stat(f.logPath)
	assert.True(t, os.IsNotExist(statErr))

	rec, err := f.store.Load()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, state.PhaseAwaitingReboot, rec.Phase)
}

func TestConfiguredMachineRunsInstallerOnly(t *testing.T) {
	f := newFixture(t)
	f.h.enableAll()
	f.h.wslVersion = 2
	f.h.distros = []string{"Debian"}

	res, err := f.workflow().Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.FeaturesChanged)
	assert.Equal(t, reboot.Continued, res.Outcome)
	assert.Zero(t, res.Steps.MutatingCalls)
	assert.Zero(t, f.h.wslMutations)
	assert.Empty(t, f.h.enableCalls)
	assert.Zero(t, f.h.registerCall)
	assert.Zero(t, f.h.restarts)
	assert.Equal(t, []string{"Git.Git", "Microsoft.VisualStudioCode", "7zip.7zip"}, f.h.installed)
	assert.Equal(t, state.PhaseComplete, res.State.Phase)
	assert.FileExists(t, f.logPath)
}

func TestFreshRunWithoutChangesSkipsCleanup(t *testing.T) {
	f := newFixture(t)
	f.h.enableAll()
	// A stray task of another name must survive.
	f.h.tasks["SomethingElse"] = tasks.ReentryTask{Name: "SomethingElse"}
	f.h.deleteErr = errors.New("cleanup must not run")

	res, err := f.workflow().Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.State.HasResumed)
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "reentry task")
	}
	assert.Contains(t, f.h.tasks, "SomethingElse")
}

func TestResumedRunCompletesAndCleansUp(t *testing.T) {
	f := newFixture(t)

	_, err := f.workflow().Run(context.Background())
	require.NoError(t, err)
	f.h.restart()

	res, err := f.workflow().Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.State.HasResumed)
	assert.False(t, res.FeaturesChanged)
	assert.Equal(t, reboot.Continued, res.Outcome)
	assert.Equal(t, state.PhaseComplete, res.State.Phase)
	assert.Equal(t, 2, res.Steps.MutatingCalls)
	assert.Len(t, f.h.installed, 3)
	assert.Empty(t, f.h.tasks, "reentry task removed")
	assert.Equal(t, 1, f.h.registerCall)

	rec, err := f.store.Load()
	require.NoError(t, err)
	assert.Nil(t, rec, "state file removed")

	detected := tasks.NewDetector(f.h, taskName).Detect(context.Background())
	assert.False(t, detected, "a second invocation is not a resume")
}

func TestResumedRunWithNewChangesDoesNotRebootAgain(t *testing.T) {
	f := newFixture(t)
	f.h.tasks[taskName] = tasks.ReentryTask{Name: taskName}

	res, err := f.workflow().Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.FeaturesChanged)
	assert.Equal(t, reboot.Continued, res.Outcome)
	assert.Zero(t, f.h.restarts)
	assert.Zero(t, f.h.registerCall)
	assert.Empty(t, f.h.tasks)
}

func TestMissingPackageManagerIsFatal(t *testing.T) {
	f := newFixture(t)
	f.h.enableAll()
	f.h.wingetMissing = true

	res, err := f.workflow().Run(context.Background())
	require.ErrorIs(t, err, winget.ErrPackageManagerNotFound)
	assert.Equal(t, 1, ExitCode(err))
	assert.Nil(t, res.Install)
	assert.Empty(t, f.h.installed)
	_, statErr := os.Stat(f.logPath)
	assert.True(t, os.IsNotExist(statErr), "install log never created")
}

func TestInstallFailuresDoNotFailRun(t *testing.T) {
	f := newFixture(t)
	f.h.enableAll()
	f.h.wslVersion = 2
	f.h.distros = []string{"Debian"}
	f.h.failing["Microsoft.VisualStudioCode"] = 1

	res, err := f.workflow().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Microsoft.VisualStudioCode"}, res.Install.FailedIDs())
	assert.Equal(t, 2, res.Summary().Successes)
	assert.Equal(t, 1, res.Summary().Failures)
}

func TestGuardFailureStopsBeforeAnyChange(t *testing.T) {
	f := newFixture(t)
	w := f.workflow()
	w.Guard = passGuard{err: &preflight.FatalError{Reason: preflight.ReasonNotAdmin, Message: "not admin", Code: 1}}

	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Empty(t, f.h.enableCalls)
	assert.Zero(t, f.h.registerCall)
}

func TestRegisterFailureIsFatalWithoutRestart(t *testing.T) {
	f := newFixture(t)
	f.h.registerErr = errors.New("access denied")

	_, err := f.workflow().Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Zero(t, f.h.restarts)
	assert.Empty(t, f.h.installed)
}

func TestCleanupFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.h.enableAll()
	f.h.tasks[taskName] = tasks.ReentryTask{Name: taskName}
	f.h.deleteErr = errors.New("task in use")

	res, err := f.workflow().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, ExitCode(err))
	assert.Contains(t, res.Warnings, "Failed to remove reentry task")
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, Describe(winget.ErrPackageManagerNotFound), "App Installer")
	assert.Equal(t, "boom", Describe(errors.New("boom")))
}
