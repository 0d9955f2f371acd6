package provision

import (
	"time"

	"github.com/windowsadmins/wslbootstrap/pkg/command"
	"github.com/windowsadmins/wslbootstrap/pkg/config"
	"github.com/windowsadmins/wslbootstrap/pkg/features"
	"github.com/windowsadmins/wslbootstrap/pkg/preflight"
	"github.com/windowsadmins/wslbootstrap/pkg/reboot"
	"github.com/windowsadmins/wslbootstrap/pkg/state"
	"github.com/windowsadmins/wslbootstrap/pkg/tasks"
	"github.com/windowsadmins/wslbootstrap/pkg/winget"
	"github.com/windowsadmins/wslbootstrap/pkg/wsl"
)

// New wires the production workflow for cfg. task is the reentry task to
// register if a restart is needed.
func New(cfg *config.Configuration, runner command.Runner, task tasks.ReentryTask) *Workflow {
	registry := tasks.NewSchtasksRegistry(runner)

	query := features.NewSystemQuery(runner)
	query.DryRun = cfg.DryRun

	var store *state.Store
	if cfg.UseStateFile && !cfg.DryRun {
		store = state.NewStore(cfg.StatePath)
	}

	coord := &reboot.Coordinator{
		Registry:  registry,
		Restarter: reboot.NewShutdownRestarter(runner),
		Task:      task,
		Delay:     time.Duration(cfg.RestartDelaySeconds) * time.Second,
		DryRun:    cfg.DryRun,
	}
	if store != nil {
		coord.Recorder = store
	}
	if cfg.RestartNotice && !cfg.NonInteractive {
		coord.Notifier = reboot.NewNotifier()
	}

	installer := winget.NewInstaller(winget.NewCLI(runner), winget.ParsePolicy(cfg.FailureAction))
	installer.DryRun = cfg.DryRun

	w := &Workflow{
		Guard:       preflight.NewGuard(preflight.NewSystemProbe()),
		Registry:    registry,
		TaskName:    cfg.TaskName,
		Features:    query,
		Catalog:     features.FromConfig(cfg.Features),
		Coordinator: coord,
		WSL:         wsl.NewCLI(runner),
		WSLOptions: wsl.Options{
			DefaultVersion: cfg.DefaultWSLVersion,
			Distribution:   cfg.Distribution,
			DryRun:         cfg.DryRun,
		},
		Installer:      installer,
		Apps:           winget.Entries(cfg.Apps),
		InstallLogPath: cfg.InstallLogPath,
		Store:          store,
		DryRun:         cfg.DryRun,
	}
	if !cfg.NoPreflight {
		w.Scripts = preflight.NewScripts(runner, cfg)
	}
	return w
}
