// cmd/wslbootstrap/main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/wslbootstrap/pkg/blocking"
	"github.com/windowsadmins/wslbootstrap/pkg/command"
	"github.com/windowsadmins/wslbootstrap/pkg/config"
	"github.com/windowsadmins/wslbootstrap/pkg/logging"
	"github.com/windowsadmins/wslbootstrap/pkg/provision"
	"github.com/windowsadmins/wslbootstrap/pkg/reboot"
	"github.com/windowsadmins/wslbootstrap/pkg/tasks"
	"github.com/windowsadmins/wslbootstrap/pkg/version"
)

const hostsAdvisory = "Consider blocking global.rel.tunnels.api.visualstudio.com and tunnels.api.visualstudio.com in " +
	`C:\Windows\System32\drivers\etc\hosts if remote tunnels are not allowed on this machine (see README).`

type options struct {
	configPath     string
	resume         bool
	nonInteractive bool
	dryRun         bool
	noPreflight    bool
	abortOnError   bool
	logPath        string
	showConfig     bool
	writeConfig    string
	showVersion    bool
	verbosity      int
}

func parseFlags(args []string) (*options, error) {
	fs := pflag.NewFlagSet("wslbootstrap", pflag.ContinueOnError)
	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "Path to a configuration file (default "+config.ConfigPath+").")
	fs.BoolVar(&o.resume, "resume", false, "Set by the reentry task after a restart.")
	fs.BoolVar(&o.nonInteractive, "non-interactive", false, "Never show dialogs.")
	fs.BoolVar(&o.dryRun, "dry-run", false, "Log what would change without changing anything.")
	fs.BoolVar(&o.noPreflight, "no-preflight", false, "Skip the preflight and postflight scripts.")
	fs.BoolVar(&o.abortOnError, "abort-on-error", false, "Stop application installs at the first failure.")
	fs.StringVar(&o.logPath, "log-path", "", "Where to write the winget install log.")
	fs.BoolVar(&o.showConfig, "show-config", false, "Display the effective configuration and exit.")
	fs.StringVar(&o.writeConfig, "write-config", "", "Write the effective configuration to a file and exit.")
	fs.BoolVar(&o.showVersion, "version", false, "Print the version and exit.")
	fs.CountVarP(&o.verbosity, "verbose", "v", "Increase verbosity (e.g. -v, -vv)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// applyFlags overrides configuration values with command-line options.
func applyFlags(cfg *config.Configuration, o *options) {
	cfg.DryRun = o.dryRun
	cfg.NonInteractive = cfg.NonInteractive || o.nonInteractive || o.resume
	if o.noPreflight {
		cfg.NoPreflight = true
	}
	if o.abortOnError {
		cfg.FailureAction = config.ActionAbort
	}
	if o.logPath != "" {
		cfg.InstallLogPath = o.logPath
	}
	if o.verbosity > 0 {
		cfg.Verbose = true
		cfg.LogLevel = logging.LevelForVerbosity(o.verbosity).String()
		if o.verbosity >= 2 {
			cfg.Debug = true
		}
	}
}

// taskArguments are passed to this program by the reentry task. The install
// log path is resolved now because the task runs under the SYSTEM profile.
func taskArguments(o *options, installLogPath string) ([]string, error) {
	args := []string{"--resume", "--non-interactive"}
	if o.configPath != "" {
		abs, err := filepath.Abs(o.configPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	if o.noPreflight {
		args = append(args, "--no-preflight")
	}
	if o.abortOnError {
		args = append(args, "--abort-on-error")
	}
	if installLogPath != "" {
		args = append(args, "--log-path", installLogPath)
	}
	return args, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	o, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if o.showVersion {
		version.Fprint(os.Stdout)
		return 0
	}

	console := logging.New(o.verbosity > 0)

	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		console.Error("Failed to load configuration: %v", err)
		return 1
	}
	applyFlags(cfg, o)
	if err := cfg.Validate(); err != nil {
		console.Error("Invalid configuration: %v", err)
		return 1
	}

	if o.showConfig {
		if cfgYaml, err := yaml.Marshal(cfg); err == nil {
			console.Printf("Current configuration (%s):\n%s", cfg.Source, string(cfgYaml))
		}
		return 0
	}

	if o.writeConfig != "" {
		if err := config.SaveConfig(cfg, o.writeConfig); err != nil {
			console.Error("Failed to write configuration: %v", err)
			return 1
		}
		console.Success("Configuration written to %s", o.writeConfig)
		return 0
	}

	runType := "fresh"
	if o.resume {
		runType = "resumed"
	}
	err = logging.Init(logging.LoggerConfig{
		BaseDir:        cfg.LogPath,
		RunType:        runType,
		Component:      "WSLBootstrap",
		Version:        version.Version().Version,
		Level:          logging.ParseLevel(cfg.LogLevel),
		Retention:      logging.DefaultRetentionPolicy(),
		EnableJSON:     true,
		EnableYAML:     true,
		EnableConsole:  cfg.Verbose,
		EnableEventLog: cfg.EventLog && !cfg.DryRun,
	})
	if err != nil {
		console.Warning("File logging unavailable: %v", err)
	}
	defer logging.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	taskArgs, err := taskArguments(o, cfg.InstallLogPath)
	if err != nil {
		console.Error("Failed to resolve configuration path: %v", err)
		return 1
	}
	task, err := tasks.ForCurrentProcess(cfg.TaskName, taskArgs...)
	if err != nil {
		console.Error("%v", err)
		return 1
	}
	if err := blocking.CheckSingleInstance(task.Executable); err != nil {
		logging.Error("Refusing to start", "error", err)
		console.Error("%v", err)
		return 1
	}

	_ = logging.StartSession(runType, map[string]interface{}{
		"config_source": cfg.Source,
		"dry_run":       cfg.DryRun,
		"resume_flag":   o.resume,
		"task_name":     cfg.TaskName,
	})
	logging.Info("WSL bootstrap starting", "version", version.Version().Version, "config", cfg.Source, "dry_run", cfg.DryRun)

	wf := provision.New(cfg, command.NewExecRunner(), task)
	res, err := wf.Run(ctx)

	if res.State.HasResumed != o.resume {
		logging.Debug("Resume flag and task state disagree", "flag", o.resume, "task_present", res.State.HasResumed)
	}
	if res.State.HasResumed {
		logging.SetRunType("resumed")
	}

	status := "completed"
	switch {
	case err != nil:
		status = "failed"
	case res.Outcome == reboot.RebootScheduled:
		status = "reboot_scheduled"
	}
	_ = logging.EndSession(status, res.Summary())
	if dir := logging.GetCurrentLogDir(); dir != "" {
		console.Printf("Run logs: %s\n", dir)
	}

	if err != nil {
		logging.Error("WSL bootstrap failed", "error", err)
		console.Error("%s", provision.Describe(err))
		return provision.ExitCode(err)
	}

	if res.Outcome == reboot.RebootScheduled {
		console.Success("Windows features enabled. The computer will restart in %d seconds and setup will continue automatically.", cfg.RestartDelaySeconds)
		return 0
	}

	if res.Install != nil {
		console.Printf("Applications installed: %d succeeded, %d failed. Details: %s\n",
			res.Install.Succeeded, res.Install.Failed, res.Install.LogPath)
		for _, id := range res.Install.FailedIDs() {
			console.Warning("Failed to install %s", id)
		}
	}
	for _, w := range res.Warnings {
		console.Warning("%s", w)
	}
	logging.Info(hostsAdvisory)
	console.Success("WSL bootstrap complete.")
	return 0
}
