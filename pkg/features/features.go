// pkg/features/features.go - enabling the Windows optional features virtualization needs.

package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/windowsadmins/wslbootstrap/pkg/command"
	"github.com/windowsadmins/wslbootstrap/pkg/config"
	"github.com/windowsadmins/wslbootstrap/pkg/logging"
)

// Descriptor names one optional feature.
type Descriptor struct {
	Identifier   string
	DisplayLabel string
}

// DefaultCatalog returns the features enabled by default, in order.
func DefaultCatalog() []Descriptor {
	return []Descriptor{
		{Identifier: "Microsoft-Hyper-V-All", DisplayLabel: "Hyper-V"},
		{Identifier: "Microsoft-Windows-Subsystem-Linux", DisplayLabel: "Windows Subsystem for Linux"},
		{Identifier: "VirtualMachinePlatform", DisplayLabel: "Virtual Machine Platform"},
	}
}

// FromConfig converts configured features, falling back to DefaultCatalog.
func FromConfig(list []config.Feature) []Descriptor {
	if len(list) == 0 {
		return DefaultCatalog()
	}
	out := make([]Descriptor, 0, len(list))
	for _, f := range list {
		label := f.Label
		if label == "" {
			label = f.Name
		}
		out = append(out, Descriptor{Identifier: f.Name, DisplayLabel: label})
	}
	return out
}

// State is the install state of an optional feature.
type State int

const (
	StateUnknown State = iota
	StateEnabled
	StateDisabled
	StateAbsent
)

func (s State) String() string {
	switch s {
	case StateEnabled:
		return "Enabled"
	case StateDisabled:
		return "Disabled"
	case StateAbsent:
		return "Absent"
	default:
		return "Unknown"
	}
}

// Query reads and changes optional feature state.
type Query interface {
	State(ctx context.Context, identifier string) (State, error)
	Enable(ctx context.Context, identifier string) error
}

// Ensure enables every feature in catalog that is not already enabled.
// It reports whether anything was changed and never restarts the machine.
// Features the OS does not offer are skipped with a warning.
func Ensure(ctx context.Context, q Query, catalog []Descriptor) (bool, error) {
	changed := false
	for _, f := range catalog {
		if err := ctx.Err(); err != nil {
			return changed, err
		}

		st, err := q.State(ctx, f.Identifier)
		if err != nil {
			return changed, fmt.Errorf("querying feature %s: %w", f.Identifier, err)
		}

		switch st {
		case StateEnabled:
			logging.Debug("Feature already enabled", "feature", f.Identifier)
			logging.LogFeatureEvent(f.Identifier, "query", "enabled", "Feature already enabled")
			continue
		case StateAbsent:
			logging.Warn("Feature is not available on this edition, skipping", "feature", f.Identifier, "label", f.DisplayLabel)
			logging.LogFeatureEvent(f.Identifier, "query", "absent", "Feature not available", logging.WithLevel("WARN"))
			continue
		}

		logging.Info("Enabling feature", "feature", f.Identifier, "label", f.DisplayLabel)
		if err := q.Enable(ctx, f.Identifier); err != nil {
			logging.LogFeatureEvent(f.Identifier, "enable", "failed", "Feature enablement failed", logging.WithError(err), logging.WithLevel("ERROR"))
			return changed, fmt.Errorf("enabling feature %s: %w", f.Identifier, err)
		}
		logging.LogFeatureEvent(f.Identifier, "enable", "completed", "Feature enabled")
		changed = true
	}
	return changed, nil
}

// DISM exit code for success with a pending restart.
const exitSuccessRebootRequired = 3010

// SystemQuery queries feature state through WMI and enables features with DISM.
type SystemQuery struct {
	runner command.Runner
	DryRun bool
}

// NewSystemQuery returns the production Query.
func NewSystemQuery(runner command.Runner) *SystemQuery {
	return &SystemQuery{runner: runner}
}

// Enable runs DISM with /All so parent features are enabled too, and /NoRestart.
func (s *SystemQuery) Enable(ctx context.Context, identifier string) error {
	args := []string{"/Online", "/Enable-Feature", "/FeatureName:" + identifier, "/All", "/NoRestart"}
	if s.DryRun {
		logging.Info("Dry run, not running DISM", "command", command.Line("DISM.exe", args...))
		return nil
	}
	res, err := s.runner.Run(ctx, "DISM.exe", args...)
	if err != nil {
		if code, ok := command.ExitCode(err); ok && code == exitSuccessRebootRequired {
			logging.Debug("DISM reports a restart is required", "feature", identifier)
			return nil
		}
		return err
	}
	logging.Debug("DISM output", "feature", identifier, "output", res.String())
	return nil
}

// parseDISMState reads the State line of `DISM /Get-FeatureInfo` output.
func parseDISMState(output string) State {
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "State") {
			continue
		}
		switch v := strings.ToLower(strings.TrimSpace(value)); {
		case v == "enabled":
			return StateEnabled
		case strings.HasPrefix(v, "enable pending"):
			return StateEnabled
		case v == "disabled", strings.HasPrefix(v, "disable pending"), strings.HasPrefix(v, "disabled with payload removed"):
			return StateDisabled
		}
	}
	return StateUnknown
}

// dismState is the fallback when WMI cannot answer.
func (s *SystemQuery) dismState(ctx context.Context, identifier string) (State, error) {
	res, err := s.runner.Run(ctx, "DISM.exe", "/Online", "/Get-FeatureInfo", "/FeatureName:"+identifier, "/English")
	if err != nil {
		if strings.Contains(res.String(), "Feature name "+identifier+" is unknown") {
			return StateAbsent, nil
		}
		return StateUnknown, err
	}
	st := parseDISMState(res.String())
	if st == StateUnknown {
		return st, fmt.Errorf("could not read state of %s from DISM output", identifier)
	}
	return st, nil
}
