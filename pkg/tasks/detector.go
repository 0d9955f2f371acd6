package tasks

import (
	"context"

	"github.com/windowsadmins/wslbootstrap/pkg/logging"
)

// Detector decides whether this invocation continues a run interrupted by a restart.
type Detector struct {
	registry Registry
	name     string
}

// NewDetector returns a Detector probing for the task called name.
func NewDetector(registry Registry, name string) *Detector {
	if name == "" {
		name = DefaultTaskName
	}
	return &Detector{registry: registry, name: name}
}

// Detect reports whether the reentry task is registered. Lookup errors count as absent.
func (d *Detector) Detect(ctx context.Context) bool {
	exists, err := d.registry.Exists(ctx, d.name)
	if err != nil {
		logging.Warn("Could not query reentry task, treating run as fresh", "task", d.name, "error", err)
		return false
	}
	logging.Debug("Reentry task lookup", "task", d.name, "exists", exists)
	return exists
}
