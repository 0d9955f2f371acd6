//go:build !windows

package reboot

import (
	"time"

	"github.com/windowsadmins/wslbootstrap/pkg/logging"
)

type logNotifier struct{}

func (logNotifier) Notify(delay time.Duration, reason string) {
	logging.Info(reason, "delay", delay)
}

// NewNotifier returns a notifier that only logs.
func NewNotifier() Notifier {
	return logNotifier{}
}
