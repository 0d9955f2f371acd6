//go:build windows

package reboot

import (
	"fmt"
	"time"

	"github.com/gonutz/w32"
)

// MessageBoxNotifier shows a modal notice on the interactive desktop.
type MessageBoxNotifier struct{}

// Notify blocks until the user dismisses the dialog.
func (MessageBoxNotifier) Notify(delay time.Duration, reason string) {
	text := fmt.Sprintf("%s\n\nThis computer will restart %d seconds after you close this message. Setup continues automatically after the restart.",
		reason, int(delay/time.Second))
	w32.MessageBox(0, text, "WSL Bootstrap", w32.MB_OK|w32.MB_ICONINFORMATION)
}

// NewNotifier returns the desktop notifier.
func NewNotifier() Notifier {
	return MessageBoxNotifier{}
}
