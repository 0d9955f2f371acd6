//go:build windows

package logging

import (
	"strings"

	"golang.org/x/sys/windows/svc/eventlog"
)

const eventID = 1

type eventSink interface {
	write(level LogLevel, msg string)
	close()
}

type windowsEventSink struct {
	log *eventlog.Log
}

// openEventSink registers source in the Application log (idempotent) and opens it.
// The registration is left in place after the run so the recorded entries stay
// readable in Event Viewer.
func openEventSink(source string) (eventSink, error) {
	err := eventlog.InstallAsEventCreate(source, eventlog.Error|eventlog.Warning|eventlog.Info)
	if err != nil && !strings.Contains(err.Error(), "exists") {
		return nil, err
	}
	l, err := eventlog.Open(source)
	if err != nil {
		return nil, err
	}
	return &windowsEventSink{log: l}, nil
}

func (s *windowsEventSink) write(level LogLevel, msg string) {
	switch level {
	case LevelError:
		_ = s.log.Error(eventID, msg)
	case LevelWarn:
		_ = s.log.Warning(eventID, msg)
	default:
		_ = s.log.Info(eventID, msg)
	}
}

func (s *windowsEventSink) close() {
	_ = s.log.Close()
}
