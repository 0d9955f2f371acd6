//go:build !windows

package logging

import "errors"

type eventSink interface {
	write(level LogLevel, msg string)
	close()
}

func openEventSink(string) (eventSink, error) {
	return nil, errors.New("event log is only available on Windows")
}
