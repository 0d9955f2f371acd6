// pkg/logging/events.go - session summary and event stream for a bootstrap run

package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// StructuredLogger writes session.json and appends to events.jsonl in a run directory.
type StructuredLogger struct {
	mu          sync.Mutex
	dir         string
	session     *LogSession
	sessionFile *os.File
	eventsFile  *os.File
}

// LogSession describes one invocation of the bootstrap workflow.
type LogSession struct {
	SessionID   string                 `json:"session_id"`
	StartTime   time.Time              `json:"start_time"`
	EndTime     *time.Time             `json:"end_time,omitempty"`
	RunType     string                 `json:"run_type"` // fresh, resumed
	Status      string                 `json:"status"`   // running, completed, reboot_scheduled, failed
	Summary     SessionSummary         `json:"summary"`
	Environment map[string]interface{} `json:"environment"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// SessionSummary provides high-level run metrics.
type SessionSummary struct {
	FeaturesChanged bool          `json:"features_changed"`
	RebootScheduled bool          `json:"reboot_scheduled"`
	Resumed         bool          `json:"resumed"`
	MutatingSteps   int           `json:"mutating_steps"`
	Successes       int           `json:"successes"`
	Failures        int           `json:"failures"`
	Duration        time.Duration `json:"duration"`
	PackagesHandled []string      `json:"packages_handled"`
	Warnings        []string      `json:"warnings,omitempty"`
}

// LogEvent is one action within a session.
type LogEvent struct {
	EventID   string                 `json:"event_id"`
	SessionID string                 `json:"session_id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	EventType string                 `json:"event_type"` // feature, task, reboot, wsl, install, script
	Package   string                 `json:"package,omitempty"`
	Action    string                 `json:"action"`
	Status    string                 `json:"status"` // started, completed, skipped, failed
	Message   string                 `json:"message"`
	Duration  *time.Duration         `json:"duration,omitempty"`
	ExitCode  *int                   `json:"exit_code,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Source    SourceInfo             `json:"source"`
}

// SourceInfo tracks where an event was raised.
type SourceInfo struct {
	File     string `json:"file"`
	Function string `json:"function"`
	Line     int    `json:"line"`
}

// NewStructuredLogger prepares a structured logger rooted at dir.
func NewStructuredLogger(dir string) (*StructuredLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &StructuredLogger{dir: dir}, nil
}

// StartSession creates session.json and the event stream.
func (sl *StructuredLogger) StartSession(sessionID, runType string, metadata map[string]interface{}) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.session != nil {
		return fmt.Errorf("session %s already started", sl.session.SessionID)
	}

	sessionFile, err := os.Create(filepath.Join(sl.dir, "session.json"))
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	eventsFile, err := os.OpenFile(filepath.Join(sl.dir, "session-events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		sessionFile.Close()
		return fmt.Errorf("failed to create events file: %w", err)
	}

	sl.sessionFile = sessionFile
	sl.eventsFile = eventsFile
	sl.session = &LogSession{
		SessionID:   sessionID,
		StartTime:   time.Now(),
		RunType:     runType,
		Status:      "running",
		Environment: gatherEnvironmentInfo(),
		Metadata:    metadata,
		Summary:     SessionSummary{PackagesHandled: []string{}},
	}
	return sl.writeSession()
}

// LogEvent appends event to the stream.
func (sl *StructuredLogger) LogEvent(event LogEvent) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.eventsFile == nil {
		return fmt.Errorf("no active session for logging event")
	}
	event.SessionID = sl.session.SessionID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.EventID == "" {
		event.EventID = fmt.Sprintf("%s-%d", sl.session.SessionID, event.Timestamp.UnixNano())
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := sl.eventsFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return sl.eventsFile.Sync()
}

// EndSession records the final status and summary.
func (sl *StructuredLogger) EndSession(status string, summary SessionSummary) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.session == nil {
		return fmt.Errorf("no active session to end")
	}
	now := time.Now()
	summary.Duration = now.Sub(sl.session.StartTime)
	if summary.PackagesHandled == nil {
		summary.PackagesHandled = []string{}
	}
	sl.session.EndTime = &now
	sl.session.Status = status
	sl.session.Summary = summary
	return sl.writeSession()
}

// Close closes the session files.
func (sl *StructuredLogger) Close() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.sessionFile != nil {
		sl.sessionFile.Close()
		sl.sessionFile = nil
	}
	if sl.eventsFile != nil {
		sl.eventsFile.Close()
		sl.eventsFile = nil
	}
}

// Session returns a copy of the current session, if any.
func (sl *StructuredLogger) Session() (LogSession, bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.session == nil {
		return LogSession{}, false
	}
	return *sl.session, true
}

// writeSession rewrites session.json in place.
func (sl *StructuredLogger) writeSession() error {
	if sl.sessionFile == nil {
		return fmt.Errorf("no session file open")
	}
	if _, err := sl.sessionFile.Seek(0, 0); err != nil {
		return err
	}
	if err := sl.sessionFile.Truncate(0); err != nil {
		return err
	}
	encoder := json.NewEncoder(sl.sessionFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(sl.session); err != nil {
		return err
	}
	return sl.sessionFile.Sync()
}

// gatherEnvironmentInfo collects host facts for the session header.
func gatherEnvironmentInfo() map[string]interface{} {
	env := map[string]interface{}{
		"platform":   runtime.GOOS,
		"arch":       runtime.GOARCH,
		"process_id": os.Getpid(),
	}
	if info, err := host.Info(); err == nil {
		env["hostname"] = info.Hostname
		env["os_platform"] = info.Platform
		env["os_version"] = info.PlatformVersion
		env["kernel_version"] = info.KernelVersion
		env["boot_time"] = time.Unix(int64(info.BootTime), 0).Format(time.RFC3339)
	} else if hostname, err := os.Hostname(); err == nil {
		env["hostname"] = hostname
	}
	if user, ok := os.LookupEnv("USERNAME"); ok {
		env["user"] = user
	}
	if domain, ok := os.LookupEnv("USERDOMAIN"); ok {
		env["domain"] = domain
	}
	return env
}

// EventOption customizes a LogEvent.
type EventOption func(*LogEvent)

// WithPackage sets the package identifier.
func WithPackage(name string) EventOption {
	return func(e *LogEvent) { e.Package = name }
}

// WithDuration sets the duration.
func WithDuration(d time.Duration) EventOption {
	return func(e *LogEvent) { e.Duration = &d }
}

// WithExitCode sets the exit status of an external tool.
func WithExitCode(code int) EventOption {
	return func(e *LogEvent) { e.ExitCode = &code }
}

// WithError records err's message.
func WithError(err error) EventOption {
	return func(e *LogEvent) {
		if err != nil {
			e.Error = err.Error()
		}
	}
}

// WithContext adds a context value.
func WithContext(key string, value interface{}) EventOption {
	return func(e *LogEvent) {
		if e.Context == nil {
			e.Context = make(map[string]interface{})
		}
		e.Context[key] = value
	}
}

// WithLevel sets the event level.
func WithLevel(level string) EventOption {
	return func(e *LogEvent) { e.Level = level }
}

// newEvent builds an event with caller information, skipping skip frames.
func newEvent(skip int, eventType, action, status, message string, opts ...EventOption) LogEvent {
	event := LogEvent{
		EventType: eventType,
		Action:    action,
		Status:    status,
		Message:   message,
		Level:     "INFO",
	}
	if pc, file, line, ok := runtime.Caller(skip); ok {
		event.Source.File = filepath.Base(file)
		event.Source.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			event.Source.Function = filepath.Base(fn.Name())
		}
	}
	for _, opt := range opts {
		opt(&event)
	}
	return event
}
