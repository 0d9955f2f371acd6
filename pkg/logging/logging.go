// pkg/logging/logging.go - timestamped session logging for WSLBootstrap
//
// Every run gets its own directory under the base log directory
// (YYYY-MM-DD-HHMMss) holding:
// - bootstrap.log: human readable lines, also echoed to the console
// - events.jsonl: one JSON LogEntry per line
// - bootstrap.yaml: the same entries as YAML documents
// - session.json: start/end summary of the run
//
// Warnings and errors are mirrored to the Windows Application event log
// when enabled, since the post-reboot run has no console.

package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG", "TRACE":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// LevelForVerbosity maps the -v count: 0 => WARN, 1 => INFO, 2+ => DEBUG.
func LevelForVerbosity(v int) LogLevel {
	switch {
	case v <= 0:
		return LevelWarn
	case v == 1:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// LogEntry is the structured form of one log line.
type LogEntry struct {
	Time       int64                  `json:"time" yaml:"time"`
	Timestamp  string                 `json:"timestamp" yaml:"timestamp"`
	Level      string                 `json:"level" yaml:"level"`
	Message    string                 `json:"message" yaml:"message"`
	Component  string                 `json:"component" yaml:"component"`
	PID        int64                  `json:"pid" yaml:"pid"`
	Hostname   string                 `json:"hostname" yaml:"hostname"`
	Version    string                 `json:"version" yaml:"version"`
	SessionID  string                 `json:"session_id" yaml:"session_id"`
	RunType    string                 `json:"run_type" yaml:"run_type"`
	Properties map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// RetentionPolicy defines how many old run directories survive.
type RetentionPolicy struct {
	KeepRuns   int // newest N run directories are always kept
	MaxAgeDays int // older directories beyond KeepRuns are deleted
}

// DefaultRetentionPolicy returns the retention used by the CLI.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{KeepRuns: 10, MaxAgeDays: 30}
}

// LoggerConfig holds configuration for the session logger.
type LoggerConfig struct {
	BaseDir        string
	RunType        string // fresh or resumed
	SessionID      string
	Component      string
	Version        string
	Level          LogLevel
	Retention      RetentionPolicy
	EnableJSON     bool
	EnableYAML     bool
	EnableConsole  bool
	EnableEventLog bool
	Console        io.Writer // defaults to os.Stdout
}

// Logger writes one run's log files.
type Logger struct {
	mu           sync.Mutex
	logger       *log.Logger
	logLevel     LogLevel
	logFile      *os.File
	jsonFile     *os.File
	yamlFile     *os.File
	config       LoggerConfig
	sessionStart time.Time
	logDir       string
	hostname     string
	events       eventSink

	structured *StructuredLogger
}

var (
	instance *Logger
	once     sync.Once
)

const runDirLayout = "2006-01-02-150405"

// Init initializes the package logger. Only the first call has any effect.
func Init(cfg LoggerConfig) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLogger(cfg)
	})
	return initErr
}

func generateSessionID(now time.Time) string {
	return fmt.Sprintf("wslbootstrap-%d-%s", now.Unix(), now.Format(runDirLayout))
}

func newLogger(cfg LoggerConfig) (*Logger, error) {
	sessionStart := time.Now()
	if cfg.SessionID == "" {
		cfg.SessionID = generateSessionID(sessionStart)
	}
	if cfg.Component == "" {
		cfg.Component = "wslbootstrap"
	}
	if cfg.Console == nil {
		cfg.Console = os.Stdout
	}

	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base log directory: %w", err)
	}

	// A resumed run can start within the same second as a dry run; keep both.
	logDir := filepath.Join(cfg.BaseDir, sessionStart.Format(runDirLayout))
	if _, err := os.Stat(logDir); err == nil {
		logDir = fmt.Sprintf("%s-%d", logDir, os.Getpid())
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	l := &Logger{
		config:       cfg,
		sessionStart: sessionStart,
		logDir:       logDir,
		hostname:     hostname,
		logLevel:     cfg.Level,
	}

	if err := l.initializeLogFiles(); err != nil {
		l.close()
		return nil, err
	}

	if cfg.EnableConsole {
		l.logger = log.New(io.MultiWriter(cfg.Console, l.logFile), "", 0)
	} else {
		l.logger = log.New(l.logFile, "", 0)
	}

	if cfg.EnableEventLog {
		sink, err := openEventSink(cfg.Component)
		if err != nil {
			l.logger.Printf("[%s] WARN  event log unavailable: %v", sessionStart.Format("2006-01-02 15:04:05"), err)
		} else {
			l.events = sink
		}
	}

	structured, err := NewStructuredLogger(logDir)
	if err != nil {
		l.close()
		return nil, err
	}
	l.structured = structured

	performCleanup(cfg.BaseDir, logDir, cfg.Retention, sessionStart)
	return l, nil
}

func (l *Logger) initializeLogFiles() error {
	var err error

	l.logFile, err = os.OpenFile(filepath.Join(l.logDir, "bootstrap.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open main log file: %w", err)
	}

	if l.config.EnableJSON {
		l.jsonFile, err = os.OpenFile(filepath.Join(l.logDir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open JSON log file: %w", err)
		}
	}

	if l.config.EnableYAML {
		l.yamlFile, err = os.OpenFile(filepath.Join(l.logDir, "bootstrap.yaml"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open YAML log file: %w", err)
		}
	}
	return nil
}

// performCleanup removes old run directories beyond the retention policy.
// The current run directory is never removed.
func performCleanup(baseDir, current string, retention RetentionPolicy, now time.Time) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return
	}

	var runs []string
	for _, entry := range entries {
		if !entry.IsDir() || len(entry.Name()) < len(runDirLayout) {
			continue
		}
		if _, err := time.ParseInLocation(runDirLayout, entry.Name()[:len(runDirLayout)], time.Local); err != nil {
			continue
		}
		if filepath.Join(baseDir, entry.Name()) == current {
			continue
		}
		runs = append(runs, entry.Name())
	}

	// Newest first; the layout sorts chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))

	maxAge := time.Duration(retention.MaxAgeDays) * 24 * time.Hour
	for i, name := range runs {
		if i < retention.KeepRuns {
			continue
		}
		ts, _ := time.ParseInLocation(runDirLayout, name[:len(runDirLayout)], time.Local)
		if retention.MaxAgeDays > 0 && now.Sub(ts) <= maxAge {
			continue
		}
		_ = os.RemoveAll(filepath.Join(baseDir, name))
	}
}

func (l *Logger) createLogEntry(level LogLevel, message string, properties map[string]interface{}) LogEntry {
	now := time.Now()
	return LogEntry{
		Time:       now.Unix(),
		Timestamp:  now.Format(time.RFC3339),
		Level:      level.String(),
		Message:    message,
		Component:  l.config.Component,
		PID:        int64(os.Getpid()),
		Hostname:   l.hostname,
		Version:    l.config.Version,
		SessionID:  l.config.SessionID,
		RunType:    l.config.RunType,
		Properties: properties,
	}
}

func (l *Logger) logMessage(level LogLevel, message string, keyValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logger == nil || level > l.logLevel {
		return
	}

	properties := make(map[string]interface{})
	for i := 0; i+1 < len(keyValues); i += 2 {
		v := keyValues[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		properties[fmt.Sprintf("%v", keyValues[i])] = v
	}
	if len(properties) == 0 {
		properties = nil
	}

	entry := l.createLogEntry(level, message, properties)
	l.logger.Println(formatLine(entry, keyValues))

	if l.jsonFile != nil {
		if data, err := json.Marshal(entry); err == nil {
			l.jsonFile.Write(append(data, '\n'))
		}
	}
	if l.yamlFile != nil {
		if data, err := yaml.Marshal(entry); err == nil {
			l.yamlFile.WriteString("---\n" + string(data))
		}
	}
	if l.events != nil && level <= LevelWarn {
		l.events.write(level, formatLine(entry, keyValues))
	}

	l.syncFiles()
}

// formatLine renders an entry in the bootstrap.log format.
func formatLine(entry LogEntry, keyValues []interface{}) string {
	ts := time.Unix(entry.Time, 0).Format("2006-01-02 15:04:05")
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %-5s %s", ts, entry.Level, entry.Message)

	// Long property lists go on their own lines.
	multiline := len(keyValues)/2 > 4
	for i := 0; i+1 < len(keyValues); i += 2 {
		if multiline {
			fmt.Fprintf(&b, "\n        %v: %v", keyValues[i], keyValues[i+1])
		} else {
			fmt.Fprintf(&b, " %v=%v", keyValues[i], keyValues[i+1])
		}
	}
	return b.String()
}

func (l *Logger) syncFiles() {
	for _, f := range []*os.File{l.logFile, l.jsonFile, l.yamlFile} {
		if f != nil {
			f.Sync()
		}
	}
}

func (l *Logger) close() {
	for _, f := range []**os.File{&l.logFile, &l.jsonFile, &l.yamlFile} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
	if l.events != nil {
		l.events.close()
		l.events = nil
	}
}

// CloseLogger flushes and closes the package logger.
func CloseLogger() {
	if instance == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	if instance.structured != nil {
		instance.structured.Close()
	}
	instance.close()
}

func logOrPrint(level LogLevel, message string, keyValues []interface{}) {
	if instance == nil {
		entry := LogEntry{Time: time.Now().Unix(), Level: level.String(), Message: message}
		fmt.Fprintln(os.Stderr, formatLine(entry, keyValues))
		return
	}
	instance.logMessage(level, message, keyValues...)
}

// Info logs informational messages.
func Info(message string, keyValues ...interface{}) {
	logOrPrint(LevelInfo, message, keyValues)
}

// Debug logs debug messages.
func Debug(message string, keyValues ...interface{}) {
	if instance == nil {
		return
	}
	instance.logMessage(LevelDebug, message, keyValues...)
}

// Warn logs warning messages.
func Warn(message string, keyValues ...interface{}) {
	logOrPrint(LevelWarn, message, keyValues)
}

// Error logs error messages.
func Error(message string, keyValues ...interface{}) {
	logOrPrint(LevelError, message, keyValues)
}

// GetCurrentLogDir returns the current run's log directory.
func GetCurrentLogDir() string {
	if instance == nil {
		return ""
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	return instance.logDir
}

// GetSessionID returns the current session ID.
func GetSessionID() string {
	if instance == nil {
		return ""
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	return instance.config.SessionID
}

// SetRunType updates the run type recorded on later entries.
func SetRunType(runType string) {
	if instance == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	instance.config.RunType = runType
}
