package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"gopkg.in/yaml.v3"
)

// Record is the diagnostic state file written across the reboot.
// The reentry task stays the source of truth for resumption.
type Record struct {
	Phase        Phase     `yaml:"phase"`
	Executable   string    `yaml:"executable"`
	TaskName     string    `yaml:"task_name"`
	RegisteredAt time.Time `yaml:"registered_at"`
	BootTime     uint64    `yaml:"boot_time"`
	SessionID    string    `yaml:"session_id,omitempty"`
	ResumedAt    time.Time `yaml:"resumed_at,omitempty"`
}

// Store persists a Record as YAML. A nil *Store is valid and does nothing.
type Store struct {
	path     string
	bootTime func() (uint64, error)
	now      func() time.Time
}

// NewStore returns a Store writing to path.
func NewStore(path string) *Store {
	return &Store{path: path, bootTime: host.BootTime, now: time.Now}
}

// Path returns the state file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load reads the record. A missing file returns (nil, nil).
func (s *Store) Load() (*Record, error) {
	if s == nil {
		return nil, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", s.path, err)
	}
	return &rec, nil
}

// MarkAwaitingReboot records that a restart has been scheduled.
func (s *Store) MarkAwaitingReboot(executable, taskName, sessionID string) error {
	if s == nil {
		return nil
	}
	boot, _ := s.bootTime()
	return s.save(&Record{
		Phase:        PhaseAwaitingReboot,
		Executable:   executable,
		TaskName:     taskName,
		RegisteredAt: s.now().UTC(),
		BootTime:     boot,
		SessionID:    sessionID,
	})
}

// MarkResumed advances the record to Resumed. rebooted reports whether the
// boot time differs from the one stamped before the restart; it is false when
// no record exists or the boot time cannot be read.
func (s *Store) MarkResumed() (rebooted bool, err error) {
	if s == nil {
		return false, nil
	}
	rec, err := s.Load()
	if err != nil || rec == nil {
		return false, err
	}
	if boot, bootErr := s.bootTime(); bootErr == nil && rec.BootTime != 0 {
		rebooted = boot != rec.BootTime
	}
	rec.Phase = PhaseResumed
	rec.ResumedAt = s.now().UTC()
	return rebooted, s.save(rec)
}

// Remove deletes the state file. A missing file is not an error.
func (s *Store) Remove() error {
	if s == nil {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}

func (s *Store) save(rec *Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serializing state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
