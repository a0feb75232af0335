package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configFileName = "sensor.yaml"
	debounceDelay  = 500 * time.Millisecond
)

// FileStore is an atomic YAML file store with debounced writes.
type FileStore struct {
	mu      sync.Mutex
	path    string
	timer   *time.Timer
	pending *Settings
}

// NewFileStore creates a new YAML store in the given config directory.
func NewFileStore(configDir string) *FileStore {
	return &FileStore{
		path: filepath.Join(configDir, configFileName),
	}
}

// Path returns the file path used by this store.
func (s *FileStore) Path() string { return s.path }

// Load reads the settings from disk. Returns DefaultSettings on ENOENT or
// parse errors.
func (s *FileStore) Load() (*Settings, error) {
	st, err := loadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			def := DefaultSettings()
			return &def, nil
		}
		var perr *parseError
		if errors.As(err, &perr) {
			slog.Warn("config: corrupt YAML config, using defaults", "path", s.path, "err", perr.err)
			def := DefaultSettings()
			return &def, nil
		}
		return nil, err
	}
	return st, nil
}

// parseError marks a file that exists but does not decode.
type parseError struct{ err error }

func (e *parseError) Error() string { return "config: parse: " + e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

func loadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	st := DefaultSettings()
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, &parseError{err: err}
	}
	migrate(&st)
	return &st, nil
}

// Save schedules a debounced write of the settings to disk.
// The actual write happens after 500ms of no further Save calls.
func (s *FileStore) Save(st *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *st
	s.pending = &cp

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(debounceDelay, func() {
		s.mu.Lock()
		p := s.pending
		s.mu.Unlock()
		if p != nil {
			if err := s.writeAtomic(p); err != nil {
				slog.Error("config: failed to write settings", "path", s.path, "err", err)
			}
		}
	})
	return nil
}

// Flush forces an immediate write of any pending settings.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	p := s.pending
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	return s.writeAtomic(p)
}

func (s *FileStore) writeAtomic(st *Settings) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	// Write to temp file, then rename (atomic on Linux)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

var _ Store = (*FileStore)(nil)
