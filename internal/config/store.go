package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LastPrinter is the most recently used printer, kept for hot start.
type LastPrinter struct {
	Name    string    `json:"name"`
	Host    string    `json:"host"`
	Port    int       `json:"port"`
	SavedAt time.Time `json:"savedAt"`
}

// State is everything persisted between runs.
type State struct {
	LastPrinter *LastPrinter `json:"lastPrinter,omitempty"`
	Media       string       `json:"media,omitempty"`
}

// Store provides thread-safe state persistence backed by a JSON file.
type Store struct {
	mu    sync.RWMutex
	state State
	path  string
	now   func() time.Time
}

// NewStore creates a Store that persists to dataDir/settings.json.
// If the file does not exist or is invalid, an empty state is used.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	s := &Store{
		path: filepath.Join(dataDir, "settings.json"),
		now:  time.Now,
	}
	s.load()
	return s, nil
}

// NewMemoryStore creates a Store that keeps state in memory only.
func NewMemoryStore() *Store {
	return &Store{now: time.Now}
}

// LoadLastPrinter returns the saved printer, if any. Freshness is up to the
// caller.
func (s *Store) LoadLastPrinter() (LastPrinter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.LastPrinter == nil {
		return LastPrinter{}, false
	}
	return *s.state.LastPrinter, true
}

// SaveLastPrinter records a printer with the current time and persists it.
func (s *Store) SaveLastPrinter(name, host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastPrinter = &LastPrinter{Name: name, Host: host, Port: port, SavedAt: s.now()}
	slog.Debug("saved last printer", "printer", name, "host", host, "port", port)
	return s.save()
}

// Media returns the saved media size, or "" when none was saved.
func (s *Store) Media() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Media
}

// SetMedia saves the preferred media size.
func (s *Store) SetMedia(media string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Media = media
	return s.save()
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return // file missing is OK
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("invalid settings file, ignoring", "path", s.path, "err", err)
		return
	}
	s.state = st
}

func (s *Store) save() error {
	if s.path == "" {
		return nil // memory-only mode
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
