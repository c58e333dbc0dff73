// Package store persists small studymate settings and interview history in
// a flat string-keyed JSON file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rbright/studymate/internal/transcript"
)

// Keys written by studymate.
const (
	KeyUserName         = "userName"
	KeyTheme            = "theme"
	KeyInterviewHistory = "interviewHistory"
)

// Accepted theme values.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// PersistenceReadError reports a stored value that could not be decoded.
type PersistenceReadError struct {
	Key string
	Err error
}

func (e *PersistenceReadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("read stored %q: %v", e.Key, e.Err)
}

func (e *PersistenceReadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Store is a JSON-file key-value store with per-key change observers.
type Store struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	values map[string]string

	subsMu sync.Mutex
	subs   map[string]map[int]func(string)
	nextID int
}

// ResolvePath applies explicit/XDG/home fallback rules for store.json.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, "studymate", "store.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for store fallback")
	}
	return filepath.Join(home, ".local", "share", "studymate", "store.json"), nil
}

// Open loads the store at path. A missing file is an empty store; an
// unreadable one is logged and treated as empty.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Store{
		path:   path,
		logger: logger,
		values: map[string]string{},
		subs:   map[string]map[int]func(string){},
	}

	values, err := readFile(path)
	switch {
	case err == nil:
		s.values = values
	case errors.Is(err, os.ErrNotExist), errors.Is(err, errEmptyFile):
	case isDecodeError(err):
		logger.Warn("store file malformed; starting empty", "path", path, "error", err.Error())
	default:
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns the raw value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

// Set stores value under key, persists the file, and notifies observers of key.
func (s *Store) Set(key string, value string) error {
	s.mu.Lock()
	if current, ok := s.values[key]; ok && current == value {
		s.mu.Unlock()
		return nil
	}
	s.values[key] = value
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(key, value)
	return nil
}

// Delete removes key and notifies its observers with an empty value.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	if _, ok := s.values[key]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.values, key)
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(key, "")
	return nil
}

// Subscribe registers fn for changes to key and returns its unsubscribe func.
func (s *Store) Subscribe(key string, fn func(value string)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if s.subs[key] == nil {
		s.subs[key] = map[int]func(string){}
	}
	id := s.nextID
	s.nextID++
	s.subs[key][id] = fn

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs[key], id)
	}
}

// UserName returns the saved profile name.
func (s *Store) UserName() string {
	name, _ := s.Get(KeyUserName)
	return name
}

// SetUserName saves the profile name.
func (s *Store) SetUserName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return s.Delete(KeyUserName)
	}
	return s.Set(KeyUserName, name)
}

// Theme returns the saved theme, defaulting to light.
func (s *Store) Theme() string {
	theme, _ := s.Get(KeyTheme)
	if theme != ThemeDark {
		return ThemeLight
	}
	return theme
}

// SetTheme saves theme, which must be light or dark.
func (s *Store) SetTheme(theme string) error {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("theme must be one of: %s, %s", ThemeLight, ThemeDark)
	}
	return s.Set(KeyTheme, theme)
}

// LoadHistory decodes saved interview turns. Malformed data returns
// *PersistenceReadError.
func (s *Store) LoadHistory() ([]transcript.Turn, error) {
	raw, ok := s.Get(KeyInterviewHistory)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var turns []transcript.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, &PersistenceReadError{Key: KeyInterviewHistory, Err: err}
	}
	return turns, nil
}

// SaveHistory rewrites the saved interview turns.
func (s *Store) SaveHistory(turns []transcript.Turn) error {
	if turns == nil {
		turns = []transcript.Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode interview history: %w", err)
	}
	return s.Set(KeyInterviewHistory, string(data))
}

// ClearHistory removes the saved interview turns.
func (s *Store) ClearHistory() error {
	return s.Delete(KeyInterviewHistory)
}

// reload re-reads the file and notifies observers of every key that changed.
// An empty file is a writer mid-rewrite and leaves the store untouched; only
// a missing file clears it.
func (s *Store) reload() error {
	values, err := readFile(s.path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		values = map[string]string{}
	case errors.Is(err, errEmptyFile):
		s.logger.Debug("store file empty; waiting for rewrite", "path", s.path)
		return nil
	default:
		return err
	}

	s.mu.Lock()
	changed := map[string]string{}
	for key, value := range values {
		if current, ok := s.values[key]; !ok || current != value {
			changed[key] = value
		}
	}
	for key := range s.values {
		if _, ok := values[key]; !ok {
			changed[key] = ""
		}
	}
	s.values = values
	s.mu.Unlock()

	for key, value := range changed {
		s.notify(key, value)
	}
	return nil
}

func (s *Store) notify(key string, value string) {
	s.subsMu.Lock()
	fns := make([]func(string), 0, len(s.subs[key]))
	for _, fn := range s.subs[key] {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
}

// persistLocked writes the file through a temp file and rename. s.mu must be held.
func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	data, err := json.MarshalIndent(maps.Clone(s.values), "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

var errEmptyFile = errors.New("store file is empty")

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var target *decodeError
	return errors.As(err, &target)
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, errEmptyFile
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, &decodeError{err: fmt.Errorf("decode store %q: %w", path, err)}
	}
	return values, nil
}
