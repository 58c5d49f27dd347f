// Package profile persists named BuildConfig snapshots in a single JSON
// document under the user's configuration directory.
package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pypackstudio/pypack/internal/config"
)

const (
	appDir   = "pypack"
	fileName = "profiles.json"

	cacheSize = 128
)

var (
	ErrNotFound      = errors.New("profile not found")
	ErrExists        = errors.New("profile already exists")
	ErrInvalidName   = errors.New("invalid profile name")
	ErrInvalidFormat = errors.New("invalid profile document")
)

// Store reads and writes the profile document. Every operation re-reads the
// file so concurrent CLI invocations see each other's writes; decoded
// profiles are cached until the next write through this Store.
type Store struct {
	path   string
	logger hclog.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, config.BuildConfig]
}

// Open returns a Store backed by path, or by DefaultPath when path is empty.
// The parent directory is created if missing.
func Open(path string, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("determine profile store path: %w", err)
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create profile directory: %w", err)
	}

	cache, err := lru.New[string, config.BuildConfig](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		path:   path,
		logger: logger.Named("profiles"),
		cache:  cache,
	}, nil
}

// DefaultPath returns the platform-specific location of the profile document.
func DefaultPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		appdata := os.Getenv("APPDATA")
		if appdata == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		return filepath.Join(appdata, appDir, fileName), nil

	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", appDir, fileName), nil

	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, appDir, fileName), nil
	}
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// List returns the profile names in sorted order.
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Get returns a copy of the named profile.
func (s *Store) Get(name string) (config.BuildConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg, ok := s.cache.Get(name); ok {
		return cfg.Clone(), nil
	}

	doc, err := s.load()
	if err != nil {
		return config.BuildConfig{}, err
	}
	raw, ok := doc[name]
	if !ok {
		return config.BuildConfig{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	cfg, err := decodeProfile(name, raw)
	if err != nil {
		return config.BuildConfig{}, err
	}
	s.cache.Add(name, cfg)
	return cfg.Clone(), nil
}

// Save stores cfg under name, replacing any existing profile.
func (s *Store) Save(name string, cfg config.BuildConfig) error {
	return s.put(name, cfg, true)
}

// Create stores cfg under name and fails if the name is taken.
func (s *Store) Create(name string, cfg config.BuildConfig) error {
	return s.put(name, cfg, false)
}

func (s *Store) put(name string, cfg config.BuildConfig, replace bool) error {
	if err := checkName(name); err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc[name]; ok && !replace {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	doc[name] = raw
	if err := s.write(doc); err != nil {
		return err
	}
	s.logger.Info("profile saved", "name", name)
	return nil
}

// Delete removes the named profile. Deleting a missing profile is a no-op.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc[name]; !ok {
		return nil
	}
	delete(doc, name)
	if err := s.write(doc); err != nil {
		return err
	}
	s.logger.Info("profile deleted", "name", name)
	return nil
}

// Export writes the whole document to path.
func (s *Store) Export(path string) error {
	s.mu.Lock()
	doc, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export profiles: %w", err)
	}
	s.logger.Info("profiles exported", "path", path, "count", len(doc))
	return nil
}

// Import replaces the store with the document at path. The file must hold a
// JSON object whose values are BuildConfig snapshots.
func (s *Store) Import(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("import profiles: %w", err)
	}
	doc, err := parseDocument(data)
	if err != nil {
		return err
	}
	for name, raw := range doc {
		if err := checkName(name); err != nil {
			return err
		}
		if _, err := decodeProfile(name, raw); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(doc); err != nil {
		return err
	}
	s.logger.Info("profiles imported", "path", path, "count", len(doc))
	return nil
}

// load reads the document. A missing file is an empty store; an unreadable
// or corrupt one is logged and also treated as empty.
func (s *Store) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile store: %w", err)
	}
	doc, err := parseDocument(data)
	if err != nil {
		s.logger.Warn("ignoring unreadable profile store", "path", s.path, "error", err)
		return map[string]json.RawMessage{}, nil
	}
	return doc, nil
}

// write replaces the document atomically and drops every cached profile.
func (s *Store) write(doc map[string]json.RawMessage) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write profile temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename profile file: %w", err)
	}
	s.cache.Purge()
	return nil
}

func parseDocument(data []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidFormat)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	return doc, nil
}

func encodeDocument(doc map[string]json.RawMessage) ([]byte, error) {
	// MarshalIndent sorts map keys.
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal profiles: %w", err)
	}
	return append(data, '\n'), nil
}

// decodeProfile decodes a snapshot on top of the defaults, so fields missing
// from older snapshots keep their default values.
func decodeProfile(name string, raw json.RawMessage) (config.BuildConfig, error) {
	cfg := config.Default()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return config.BuildConfig{}, fmt.Errorf("%w: profile %q: %w", ErrInvalidFormat, name, err)
	}
	return cfg, nil
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	return nil
}
