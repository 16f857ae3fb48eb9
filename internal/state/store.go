package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Store persists the aggregate as one JSON document. Every read and write
// goes through the same mutex; writes replace the file atomically.
type Store struct {
	path    string
	initial map[string]string
	logger  zerolog.Logger
	mu      sync.Mutex
}

// StoreOption configures Store.
type StoreOption func(*Store)

// WithInitialSettings applies kv to documents created from scratch. An
// existing document keeps whatever the operator stored.
func WithInitialSettings(kv map[string]string) StoreOption {
	return func(s *Store) { s.initial = kv }
}

// NewStore returns a store for path, creating its directory.
func NewStore(path string, logger zerolog.Logger, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	s := &Store{
		path:   path,
		logger: logger.With().Str("component", "state_store").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) fresh() *Aggregate {
	agg := New()
	for k, v := range s.initial {
		if _, err := agg.Settings.Set(k, v); err != nil {
			s.logger.Warn().Err(err).Str("key", k).Msg("Ignoring initial setting")
		}
	}
	return agg
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Load reads the current document.
func (s *Store) Load() (*Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save writes agg.
func (s *Store) Save(agg *Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(agg)
}

// UpdateLocked loads, applies fn and saves under one lock acquisition.
// Nothing is written when fn returns an error.
func (s *Store) UpdateLocked(fn func(*Aggregate) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(agg); err != nil {
		return err
	}
	return s.save(agg)
}

// View runs fn on a freshly loaded document without saving.
func (s *Store) View(fn func(*Aggregate) error) error {
	agg, err := s.Load()
	if err != nil {
		return err
	}
	return fn(agg)
}

// Ping checks that the document is readable, for readiness probes.
func (s *Store) Ping() error {
	_, err := s.Load()
	return err
}

// A missing file is a fresh aggregate. An unreadable document is moved
// aside and replaced by a fresh aggregate so the engine can keep running.
func (s *Store) load() (*Aggregate, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.fresh(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}

	agg := New()
	if err := json.Unmarshal(raw, agg); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if rerr := os.Rename(s.path, backup); rerr != nil {
			s.logger.Error().Err(rerr).Msg("Failed to move corrupt state aside")
		}
		s.logger.Warn().Err(err).Str("backup", backup).Msg("State document unreadable, starting fresh")
		return s.fresh(), nil
	}
	agg.normalize()
	return agg, nil
}

func (s *Store) save(agg *Aggregate) error {
	agg.normalize()
	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state: %w", err)
	}
	return nil
}
