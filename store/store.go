// Package store keeps saved cases. Cases are append-only immutable snapshots;
// the store optionally persists them to a JSON file rewritten atomically on
// every save.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/salulink/authi-claims/caserecord"
	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/metrics"
)

// ErrCaseNotFound is returned for unknown case ids
var ErrCaseNotFound = errors.New("case not found")

// Store is safe for concurrent use
type Store struct {
	mu      sync.RWMutex
	cases   []*caserecord.Record
	byID    map[int64]int
	path    string
	lastID  int64
	nowFunc func() time.Time
}

// New returns a memory-only store
func New() *Store {
	return &Store{
		byID:    make(map[int64]int),
		nowFunc: time.Now,
	}
}

// Open returns a store persisted to path, loading existing cases. A missing
// file is an empty store.
func Open(path string) (*Store, error) {
	s := New()
	s.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logging.Info("No case file yet, starting empty", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read case file: %w", err)
	}

	var cases []*caserecord.Record
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cases); err != nil {
			return nil, fmt.Errorf("failed to decode case file %s: %w", path, err)
		}
	}
	for _, c := range cases {
		if c.ID == 0 {
			continue
		}
		if _, dup := s.byID[c.ID]; dup {
			logging.Warn("Duplicate case id in case file, keeping the first", "id", c.ID)
			continue
		}
		s.byID[c.ID] = len(s.cases)
		s.cases = append(s.cases, c)
		if c.ID > s.lastID {
			s.lastID = c.ID
		}
	}
	logging.Info("Case file loaded", "path", path, "cases", len(s.cases))
	return s, nil
}

// Save stores a snapshot of rec with a new id and creation time and returns
// that snapshot. rec itself is not modified.
func (s *Store) Save(rec *caserecord.Record) (*caserecord.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc().UTC()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}

	snap := rec.Clone()
	snap.ID = id
	snap.CreatedAt = now

	s.byID[id] = len(s.cases)
	s.cases = append(s.cases, snap)

	if err := s.persist(); err != nil {
		s.cases = s.cases[:len(s.cases)-1]
		delete(s.byID, id)
		return nil, err
	}
	s.lastID = id

	metrics.CasesSavedTotal.Inc()
	logging.Info("Case saved", "id", id, "condition", snap.ConfirmedCondition)
	return snap.Clone(), nil
}

// List returns every saved case in save order
func (s *Store) List() []*caserecord.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*caserecord.Record, len(s.cases))
	for i, c := range s.cases {
		out[i] = c.Clone()
	}
	return out
}

// Get returns a copy of the saved case
func (s *Store) Get(id int64) (*caserecord.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrCaseNotFound, id)
	}
	return s.cases[i].Clone(), nil
}

// LoadForEdit returns a detached copy of the case without its identity, so
// saving it again creates a new case
func (s *Store) LoadForEdit(id int64) (*caserecord.Record, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	rec.ID = 0
	rec.CreatedAt = time.Time{}
	return rec, nil
}

// Count returns the number of saved cases
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}

// persist writes all cases to a temp file and renames it over the case file.
// Callers hold the write lock.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.cases, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cases: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create case directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cases-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp case file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write case file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync case file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close case file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace case file: %w", err)
	}
	return nil
}
