// Package draft persists in-progress composition work so a session can be
// interrupted and resumed. One snapshot per namespace key, overwritten in
// place; saves are debounced so a burst of edits costs one write.
package draft

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"RosterMail/internal/models"
)

// BlobStore is the durable key/value storage the draft layer writes through.
type BlobStore interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// FileBlobStore keeps each key as a JSON file under dir. Coarse locking is
// enough: a draft belongs to a single session.
type FileBlobStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileBlobStore(dir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("draft store dir: %w", err)
	}
	return &FileBlobStore{dir: dir}, nil
}

func (s *FileBlobStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileBlobStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *FileBlobStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.path(key), value, 0o644)
}

func (s *FileBlobStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Store debounces snapshot writes. The namespace key is injected so multiple
// draft contexts can coexist instead of colliding on one shared constant.
type Store struct {
	blobs BlobStore
	key   string
	quiet time.Duration
	log   *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending *models.DraftSnapshot
}

func NewStore(blobs BlobStore, key string, quiet time.Duration, log *zap.Logger) *Store {
	return &Store{blobs: blobs, key: key, quiet: quiet, log: log}
}

// Save schedules the snapshot for writing. A new call before the quiet
// interval elapses replaces the pending snapshot and rearms the timer, so
// only the latest state of an edit burst reaches disk.
func (s *Store) Save(snap models.DraftSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.SavedAt = time.Now()
	s.pending = &snap
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, s.flushPending)
}

func (s *Store) flushPending() {
	s.mu.Lock()
	snap := s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()
	if snap == nil {
		return
	}
	if err := s.write(snap); err != nil {
		s.log.Error("draft autosave failed", zap.Error(err))
	}
}

// Flush writes any pending snapshot immediately.
func (s *Store) Flush() error {
	s.mu.Lock()
	snap := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	if snap == nil {
		return nil
	}
	return s.write(snap)
}

func (s *Store) write(snap *models.DraftSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := s.blobs.Put(s.key, data); err != nil {
		return fmt.Errorf("write draft: %w", err)
	}
	return nil
}

// Load returns the persisted snapshot, or nil when none exists. The sent flag
// of individual recipients is deliberately absent from snapshots; callers
// must recompute it from the active campaign's logs.
func (s *Store) Load() (*models.DraftSnapshot, error) {
	data, ok, err := s.blobs.Get(s.key)
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var snap models.DraftSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &snap, nil
}

// Discard drops the persisted snapshot and anything still pending.
func (s *Store) Discard() error {
	s.mu.Lock()
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.blobs.Delete(s.key)
}

// ShouldFlush reports whether a pending edit has been quiet long enough to
// persist. Exposed as a pure function so the debounce contract is testable
// without timers.
func ShouldFlush(lastEdit, now time.Time, quiet time.Duration) bool {
	return !now.Before(lastEdit.Add(quiet))
}
