package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	snapshotVersion = 1
	snapshotFile    = "quorum_data.json"

	defaultFlushInterval = 30 * time.Second
)

// snapshot is the on-disk form of a FileStore.
type snapshot struct {
	Version   int               `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
	Entries   map[string][]byte `json:"entries"`
}

func newSnapshot() *snapshot {
	return &snapshot{Version: snapshotVersion, UpdatedAt: time.Now(), Entries: map[string][]byte{}}
}

// FileStore serves reads and writes from memory and writes the whole key
// space to one JSON file on every flush. A snapshot that cannot be read is
// discarded with a warning; the store then starts empty.
type FileStore struct {
	dir           string
	flushInterval time.Duration
	logger        *slog.Logger

	mu    sync.RWMutex
	snap  *snapshot
	dirty bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewFileStore(dir string, flushInterval time.Duration, logger *slog.Logger) *FileStore {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &FileStore{
		dir:           dir,
		flushInterval: flushInterval,
		logger:        logger,
		snap:          newSnapshot(),
	}
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, snapshotFile)
}

// Load replaces the in-memory state with the snapshot on disk.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path())
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no snapshot, starting empty", "path", s.path())
		s.snap = newSnapshot()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	switch err := json.Unmarshal(raw, &snap); {
	case err != nil:
		s.logger.Warn("unreadable snapshot, starting empty", "path", s.path(), "error", err)
		s.snap = newSnapshot()
		return nil
	case snap.Version > snapshotVersion:
		s.logger.Warn("snapshot written by a newer version, starting empty",
			"version", snap.Version, "supported", snapshotVersion)
		s.snap = newSnapshot()
		return nil
	}
	if snap.Entries == nil {
		snap.Entries = map[string][]byte{}
	}

	s.snap = &snap
	s.logger.Info("snapshot loaded", "path", s.path(), "entries", len(snap.Entries))
	return nil
}

// Save writes the snapshot through a temp file and a rename so a crash
// never leaves a half-written file behind.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	s.snap.UpdatedAt = time.Now()
	raw, err := json.MarshalIndent(s.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, snapshotFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after the rename

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path()); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	s.dirty = false
	s.logger.Debug("snapshot saved", "entries", len(s.snap.Entries))
	return nil
}

// Start flushes dirty state every flush interval until ctx ends or Close is called.
func (s *FileStore) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Flush(ctx); err != nil {
					s.logger.Error("snapshot flush failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the flush loop and saves the final state.
func (s *FileStore) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	return s.Save()
}

// Flush saves only when something changed since the last save.
func (s *FileStore) Flush(ctx context.Context) error {
	if !s.IsDirty() {
		return nil
	}
	return s.Save()
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.snap.Entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Entries[key] = append([]byte(nil), value...)
	s.dirty = true
	return nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.Entries[key]; ok {
		delete(s.snap.Entries, key)
		s.dirty = true
	}
	return nil
}

func (s *FileStore) List(ctx context.Context, prefix string) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPrefix(s.snap.Entries, prefix), nil
}

func (s *FileStore) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Len reports the number of keys.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snap.Entries)
}
