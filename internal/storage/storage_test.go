package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFileStore_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()

	s := NewFileStore(tmpDir, time.Second, testLogger())

	if err := s.Put(ctx, "calibration/bins", []byte(`[1,2]`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, "performance/a", []byte(`{"accuracy":0.5}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s2 := NewFileStore(tmpDir, time.Second, testLogger())
	if err := s2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got, err := s2.Get(ctx, "performance/a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"accuracy":0.5}` {
		t.Errorf("unexpected value %s", got)
	}

	if s2.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", s2.Len())
	}
}

func TestFileStore_LoadNonExistent(t *testing.T) {
	s := NewFileStore(t.TempDir(), time.Second, testLogger())

	if err := s.Load(); err != nil {
		t.Fatalf("Load should not fail for non-existent file: %v", err)
	}

	if s.Len() != 0 {
		t.Errorf("expected 0 entries, got %d", s.Len())
	}
}

func TestFileStore_LoadCorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()

	filePath := filepath.Join(tmpDir, snapshotFile)
	if err := os.WriteFile(filePath, []byte("not json"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	s := NewFileStore(tmpDir, time.Second, testLogger())

	if err := s.Load(); err != nil {
		t.Fatalf("Load should not fail for corrupted file: %v", err)
	}

	if s.Len() != 0 {
		t.Errorf("expected 0 entries, got %d", s.Len())
	}
}

func TestFileStore_GetMissing(t *testing.T) {
	s := NewFileStore(t.TempDir(), time.Second, testLogger())

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_IsDirty(t *testing.T) {
	s := NewFileStore(t.TempDir(), time.Second, testLogger())
	ctx := context.Background()

	if s.IsDirty() {
		t.Error("expected not dirty initially")
	}

	_ = s.Put(ctx, "k", []byte("v"))

	if !s.IsDirty() {
		t.Error("expected dirty after put")
	}

	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if s.IsDirty() {
		t.Error("expected not dirty after flush")
	}

	_ = s.Delete(ctx, "missing")
	if s.IsDirty() {
		t.Error("deleting a missing key should not mark dirty")
	}

	_ = s.Delete(ctx, "k")
	if !s.IsDirty() {
		t.Error("expected dirty after delete")
	}
}

func TestFileStore_PeriodicFlush(t *testing.T) {
	tmpDir := t.TempDir()
	s := NewFileStore(tmpDir, 50*time.Millisecond, testLogger())

	ctx := context.Background()
	s.Start(ctx)

	_ = s.Put(ctx, "experiment/test/t1", []byte(`{}`))

	time.Sleep(150 * time.Millisecond)

	filePath := filepath.Join(tmpDir, snapshotFile)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		t.Error("expected data file to be created by flush loop")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2 := NewFileStore(tmpDir, time.Second, testLogger())
	if err := s2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s2.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", s2.Len())
	}
}

func TestFileStore_GracefulShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	s := NewFileStore(tmpDir, time.Hour, testLogger())

	ctx := context.Background()
	s.Start(ctx)

	_ = s.Put(ctx, "k", []byte("v"))

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2 := NewFileStore(tmpDir, time.Second, testLogger())
	if err := s2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s2.Len() != 1 {
		t.Errorf("expected 1 entry after graceful shutdown, got %d", s2.Len())
	}
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	tmpDir := t.TempDir()
	s := NewFileStore(tmpDir, time.Second, testLogger())

	_ = s.Put(context.Background(), "k", []byte("v"))

	for i := 0; i < 3; i++ {
		if err := s.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	leftovers, _ := filepath.Glob(filepath.Join(tmpDir, "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, snapshotFile)); err != nil {
		t.Errorf("snapshot should exist after save: %v", err)
	}
}

func TestFileStore_NewerSnapshotIgnored(t *testing.T) {
	tmpDir := t.TempDir()
	content := `{"version": 99, "entries": {"k": "dg=="}}`
	if err := os.WriteFile(filepath.Join(tmpDir, snapshotFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	s := NewFileStore(tmpDir, time.Second, testLogger())
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected a newer snapshot to be skipped, got %d entries", s.Len())
	}
}

func TestStores_ListOrderedByPrefix(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(t.TempDir(), time.Hour, testLogger()),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{"a/3", "a/1", "b/1", "a/2"} {
				if err := s.Put(ctx, k, []byte(k)); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}

			items, err := s.List(ctx, "a/")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(items) != 3 {
				t.Fatalf("expected 3 items, got %d", len(items))
			}
			for i, want := range []string{"a/1", "a/2", "a/3"} {
				if items[i].Key != want || string(items[i].Value) != want {
					t.Errorf("item %d: got %s=%s, want %s", i, items[i].Key, items[i].Value, want)
				}
			}
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	type rec struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	}

	if err := PutJSON(ctx, s, "r", rec{Name: "x", Score: 0.5}); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}

	var got rec
	if err := GetJSON(ctx, s, "r", &got); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if got.Name != "x" || got.Score != 0.5 {
		t.Errorf("unexpected %+v", got)
	}

	if err := GetJSON(ctx, s, "missing", &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
