package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/haskel/quorum/internal/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "quorum.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "experiment/test/t1", []byte(`{"id":"t1"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "experiment/test/t1", []byte(`{"id":"t1","name":"x"}`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Get(ctx, "experiment/test/t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"id":"t1","name":"x"}` {
		t.Fatalf("unexpected value %s", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTempStore(t)

	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	for _, k := range []string{"experiment/result/t1/2", "experiment/result/t1/1", "experiment/result/t2/1"} {
		if err := s.Put(ctx, k, []byte(k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	items, err := s.List(ctx, "experiment/result/t1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].Key != "experiment/result/t1/1" {
		t.Fatalf("unexpected items %+v", items)
	}

	if err := s.Delete(ctx, "experiment/result/t1/1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items, _ = s.List(ctx, "experiment/result/")
	if len(items) != 2 {
		t.Fatalf("expected 2 items after delete, got %d", len(items))
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quorum.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Put(context.Background(), "k", []byte("v"))
	_ = s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(context.Background(), "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("expected persisted value, got %q err %v", got, err)
	}
}

func TestUpSection(t *testing.T) {
	got := upSection("-- +migrate Up\nCREATE TABLE a;\n-- +migrate Down\nDROP TABLE a;")
	if got != "\nCREATE TABLE a;\n" {
		t.Fatalf("unexpected up section %q", got)
	}
	if upSection("SELECT 1;") != "SELECT 1;" {
		t.Fatal("content without markers should be returned as is")
	}
}
