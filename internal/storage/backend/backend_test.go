package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haskel/quorum/internal/logger"
	"github.com/haskel/quorum/internal/storage"
)

func TestOpen_AllKinds(t *testing.T) {
	for _, kind := range []Kind{KindMemory, KindFile, KindBadger, KindSQLite} {
		t.Run(string(kind), func(t *testing.T) {
			ctx := context.Background()
			cfg := Config{Kind: kind, DataDir: t.TempDir(), FlushInterval: time.Hour}

			s, err := Open(ctx, cfg, logger.Discard())
			if err != nil {
				t.Fatalf("failed to open %s store: %v", kind, err)
			}
			defer func() { _ = s.Close() }()

			if err := s.Put(ctx, "a/1", []byte("one")); err != nil {
				t.Fatalf("put failed: %v", err)
			}
			got, err := s.Get(ctx, "a/1")
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			if string(got) != "one" {
				t.Errorf("expected 'one', got %q", got)
			}

			if _, err := s.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestOpen_FileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Kind: KindFile, DataDir: t.TempDir(), FlushInterval: time.Hour}

	s, err := Open(ctx, cfg, logger.Discard())
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	if err := s.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := Open(ctx, cfg, logger.Discard())
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Errorf("expected persisted value, got %q (%v)", got, err)
	}
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	if _, err := Open(ctx, Config{Kind: KindBadger}, nil); err == nil {
		t.Error("expected error without data directory")
	}
	if _, err := Open(ctx, Config{Kind: "redis", DataDir: t.TempDir()}, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestKind_IsValid(t *testing.T) {
	if !KindSQLite.IsValid() || Kind("redis").IsValid() {
		t.Error("unexpected IsValid result")
	}
}
