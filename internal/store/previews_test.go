package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

func testStore(t *testing.T, ttl time.Duration) *PreviewStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	s, err := NewPreviewStore(ctx, pool, ttl, zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestPreviewStoreRoundTrip(t *testing.T) {
	s := testStore(t, time.Hour)
	ctx := context.Background()

	clean := []byte("png-bytes")
	id, err := s.Put(ctx, clean, "local")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(clean) {
		t.Fatal("round trip bytes do not match")
	}
}

func TestPreviewStoreUnknownID(t *testing.T) {
	s := testStore(t, time.Hour)
	ctx := context.Background()

	if _, err := s.Get(ctx, "not-a-uuid"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "3f2b8a64-1111-4222-8333-444455556666"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPreviewStoreExpiry(t *testing.T) {
	s := testStore(t, time.Nanosecond)
	ctx := context.Background()

	id, err := s.Put(ctx, []byte("png-bytes"), "local")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := s.Get(ctx, id); err != ErrNotFound {
		t.Fatalf("expired preview should be ErrNotFound, got %v", err)
	}
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
}
