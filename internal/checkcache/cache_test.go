package checkcache_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"shepherd/internal/checkcache"
)

func openCache(t *testing.T, dir string) *checkcache.Cache {
	t.Helper()
	cache, err := checkcache.Open(filepath.Join(dir, "shepherd.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestMarkAndLookup(t *testing.T) {
	cache := openCache(t, t.TempDir())
	ctx := context.Background()

	if _, found, err := cache.LastChecked(ctx, "rec-a"); err != nil || found {
		t.Fatalf("fresh cache should have no entry: found=%v err=%v", found, err)
	}

	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	if err := cache.MarkChecked(ctx, "rec-a", at); err != nil {
		t.Fatalf("MarkChecked failed: %v", err)
	}

	got, found, err := cache.LastChecked(ctx, "rec-a")
	if err != nil || !found {
		t.Fatalf("LastChecked failed: found=%v err=%v", found, err)
	}
	if !got.Equal(at) {
		t.Fatalf("LastChecked = %v, want %v", got, at)
	}

	// Upsert replaces the previous timestamp.
	later := at.Add(time.Hour)
	if err := cache.MarkChecked(ctx, "rec-a", later); err != nil {
		t.Fatalf("MarkChecked upsert failed: %v", err)
	}
	got, _, _ = cache.LastChecked(ctx, "rec-a")
	if !got.Equal(later) {
		t.Fatalf("upsert did not replace timestamp: %v", got)
	}
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	first := openCache(t, dir)
	if err := first.MarkChecked(ctx, "rec-a", at); err != nil {
		t.Fatalf("MarkChecked failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second := openCache(t, dir)
	got, found, err := second.LastChecked(ctx, "rec-a")
	if err != nil || !found {
		t.Fatalf("entry lost across reopen: found=%v err=%v", found, err)
	}
	if !got.Equal(at) {
		t.Fatalf("LastChecked = %v, want %v", got, at)
	}
}

func TestForget(t *testing.T) {
	cache := openCache(t, t.TempDir())
	ctx := context.Background()

	if err := cache.MarkChecked(ctx, "rec-a", time.Now()); err != nil {
		t.Fatalf("MarkChecked failed: %v", err)
	}
	if err := cache.Forget(ctx, "rec-a"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if _, found, _ := cache.LastChecked(ctx, "rec-a"); found {
		t.Fatal("entry should be gone after Forget")
	}
}
