package services

import (
	"context"
	"path/filepath"
	"testing"

	"craiseek/models"
	"craiseek/storage"
)

func newIngestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ingest.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIngestCountsNewAndDuplicates(t *testing.T) {
	store := newIngestStore(t)
	ing := NewIngestor(store)
	ctx := context.Background()

	raws := []models.RawListing{
		{PostID: "1", Title: "Sunny studio", URL: "https://x.test/1"},
		{PostID: "2", Title: "Quiet 1BR", URL: "https://x.test/2"},
	}

	stats, err := ing.Ingest(ctx, "src", raws)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stats.Found != 2 || stats.New != 2 {
		t.Fatalf("expected 2 found 2 new, got %+v", stats)
	}

	// Second cycle sees the same page plus one fresh post.
	raws = append(raws, models.RawListing{PostID: "3", Title: "Top floor 2BR", URL: "https://x.test/3"})
	stats, err = ing.Ingest(ctx, "src", raws)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stats.Found != 3 || stats.New != 1 {
		t.Fatalf("expected 3 found 1 new, got %+v", stats)
	}
}

func TestIngestFingerprintFallback(t *testing.T) {
	store := newIngestStore(t)
	ing := NewIngestor(store)
	ctx := context.Background()

	raws := []models.RawListing{
		{Title: "No post id here", URL: "https://x.test/a"},
		{Title: "No post id here", URL: "https://x.test/a"}, // same content, same fingerprint
		{Title: "Different content", URL: "https://x.test/b"},
	}

	stats, err := ing.Ingest(ctx, "src", raws)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stats.FingerprintFallbacks != 3 {
		t.Fatalf("expected 3 fallbacks, got %d", stats.FingerprintFallbacks)
	}
	if stats.New != 2 {
		t.Fatalf("identical content should dedup by fingerprint, got %d new", stats.New)
	}
}
