package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"craiseek/config"
	"craiseek/dispatch"
	"craiseek/models"
	"craiseek/notify"
	"craiseek/storage"
)

func cycleConfig(sourceURL string) *config.Config {
	return &config.Config{
		UserAgent: "craiseek-test/1.0",
		Fetch: config.FetchConfig{
			Timeout:     2 * time.Second,
			MaxAttempts: 2,
			BaseDelay:   5 * time.Millisecond,
			MaxDelay:    20 * time.Millisecond,
		},
		Dispatch: config.DispatchConfig{Workers: 2, RetryDelay: 5 * time.Millisecond},
		Sources: map[string]*config.SourceConfig{
			"test_source": {ID: "test_source", Name: "test", URL: sourceURL, Handler: "http"},
		},
	}
}

func TestRunCycleEndToEnd(t *testing.T) {
	fixture := loadFixture(t, "search_results.html")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixture)
	}))
	defer server.Close()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "cycle.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	sub := &models.Subscriber{ID: 1, Tier: models.TierFree, Email: "free@example.com"}
	if err := store.UpsertSubscriber(ctx, sub); err != nil {
		t.Fatalf("upsert subscriber: %v", err)
	}

	cfg := cycleConfig(server.URL)
	email := notify.NewMockSender(models.ChannelEmail)
	d := dispatch.New(store, []notify.Sender{email}, cfg.Dispatch)
	orch := NewOrchestrator(cfg, store, d, nil)

	if err := orch.RunCycle(ctx, "test_source"); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	runs, err := store.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.Status != models.CycleStatusCompleted {
		t.Fatalf("expected completed run, got %s (%s)", run.Status, run.ErrorMessage)
	}
	if run.ListingsFound != 7 || run.ListingsNew != 7 || run.FragmentsSkipped != 3 {
		t.Fatalf("unexpected counters: %+v", run)
	}
	if run.NotificationsSent != 7 {
		t.Fatalf("expected 7 notifications, got %d", run.NotificationsSent)
	}
	if len(email.Sent()) != 7 {
		t.Fatalf("expected 7 emails, got %d", len(email.Sent()))
	}

	// Second cycle over the same page: all duplicates, nothing dispatched.
	if err := orch.RunCycle(ctx, "test_source"); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	runs, err = store.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	second := runs[0]
	if second.ListingsFound != 7 || second.ListingsNew != 0 {
		t.Fatalf("duplicates counted as new: %+v", second)
	}
	if second.NotificationsSent != 0 || len(email.Sent()) != 7 {
		t.Fatalf("redelivery on second cycle: %+v", second)
	}
	if orch.State() != models.StateIdle {
		t.Fatalf("expected idle after cycle, got %s", orch.State())
	}
}

func TestRunCycleFetchFailureIsBounded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "cycle.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	cfg := cycleConfig(server.URL)
	d := dispatch.New(store, nil, cfg.Dispatch)
	orch := NewOrchestrator(cfg, store, d, nil)

	if err := orch.RunCycle(ctx, "test_source"); err == nil {
		t.Fatal("expected cycle error on HTTP 403")
	}

	runs, err := store.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != models.CycleStatusFailed {
		t.Fatalf("expected failed run record, got %+v", runs)
	}
	if runs[0].ErrorMessage == "" || runs[0].ErrorsCount != 1 {
		t.Fatalf("failure not recorded: %+v", runs[0])
	}

	// The failure stays inside the cycle; the next one runs clean.
	if err := orch.RunCycle(ctx, "test_source"); err == nil {
		t.Fatal("expected second cycle to fail the same way")
	}
	if orch.State() != models.StateIdle {
		t.Fatalf("expected idle after failed cycle, got %s", orch.State())
	}
}

func TestOverlappingCyclesSkipped(t *testing.T) {
	release := make(chan struct{})
	var releaseOnce sync.Once
	releaseNow := func() { releaseOnce.Do(func() { close(release) }) }
	defer releaseNow()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("<html><body></body></html>"))
	}))
	defer server.Close()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "cycle.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	cfg := cycleConfig(server.URL)
	orch := NewOrchestrator(cfg, store, dispatch.New(store, nil, cfg.Dispatch), nil)
	defer orch.Close()

	done := make(chan error, 1)
	go func() { done <- orch.RunCycle(ctx, "test_source") }()

	deadline := time.Now().Add(2 * time.Second)
	for orch.State() != models.StateFetching {
		if time.Now().After(deadline) {
			t.Fatal("first cycle never reached the fetching state")
		}
		time.Sleep(time.Millisecond)
	}

	// A second trigger while the first pass is in flight must not start
	// another cycle.
	if err := orch.RunCycle(ctx, "test_source"); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}
	if err := orch.RunAll(ctx); err != nil {
		t.Fatalf("overlapping RunAll should skip cleanly, got %v", err)
	}

	releaseNow()
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	runs, err := store.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected a single run record, got %d", len(runs))
	}
}

func TestRunCycleUnknownSource(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "cycle.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	cfg := cycleConfig("https://unused.test")
	orch := NewOrchestrator(cfg, store, dispatch.New(store, nil, cfg.Dispatch), nil)
	if err := orch.RunCycle(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown source")
	}
}
