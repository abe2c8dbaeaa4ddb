package store

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

// newTestStore creates an in-memory SQLite store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMirrors() []RunMirror {
	return []RunMirror{
		{URL: "https://fast.example.com/archlinux/", CountryCode: "US", Protocol: "https", Score: 0.8, Delay: 300},
		{URL: "https://ok.example.com/archlinux/", CountryCode: "US", Protocol: "https", Score: 1.4, Delay: 900},
	}
}

func mustCreateRun(t *testing.T, s *Store, createdAt time.Time, mirrors []RunMirror) *Run {
	t.Helper()
	run := &Run{
		CreatedAt:  createdAt,
		SourceURL:  "https://archlinux.org/mirrors/status/json/",
		Criteria:   `{"require_ipv4":true}`,
		Candidates: 10,
		Selected:   len(mirrors),
	}
	if err := s.CreateRun(run, mirrors); err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	return run
}

// ============================================================================
// Store Lifecycle Tests
// ============================================================================

func TestNew(t *testing.T) {
	store, err := New(":memory:", slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Expected db to be initialized")
	}

	if store.logger == nil {
		t.Error("Expected logger to be initialized")
	}
}

func TestClose(t *testing.T) {
	store, err := New(":memory:", slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if _, err := store.ListRuns(0); err == nil {
		t.Error("Expected error when using closed store, but got nil")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate() failed: %v", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("counting migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 recorded migration, got %d", count)
	}
}

// ============================================================================
// Run Tests
// ============================================================================

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)

	created := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	run := mustCreateRun(t, s, created, sampleMirrors())

	if run.ID == 0 {
		t.Fatal("Expected ID to be set after CreateRun")
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if got.Candidates != 10 || got.Selected != 2 {
		t.Errorf("unexpected counts: %+v", got)
	}
	if got.Criteria != run.Criteria {
		t.Errorf("Criteria = %q, want %q", got.Criteria, run.Criteria)
	}
	if got.OutputPath != "" {
		t.Errorf("OutputPath = %q, want empty", got.OutputPath)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(42)
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListRunMirrors(t *testing.T) {
	s := newTestStore(t)
	run := mustCreateRun(t, s, time.Now(), sampleMirrors())

	mirrors, err := s.ListRunMirrors(run.ID)
	if err != nil {
		t.Fatalf("ListRunMirrors() failed: %v", err)
	}
	if len(mirrors) != 2 {
		t.Fatalf("expected 2 mirrors, got %d", len(mirrors))
	}
	if mirrors[0].Position != 1 || mirrors[1].Position != 2 {
		t.Errorf("unexpected positions: %d, %d", mirrors[0].Position, mirrors[1].Position)
	}
	if mirrors[0].URL != "https://fast.example.com/archlinux/" || mirrors[0].Score != 0.8 {
		t.Errorf("unexpected first mirror: %+v", mirrors[0])
	}
	if mirrors[1].RunID != run.ID {
		t.Errorf("RunID = %d, want %d", mirrors[1].RunID, run.ID)
	}
}

func TestCreateRunWithoutMirrors(t *testing.T) {
	s := newTestStore(t)
	run := mustCreateRun(t, s, time.Now(), nil)

	mirrors, err := s.ListRunMirrors(run.ID)
	if err != nil {
		t.Fatalf("ListRunMirrors() failed: %v", err)
	}
	if len(mirrors) != 0 {
		t.Errorf("expected no mirrors, got %d", len(mirrors))
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		mustCreateRun(t, s, base.Add(time.Duration(i)*time.Hour), sampleMirrors())
	}

	runs, err := s.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i-1].CreatedAt.Before(runs[i].CreatedAt) {
			t.Errorf("runs not newest first at %d", i)
		}
	}

	limited, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns(2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 runs, got %d", len(limited))
	}
}

func TestPruneRuns(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	var runs []*Run
	for i := 0; i < 4; i++ {
		runs = append(runs, mustCreateRun(t, s, base.Add(time.Duration(i)*time.Hour), sampleMirrors()))
	}

	removed, err := s.PruneRuns(1)
	if err != nil {
		t.Fatalf("PruneRuns() failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}

	remaining, err := s.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != runs[3].ID {
		t.Fatalf("expected only newest run to remain, got %+v", remaining)
	}

	orphans, err := s.ListRunMirrors(runs[0].ID)
	if err != nil {
		t.Fatalf("ListRunMirrors() failed: %v", err)
	}
	if len(orphans) != 0 {
		t.Errorf("expected pruned run mirrors to be deleted, got %d", len(orphans))
	}

	if _, err := s.PruneRuns(-1); err == nil {
		t.Error("expected error for negative keep")
	}
}
