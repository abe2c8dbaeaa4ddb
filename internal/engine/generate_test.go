package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BadgerOps/mirrorrank/internal/mirror"
	"github.com/BadgerOps/mirrorrank/internal/store"
	"github.com/google/go-cmp/cmp"
)

// fakeSource implements StatusSource for testing
type fakeSource struct {
	status *mirror.Status
	err    error
	calls  int
}

func (f *fakeSource) Status(ctx context.Context) (*mirror.Status, error) {
	f.calls++
	return f.status, f.err
}

func (f *fakeSource) StatusURL() string { return "https://status.example.com/json/" }

func ptr[T any](v T) *T { return &v }

func goodMirror(url, cc string, score float64) mirror.Endpoint {
	return mirror.Endpoint{
		URL:            url,
		CountryCode:    cc,
		Protocol:       "https",
		CompletionPct:  ptr(1.0),
		Delay:          ptr(int64(120)),
		IPv4:           true,
		DurationAvg:    ptr(0.2),
		DurationStdDev: ptr(0.1),
		Score:          ptr(score),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:", testLogger())
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleStatus() *mirror.Status {
	stale := goodMirror("https://stale.example.com/", "US", 0.1)
	stale.Delay = ptr(int64(99999))
	unknown := goodMirror("https://new.example.com/", "US", 0.2)
	unknown.Score = nil

	return &mirror.Status{
		LastCheck: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		URLs: []mirror.Endpoint{
			goodMirror("https://slow.example.com/", "US", 3.0),
			stale,
			goodMirror("https://fast.example.com/", "US", 1.0),
			unknown,
			goodMirror("https://de.example.com/", "DE", 0.5),
		},
	}
}

func TestGenerate(t *testing.T) {
	src := &fakeSource{status: sampleStatus()}
	g := NewGenerator(src, nil, testLogger())

	country := "US"
	c := mirror.DefaultCriteria()
	c.Country = &country

	res, err := g.Generate(context.Background(), c)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	var got []string
	for _, e := range res.Mirrors {
		got = append(got, e.URL)
	}
	want := []string{"https://fast.example.com/", "https://slow.example.com/"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mirrors mismatch (-want +got):\n%s", diff)
	}

	if res.Candidates != 5 {
		t.Errorf("Candidates = %d, want 5", res.Candidates)
	}
	wantRejections := map[string]int{
		mirror.RejectStale:        1,
		mirror.RejectMissingStats: 1,
		mirror.RejectCountry:      1,
	}
	if diff := cmp.Diff(wantRejections, res.Rejections); diff != "" {
		t.Errorf("rejections mismatch (-want +got):\n%s", diff)
	}
	if res.SourceURL != src.StatusURL() {
		t.Errorf("SourceURL = %q", res.SourceURL)
	}
	if !res.LastCheck.Equal(sampleStatus().LastCheck) {
		t.Errorf("LastCheck = %v", res.LastCheck)
	}
	if res.RunID != 0 {
		t.Errorf("RunID = %d, want 0 before Record", res.RunID)
	}
}

func TestGenerateSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("feed unavailable")}
	g := NewGenerator(src, nil, testLogger())

	if _, err := g.Generate(context.Background(), mirror.DefaultCriteria()); err == nil {
		t.Fatal("expected error from failing source")
	}
}

func TestRecordWithoutStore(t *testing.T) {
	g := NewGenerator(&fakeSource{status: sampleStatus()}, nil, testLogger())
	if g.HistoryEnabled() {
		t.Error("HistoryEnabled() = true without a store")
	}

	res, err := g.Generate(context.Background(), mirror.DefaultCriteria())
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if err := g.Record(res, ""); err != nil {
		t.Fatalf("Record() without store should be a no-op, got %v", err)
	}
	if res.RunID != 0 {
		t.Errorf("RunID = %d, want 0", res.RunID)
	}
}

func TestRecord(t *testing.T) {
	st := newTestStore(t)
	g := NewGenerator(&fakeSource{status: sampleStatus()}, st, testLogger())
	fixed := time.Date(2026, 10, 18, 12, 30, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	res, err := g.Generate(context.Background(), mirror.DefaultCriteria())
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if err := g.Record(res, "/etc/pacman.d/mirrorlist"); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if res.RunID == 0 {
		t.Fatal("expected RunID to be set")
	}

	run, err := st.GetRun(res.RunID)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if run.Selected != len(res.Mirrors) || run.Candidates != 5 {
		t.Errorf("unexpected run counts: %+v", run)
	}
	if run.OutputPath != "/etc/pacman.d/mirrorlist" {
		t.Errorf("OutputPath = %q", run.OutputPath)
	}
	if !run.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", run.CreatedAt, fixed)
	}

	var c mirror.Criteria
	if err := json.Unmarshal([]byte(run.Criteria), &c); err != nil {
		t.Fatalf("stored criteria is not JSON: %v", err)
	}
	if !c.RequireIPv4 {
		t.Errorf("stored criteria lost RequireIPv4: %s", run.Criteria)
	}

	mirrors, err := st.ListRunMirrors(res.RunID)
	if err != nil {
		t.Fatalf("ListRunMirrors() failed: %v", err)
	}
	if len(mirrors) != len(res.Mirrors) {
		t.Fatalf("stored %d mirrors, want %d", len(mirrors), len(res.Mirrors))
	}
	for i, m := range mirrors {
		if m.URL != res.Mirrors[i].URL || m.Score != *res.Mirrors[i].Score {
			t.Errorf("mirror %d = %+v, want %s", i, m, res.Mirrors[i].URL)
		}
	}
}

func TestGenerateMatchesSelect(t *testing.T) {
	status := sampleStatus()
	src := &fakeSource{status: status}
	g := NewGenerator(src, nil, testLogger())

	us, de := "US", "DE"
	for _, c := range []mirror.Criteria{
		mirror.DefaultCriteria(),
		{RequireIPv4: true, Country: &us},
		{RequireIPv4: true, Country: &de},
		{RequireIPv6: true},
		{MaxDelay: ptr(int64(100000)), Protocols: []string{"https"}},
	} {
		res, err := g.Generate(context.Background(), c)
		if err != nil {
			t.Fatalf("Generate() failed: %v", err)
		}
		if diff := cmp.Diff(mirror.Select(status.URLs, c), res.Mirrors); diff != "" {
			t.Errorf("criteria %+v: mirrors differ from Select (-want +got):\n%s", c, diff)
		}

		rejected := 0
		for _, n := range res.Rejections {
			rejected += n
		}
		if rejected+len(res.Mirrors) != res.Candidates {
			t.Errorf("criteria %+v: %d rejected + %d selected != %d candidates", c, rejected, len(res.Mirrors), res.Candidates)
		}
	}
}
