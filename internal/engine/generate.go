package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BadgerOps/mirrorrank/internal/mirror"
	"github.com/BadgerOps/mirrorrank/internal/store"
)

// StatusSource supplies the mirror status feed.
type StatusSource interface {
	Status(ctx context.Context) (*mirror.Status, error)
	StatusURL() string
}

// Result is the outcome of one selection pass over the status feed.
type Result struct {
	RunID       int64             `json:"run_id,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	SourceURL   string            `json:"source_url"`
	LastCheck   time.Time         `json:"last_check"`
	Criteria    mirror.Criteria   `json:"criteria"`
	Candidates  int               `json:"candidates"`
	Rejections  map[string]int    `json:"rejections"`
	Mirrors     []mirror.Endpoint `json:"mirrors"`
}

// Generator runs the fetch, filter and rank pipeline and records history.
type Generator struct {
	source StatusSource
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewGenerator creates a Generator. st may be nil to disable history.
func NewGenerator(source StatusSource, st *store.Store, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		source: source,
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// HistoryEnabled reports whether runs are persisted.
func (g *Generator) HistoryEnabled() bool {
	return g.store != nil
}

// Store returns the history store, or nil.
func (g *Generator) Store() *store.Store {
	return g.store
}

// Generate fetches the status feed and returns the mirrors accepted by c, best first.
func (g *Generator) Generate(ctx context.Context, c mirror.Criteria) (*Result, error) {
	st, err := g.source.Status(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		GeneratedAt: g.now(),
		SourceURL:   g.source.StatusURL(),
		LastCheck:   st.LastCheck,
		Criteria:    c,
		Candidates:  len(st.URLs),
		Rejections:  make(map[string]int),
	}

	survivors := make([]mirror.Endpoint, 0, len(st.URLs))
	for _, e := range st.URLs {
		if reason := mirror.Rejection(e, c); reason != "" {
			res.Rejections[reason]++
			g.logger.Debug("mirror rejected", "url", e.URL, "reason", reason)
			continue
		}
		survivors = append(survivors, e)
	}
	res.Mirrors = mirror.Rank(survivors)

	g.logger.Info("mirrors selected",
		"candidates", res.Candidates,
		"selected", len(res.Mirrors),
		"last_check", res.LastCheck,
	)
	return res, nil
}

// Record persists res as a history run. It is a no-op without a store.
func (g *Generator) Record(res *Result, outputPath string) error {
	if g.store == nil {
		return nil
	}

	criteria, err := json.Marshal(res.Criteria)
	if err != nil {
		return fmt.Errorf("encoding criteria: %w", err)
	}

	run := &store.Run{
		CreatedAt:  res.GeneratedAt,
		SourceURL:  res.SourceURL,
		Criteria:   string(criteria),
		Candidates: res.Candidates,
		Selected:   len(res.Mirrors),
		OutputPath: outputPath,
	}

	mirrors := make([]store.RunMirror, 0, len(res.Mirrors))
	for _, e := range res.Mirrors {
		m := store.RunMirror{
			URL:         e.URL,
			CountryCode: e.CountryCode,
			Protocol:    e.Protocol,
			Score:       *e.Score,
		}
		if e.Delay != nil {
			m.Delay = *e.Delay
		}
		mirrors = append(mirrors, m)
	}

	if err := g.store.CreateRun(run, mirrors); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	res.RunID = run.ID
	g.logger.Info("run recorded", "run_id", run.ID, "selected", run.Selected)
	return nil
}
