package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// Store provides SQLite-backed persistence of generation history
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ============================================================================
// Run Operations
// ============================================================================

// CreateRun inserts a Run and its ranked mirrors in one transaction and sets run.ID.
// Mirror positions are assigned from slice order, starting at 1.
func (s *Store) CreateRun(run *Run, mirrors []RunMirror) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const runQuery = `
		INSERT INTO runs (
			created_at, source_url, criteria, candidates, selected, output_path
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := tx.Exec(
		runQuery,
		run.CreatedAt, run.SourceURL, run.Criteria,
		run.Candidates, run.Selected, run.OutputPath,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	const mirrorQuery = `
		INSERT INTO run_mirrors (
			run_id, position, url, country_code, protocol, score, delay
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := tx.Prepare(mirrorQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare mirror insert: %w", err)
	}
	defer stmt.Close()

	for i := range mirrors {
		m := &mirrors[i]
		m.RunID = id
		m.Position = i + 1
		if _, err := stmt.Exec(m.RunID, m.Position, m.URL, m.CountryCode, m.Protocol, m.Score, m.Delay); err != nil {
			return fmt.Errorf("failed to insert run mirror %s: %w", m.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	run.ID = id
	return nil
}

// GetRun retrieves a Run by ID
func (s *Store) GetRun(id int64) (*Run, error) {
	const query = `
		SELECT id, created_at, source_url, criteria, candidates, selected, COALESCE(output_path, '')
		FROM runs WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRow(query, id).Scan(
		&run.ID, &run.CreatedAt, &run.SourceURL, &run.Criteria,
		&run.Candidates, &run.Selected, &run.OutputPath,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	return run, nil
}

// ListRuns retrieves the most recent runs first. A limit of 0 returns all runs.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, created_at, source_url, criteria, candidates, selected, COALESCE(output_path, '')
		FROM runs
		ORDER BY created_at DESC, id DESC
	`
	var args []interface{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run := Run{}
		err := rows.Scan(
			&run.ID, &run.CreatedAt, &run.SourceURL, &run.Criteria,
			&run.Candidates, &run.Selected, &run.OutputPath,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// ListRunMirrors returns the ranked mirrors of a run, best first.
func (s *Store) ListRunMirrors(runID int64) ([]RunMirror, error) {
	const query = `
		SELECT run_id, position, url, COALESCE(country_code, ''), COALESCE(protocol, ''), score, COALESCE(delay, 0)
		FROM run_mirrors
		WHERE run_id = ?
		ORDER BY position ASC
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run mirrors: %w", err)
	}
	defer rows.Close()

	var mirrors []RunMirror
	for rows.Next() {
		m := RunMirror{}
		if err := rows.Scan(&m.RunID, &m.Position, &m.URL, &m.CountryCode, &m.Protocol, &m.Score, &m.Delay); err != nil {
			return nil, fmt.Errorf("failed to scan run mirror: %w", err)
		}
		mirrors = append(mirrors, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run mirrors: %w", err)
	}

	return mirrors, nil
}

// PruneRuns deletes all but the newest keep runs and returns how many were removed.
func (s *Store) PruneRuns(keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative: %d", keep)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM runs ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?`

	if _, err := tx.Exec(`DELETE FROM run_mirrors WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("failed to delete run mirrors: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM runs WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}

	s.logger.Info("pruned history", "removed", removed, "kept", keep)
	return removed, nil
}
