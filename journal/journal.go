// Package journal records finished selection runs in a local SQLite file.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/soocke/seatbot-go/domain/seat"
	"github.com/soocke/seatbot-go/domain/selection"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("journal: run not found")

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Run is one journaled selection attempt.
type Run struct {
	ID        string           `json:"id"`
	Started   time.Time        `json:"started"`
	Finished  time.Time        `json:"finished"`
	SeatCount int              `json:"seat_count"`
	Profile   string           `json:"profile"`
	Source    string           `json:"source"`
	Outcome   string           `json:"outcome"`
	Rounds    int              `json:"rounds"`
	Zooms     int              `json:"zooms"`
	Clicks    int              `json:"clicks"`
	Degraded  bool             `json:"degraded"`
	LastError string           `json:"last_error,omitempty"`
	Artifact  string           `json:"artifact,omitempty"`
	Seats     []seat.Candidate `json:"seats"`
}

// FromResult flattens an orchestrator result into a journal row.
func FromResult(res selection.Result, seatCount int, profile, source string) Run {
	r := Run{
		ID:        res.RunID,
		Started:   res.Started.UTC(),
		Finished:  res.Finished.UTC(),
		SeatCount: seatCount,
		Profile:   profile,
		Source:    source,
		Outcome:   res.Outcome.String(),
		Rounds:    res.Rounds,
		Zooms:     res.Zooms,
		Clicks:    res.Clicks,
		Degraded:  res.Degraded,
		Artifact:  res.Artifact,
		Seats:     res.Seats,
	}
	if res.Err != nil {
		r.LastError = res.Err.Error()
	}
	return r
}

// Journal is safe for concurrent use.
type Journal struct {
	conn *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Journal, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}
	j := &Journal{conn: conn}
	if err := j.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return j, nil
}

func (j *Journal) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started DATETIME NOT NULL,
		finished DATETIME NOT NULL,
		seat_count INTEGER NOT NULL,
		profile TEXT NOT NULL,
		source TEXT NOT NULL,
		outcome TEXT NOT NULL,
		rounds INTEGER NOT NULL,
		zooms INTEGER NOT NULL,
		clicks INTEGER NOT NULL,
		degraded INTEGER NOT NULL,
		last_error TEXT,
		artifact TEXT
	);
	CREATE TABLE IF NOT EXISTS run_seats (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		quality INTEGER NOT NULL,
		score REAL NOT NULL,
		source TEXT NOT NULL,
		PRIMARY KEY (run_id, idx)
	);
	CREATE INDEX IF NOT EXISTS runs_started ON runs(started);
	`
	_, err := j.conn.Exec(query)
	return err
}

// Close releases the database.
func (j *Journal) Close() error { return j.conn.Close() }

// Record stores r and its seats in one transaction.
func (j *Journal) Record(ctx context.Context, r Run) error {
	if r.ID == "" {
		r.ID = NewRunID()
	}
	tx, err := j.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started, finished, seat_count, profile, source, outcome, rounds, zooms, clicks, degraded, last_error, artifact)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Started, r.Finished, r.SeatCount, r.Profile, r.Source, r.Outcome,
		r.Rounds, r.Zooms, r.Clicks, r.Degraded, r.LastError, r.Artifact)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	for i, s := range r.Seats {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_seats (run_id, idx, x, y, quality, score, source)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, i, s.X, s.Y, s.Quality, s.Score, s.Source)
		if err != nil {
			return fmt.Errorf("failed to insert seat: %w", err)
		}
	}
	return tx.Commit()
}

const runColumns = `id, started, finished, seat_count, profile, source, outcome, rounds, zooms, clicks, degraded, last_error, artifact`

type rowScanner interface{ Scan(dest ...any) error }

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var lastErr, artifact sql.NullString
	err := row.Scan(&r.ID, &r.Started, &r.Finished, &r.SeatCount, &r.Profile, &r.Source, &r.Outcome,
		&r.Rounds, &r.Zooms, &r.Clicks, &r.Degraded, &lastErr, &artifact)
	r.LastError, r.Artifact = lastErr.String, artifact.String
	return r, err
}

// Get returns the run with id.
func (j *Journal) Get(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(j.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	if r.Seats, err = j.seats(ctx, r.ID); err != nil {
		return Run{}, err
	}
	return r, nil
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.conn.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range runs {
		if runs[i].Seats, err = j.seats(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (j *Journal) seats(ctx context.Context, id string) ([]seat.Candidate, error) {
	rows, err := j.conn.QueryContext(ctx, `SELECT x, y, quality, score, source FROM run_seats WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list seats: %w", err)
	}
	defer rows.Close()
	var out []seat.Candidate
	for rows.Next() {
		var c seat.Candidate
		if err := rows.Scan(&c.X, &c.Y, &c.Quality, &c.Score, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
