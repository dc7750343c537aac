package experiment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository persists runs and their frame index.
type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	AddFrame(ctx context.Context, frame *FrameRecord) error
	ListFrames(ctx context.Context, runID string) ([]FrameRecord, error)
}

// dbTimeLayout is a fixed-width RFC 3339 layout so stored times sort as text.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// runColumns is the SELECT column list for run queries.
const runColumns = `id, name, state, started_at, ended_at, scans_planned, scans_completed,
			frames_written, point_errors, stop_reason, params`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateRun inserts a new run.
func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshalling params: %w", err)
	}

	query := `
		INSERT INTO runs (
			id, name, state, started_at, ended_at, scans_planned, scans_completed,
			frames_written, point_errors, stop_reason, params
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.Name,
		string(run.State),
		run.StartedAt.UTC().Format(dbTimeLayout),
		nullableTime(run.EndedAt),
		run.ScansPlanned,
		run.ScansCompleted,
		run.FramesWritten,
		run.PointErrors,
		nullableString(run.StopReason),
		string(paramsJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// UpdateRun stores the progress counters and final state of a run.
func (r *SQLiteRepository) UpdateRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE runs SET
			state = ?, ended_at = ?, scans_completed = ?,
			frames_written = ?, point_errors = ?, stop_reason = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(run.State),
		nullableTime(run.EndedAt),
		run.ScansCompleted,
		run.FramesWritten,
		run.PointErrors,
		nullableString(run.StopReason),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning run: %w", scanErr)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// AddFrame appends a frame to the index and sets its ID.
func (r *SQLiteRepository) AddFrame(ctx context.Context, f *FrameRecord) error {
	query := `
		INSERT INTO frames (
			run_id, scan, slot, well, point_index, channel, z_index, z, location, captured_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		f.RunID,
		f.Scan,
		f.Slot,
		f.Well,
		f.PointIndex,
		f.Channel,
		f.ZIndex,
		f.Z,
		f.Location,
		f.CapturedAt.UTC().Format(dbTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting frame: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading frame id: %w", err)
	}
	f.ID = id
	return nil
}

// ListFrames returns every frame of a run in capture order.
func (r *SQLiteRepository) ListFrames(ctx context.Context, runID string) ([]FrameRecord, error) {
	query := `
		SELECT id, run_id, scan, slot, well, point_index, channel, z_index, z, location, captured_at
		FROM frames
		WHERE run_id = ?
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying frames: %w", err)
	}
	defer rows.Close()

	var frames []FrameRecord
	for rows.Next() {
		var f FrameRecord
		var capturedAt string
		if err := rows.Scan(&f.ID, &f.RunID, &f.Scan, &f.Slot, &f.Well, &f.PointIndex,
			&f.Channel, &f.ZIndex, &f.Z, &f.Location, &capturedAt); err != nil {
			return nil, fmt.Errorf("scanning frame: %w", err)
		}
		if t, parseErr := time.Parse(dbTimeLayout, capturedAt); parseErr == nil {
			f.CapturedAt = t
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating frames: %w", err)
	}
	return frames, nil
}

// ─── Row Scanning Helpers ──────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (*Run, error) {
	var run Run
	var state, startedAt, paramsJSON string
	var endedAt, stopReason sql.NullString

	err := scanner.Scan(
		&run.ID,
		&run.Name,
		&state,
		&startedAt,
		&endedAt,
		&run.ScansPlanned,
		&run.ScansCompleted,
		&run.FramesWritten,
		&run.PointErrors,
		&stopReason,
		&paramsJSON,
	)
	if err != nil {
		return nil, err
	}

	run.State = State(state)
	if t, parseErr := time.Parse(dbTimeLayout, startedAt); parseErr == nil {
		run.StartedAt = t
	}
	if endedAt.Valid {
		if t, parseErr := time.Parse(dbTimeLayout, endedAt.String); parseErr == nil {
			run.EndedAt = &t
		}
	}
	if stopReason.Valid {
		run.StopReason = stopReason.String
	}
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
			return nil, fmt.Errorf("unmarshalling params: %w", err)
		}
	}
	return &run, nil
}

// ─── SQL Helpers ───────────────────────────────────────────────────

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(dbTimeLayout), Valid: true}
}
