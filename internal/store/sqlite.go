package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/sleepsync/internal/dose"
	"github.com/nvandessel/sleepsync/internal/feedback"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (creating if needed) dir/sleepsync.db.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dir, DatabaseFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// SaveSession implements SessionStore.
func (s *SQLiteStore) SaveSession(ctx context.Context, key string, rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_records (key, session_id, remaining_seconds, total_seconds,
			elapsed_seconds, start_epoch_millis, active_dose, has_dose, description, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			session_id = excluded.session_id,
			remaining_seconds = excluded.remaining_seconds,
			total_seconds = excluded.total_seconds,
			elapsed_seconds = excluded.elapsed_seconds,
			start_epoch_millis = excluded.start_epoch_millis,
			active_dose = excluded.active_dose,
			has_dose = excluded.has_dose,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		key, rec.ID, rec.RemainingSeconds, rec.TotalSeconds, rec.ElapsedSeconds,
		rec.StartEpochMillis, rec.ActiveDose, rec.HasDose, nullString(rec.Description), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save session record: %w", err)
	}
	return nil
}

// LoadSession implements SessionStore.
func (s *SQLiteStore) LoadSession(ctx context.Context, key string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec SessionRecord
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, remaining_seconds, total_seconds, elapsed_seconds,
			start_epoch_millis, active_dose, has_dose, description
		FROM session_records WHERE key = ?`, key).
		Scan(&rec.ID, &rec.RemainingSeconds, &rec.TotalSeconds, &rec.ElapsedSeconds,
			&rec.StartEpochMillis, &rec.ActiveDose, &rec.HasDose, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session record: %w", err)
	}
	rec.Description = desc.String
	return &rec, nil
}

// DeleteSession implements SessionStore.
func (s *SQLiteStore) DeleteSession(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}

// RecordDoseRun implements HistoryStore.
func (s *SQLiteStore) RecordDoseRun(ctx context.Context, run DoseRun) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO dose_runs (session_id, created_at, remaining_seconds, total_seconds,
			base_dose, feedback, source, active_dose, dispatched, dispatch_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(run.SessionID), formatTime(run.CreatedAt), run.RemainingSeconds, run.TotalSeconds,
		run.BaseDose, run.Feedback, nullString(run.Source), run.ActiveDose,
		boolToInt(run.Dispatched), nullString(run.DispatchError))
	if err != nil {
		return 0, fmt.Errorf("failed to insert dose run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read dose run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dose_samples (run_id, position, hour_label, timestamp, hrv_delta, rhr_delta,
			resp_delta, current_hrv, current_rhr, current_resp, dose)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for i, sm := range run.Samples {
		if _, err := stmt.ExecContext(ctx, id, i, sm.HourLabel, sampleTimestamp(sm),
			sm.Deltas.HRV, sm.Deltas.RHR, sm.Deltas.Resp,
			sm.CurrentHRV, sm.CurrentRHR, sm.CurrentResp, sm.Dose); err != nil {
			return 0, fmt.Errorf("failed to insert dose sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit dose run: %w", err)
	}
	return id, nil
}

// MarkDispatch implements HistoryStore.
func (s *SQLiteStore) MarkDispatch(ctx context.Context, runID int64, dispatchErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msg string
	if dispatchErr != nil {
		msg = dispatchErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE dose_runs SET dispatched = ?, dispatch_error = ? WHERE id = ?`,
		boolToInt(dispatchErr == nil), nullString(msg), runID)
	if err != nil {
		return fmt.Errorf("failed to update dose run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dose run %d: %w", runID, ErrNotFound)
	}
	return nil
}

// ListDoseRuns implements HistoryStore.
func (s *SQLiteStore) ListDoseRuns(ctx context.Context, limit int) ([]DoseRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, created_at, remaining_seconds, total_seconds, base_dose,
			feedback, source, active_dose, dispatched, dispatch_error
		FROM dose_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dose runs: %w", err)
	}
	defer rows.Close()

	var runs []DoseRun
	for rows.Next() {
		run, err := scanDoseRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetDoseRun implements HistoryStore.
func (s *SQLiteStore) GetDoseRun(ctx context.Context, id int64) (*DoseRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, created_at, remaining_seconds, total_seconds, base_dose,
			feedback, source, active_dose, dispatched, dispatch_error
		FROM dose_runs WHERE id = ?`, id)
	run, err := scanDoseRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dose run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT hour_label, timestamp, hrv_delta, rhr_delta, resp_delta,
			current_hrv, current_rhr, current_resp, dose
		FROM dose_samples WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query dose samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sm dose.Sample
		var ts sql.NullString
		if err := rows.Scan(&sm.HourLabel, &ts, &sm.Deltas.HRV, &sm.Deltas.RHR, &sm.Deltas.Resp,
			&sm.CurrentHRV, &sm.CurrentRHR, &sm.CurrentResp, &sm.Dose); err != nil {
			return nil, fmt.Errorf("failed to scan dose sample: %w", err)
		}
		sm.Timestamp = parseTime(ts.String)
		if sm.Timestamp.IsZero() && ts.String != "" {
			sm.RawTimestamp = ts.String
		}
		run.Samples = append(run.Samples, sm)
	}
	return run, rows.Err()
}

// RecordFeedback implements feedback.Recorder.
func (s *SQLiteStore) RecordFeedback(ctx context.Context, ev feedback.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_events (description, score, provider, outcome, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ev.Description, ev.Score, ev.Provider, ev.Outcome, formatTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	return nil
}

// LatestFeedback implements FeedbackLog.
func (s *SQLiteStore) LatestFeedback(ctx context.Context) (*feedback.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ev feedback.Event
	var created string
	err := s.db.QueryRowContext(ctx, `
		SELECT description, score, provider, outcome, created_at
		FROM feedback_events WHERE outcome != ?
		ORDER BY id DESC LIMIT 1`, feedback.OutcomeUnavailable).
		Scan(&ev.Description, &ev.Score, &ev.Provider, &ev.Outcome, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest feedback: %w", err)
	}
	ev.CreatedAt = parseTime(created)
	return &ev, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoseRun(row rowScanner) (*DoseRun, error) {
	var run DoseRun
	var sessionID, source, dispatchErr sql.NullString
	var created string
	var dispatched int
	err := row.Scan(&run.ID, &sessionID, &created, &run.RemainingSeconds, &run.TotalSeconds,
		&run.BaseDose, &run.Feedback, &source, &run.ActiveDose, &dispatched, &dispatchErr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dose run: %w", err)
	}
	run.SessionID = sessionID.String
	run.Source = source.String
	run.DispatchError = dispatchErr.String
	run.Dispatched = dispatched != 0
	run.CreatedAt = parseTime(created)
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// sampleTimestamp keeps the source text of a timestamp that did not parse.
func sampleTimestamp(sm dose.Sample) string {
	if sm.Timestamp.IsZero() {
		return sm.RawTimestamp
	}
	return formatTime(sm.Timestamp)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
