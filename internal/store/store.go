// Package store provides SQLite-backed audit persistence for litscreen.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/litscreen/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the audit database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		task_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		files TEXT,
		total INTEGER NOT NULL DEFAULT 0,
		kept INTEGER NOT NULL DEFAULT 0,
		excluded INTEGER NOT NULL DEFAULT 0,
		stats TEXT,
		dedup TEXT,
		error TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		record_id TEXT NOT NULL,
		title TEXT,
		doi TEXT,
		excluded INTEGER NOT NULL,
		reason TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES runs(task_id)
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_decisions_task_id ON decisions(task_id);
	CREATE INDEX IF NOT EXISTS idx_pdr_task_id ON pdr(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Run Operations ---

// CreateRun records the start of a task execution.
func (s *Store) CreateRun(taskID string, files []string) (*models.Run, error) {
	filesJSON, _ := json.Marshal(files)
	run := &models.Run{
		TaskID:    taskID,
		Status:    models.TaskStatusProcessing,
		Files:     files,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (task_id, status, files, started_at) VALUES (?, ?, ?, ?)`,
		run.TaskID, run.Status, string(filesJSON), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stores the terminal state of a run. result is nil for failed
// runs.
func (s *Store) FinishRun(taskID string, status models.TaskStatus, result *models.Result, errMsg string) error {
	var total, kept, excluded int
	var statsJSON, dedupJSON []byte
	if result != nil {
		total = result.Stats.Total
		kept = result.Stats.Kept
		excluded = result.Stats.Excluded
		statsJSON, _ = json.Marshal(result.Stats)
		dedupJSON, _ = json.Marshal(result.Dedup)
	}

	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, total = ?, kept = ?, excluded = ?, stats = ?, dedup = ?, error = ?, ended_at = ? WHERE task_id = ?`,
		status, total, kept, excluded, string(statsJSON), string(dedupJSON), errMsg, time.Now().UTC(), taskID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("run not found: %s", taskID)
	}
	return nil
}

// GetRun retrieves a run by task ID. It returns nil when absent.
func (s *Store) GetRun(taskID string) (*models.Run, error) {
	run := &models.Run{}
	var filesJSON, errMsg sql.NullString
	var endedAt sql.NullTime

	err := s.db.QueryRow(
		`SELECT task_id, status, files, total, kept, excluded, error, started_at, ended_at FROM runs WHERE task_id = ?`,
		taskID,
	).Scan(&run.TaskID, &run.Status, &filesJSON, &run.Total, &run.Kept, &run.Excluded, &errMsg, &run.StartedAt, &endedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	if filesJSON.Valid && filesJSON.String != "" {
		json.Unmarshal([]byte(filesJSON.String), &run.Files)
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	return run, nil
}

// ListRuns returns the most recent runs, optionally filtered by status.
func (s *Store) ListRuns(status string, limit int) ([]models.Run, error) {
	query := `SELECT task_id, status, total, kept, excluded, started_at FROM runs`
	var args []interface{}

	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var r models.Run
		if err := rows.Scan(&r.TaskID, &r.Status, &r.Total, &r.Kept, &r.Excluded, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Decision Operations ---

// WriteDecisions stores one verdict per record in a single transaction.
func (s *Store) WriteDecisions(decisions []models.ExclusionDecision) error {
	if len(decisions) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO decisions (id, task_id, record_id, title, doi, excluded, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, d := range decisions {
		excluded := 0
		if d.Excluded {
			excluded = 1
		}
		if _, err := stmt.Exec(uuid.New().String(), d.TaskID, d.RecordID, d.Title, d.DOI, excluded, d.Reason, now); err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}
	}
	return tx.Commit()
}

// GetDecisions returns the verdicts stored for a task in insertion order.
func (s *Store) GetDecisions(taskID string, excludedOnly bool) ([]models.ExclusionDecision, error) {
	query := `SELECT task_id, record_id, title, doi, excluded, reason FROM decisions WHERE task_id = ?`
	if excludedOnly {
		query += ` AND excluded = 1`
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.Query(query, taskID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []models.ExclusionDecision
	for rows.Next() {
		var d models.ExclusionDecision
		var title, doi, reason sql.NullString
		var excluded int
		if err := rows.Scan(&d.TaskID, &d.RecordID, &title, &doi, &excluded, &reason); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Title = title.String
		d.DOI = doi.String
		d.Reason = reason.String
		d.Excluded = excluded == 1
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- PDR Operations ---

// WritePDR writes a decision record.
func (s *Store) WritePDR(action, inputsHash, outcome, taskID, details string) (*models.DecisionRecord, error) {
	pdr := &models.DecisionRecord{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		TaskID:     taskID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, task_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.TaskID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns decision records for a task, oldest first. An empty
// taskID lists every record.
func (s *Store) ListPDR(taskID string) ([]models.DecisionRecord, error) {
	query := `SELECT id, action, inputs_hash, outcome, task_id, details, timestamp FROM pdr`
	var args []interface{}
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY timestamp ASC, rowid ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var out []models.DecisionRecord
	for rows.Next() {
		var p models.DecisionRecord
		var tid, details sql.NullString
		if err := rows.Scan(&p.ID, &p.Action, &p.InputsHash, &p.Outcome, &tid, &details, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		p.TaskID = tid.String
		p.Details = details.String
		out = append(out, p)
	}
	return out, rows.Err()
}
