// Package repository provides data access implementations
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abelzeko/surgecast/internal/entities"
	_ "github.com/mattn/go-sqlite3"
)

// ErrCycleNotFound is returned when a cycle has no record
var ErrCycleNotFound = errors.New("cycle not found")

// CycleRepository defines the persistence operations for forecast cycle state
type CycleRepository interface {
	SaveCycleStatus(rec entities.CycleRecord) error
	GetCycle(cycle string) (*entities.CycleRecord, error)
	ListCycles(limit int) ([]entities.CycleRecord, error)
	GetLastCycle(statuses ...entities.CycleStatus) (*entities.CycleRecord, error)
	SaveForcingFiles(files []entities.ForcingFile) error
	ListForcingFiles() ([]entities.ForcingFile, error)
	GetLastUpdateTime() (time.Time, error)
	Close() error
}

// SQLiteCycleRepository implements CycleRepository using SQLite
type SQLiteCycleRepository struct {
	db     *sql.DB
	DBPath string
}

// NewSQLiteCycleRepository creates and initializes a new SQLite repository
func NewSQLiteCycleRepository(dbPath string) (*SQLiteCycleRepository, error) {
	if dbPath == "" {
		dbPath = filepath.Join("data", "surgecast.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	log.Printf("Opening database at %s", dbPath)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		producer TEXT NOT NULL DEFAULT '',
		run_id TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cycles_status ON cycles(status);
	CREATE TABLE IF NOT EXISTS forcing_files (
		cycle TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		downloaded_at TEXT NOT NULL
	);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &SQLiteCycleRepository{
		db:     db,
		DBPath: dbPath,
	}, nil
}

// Close closes the database connection
func (r *SQLiteCycleRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveCycleStatus inserts or updates the record of a cycle. The start time is
// kept from the first insert, an empty run id never overwrites a stored one.
func (r *SQLiteCycleRepository) SaveCycleStatus(rec entities.CycleRecord) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("invalid status %q for cycle %s", rec.Status, rec.Cycle)
	}
	now := time.Now().UTC()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.UpdatedAt
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO cycles(cycle, status, producer, run_id, message, started_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle) DO UPDATE SET
		status=excluded.status,
		producer=excluded.producer,
		run_id=CASE WHEN excluded.run_id = '' THEN cycles.run_id ELSE excluded.run_id END,
		message=excluded.message,
		updated_at=excluded.updated_at
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %v", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(
		rec.Cycle,
		string(rec.Status),
		rec.Producer,
		rec.RunID,
		rec.Message,
		formatTime(rec.StartedAt),
		formatTime(rec.UpdatedAt),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to save status of cycle %s: %v", rec.Cycle, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	log.Printf("Cycle %s is now %s", rec.Cycle, rec.Status)
	return nil
}

const cycleColumns = `id, cycle, status, producer, run_id, message, started_at, updated_at`

// GetCycle retrieves the record of one cycle
func (r *SQLiteCycleRepository) GetCycle(cycle string) (*entities.CycleRecord, error) {
	row := r.db.QueryRow(`SELECT `+cycleColumns+` FROM cycles WHERE cycle = ?`, cycle)
	rec, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCycleNotFound, cycle)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle %s: %v", cycle, err)
	}
	return rec, nil
}

// ListCycles returns the most recent cycles, newest first
func (r *SQLiteCycleRepository) ListCycles(limit int) ([]entities.CycleRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(`SELECT `+cycleColumns+` FROM cycles ORDER BY cycle DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %v", err)
	}
	defer rows.Close()

	var result []entities.CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		result = append(result, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %v", err)
	}
	return result, nil
}

// GetLastCycle returns the newest cycle, optionally restricted to the given statuses
func (r *SQLiteCycleRepository) GetLastCycle(statuses ...entities.CycleStatus) (*entities.CycleRecord, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY cycle DESC LIMIT 1`

	rec, err := scanCycle(r.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCycleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last cycle: %v", err)
	}
	return rec, nil
}

// SaveForcingFiles records downloaded source cycles
func (r *SQLiteCycleRepository) SaveForcingFiles(files []entities.ForcingFile) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO forcing_files(cycle, path, size, downloaded_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(cycle) DO UPDATE SET
		path=excluded.path,
		size=excluded.size,
		downloaded_at=excluded.downloaded_at
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %v", err)
	}
	defer stmt.Close()

	for _, f := range files {
		downloadedAt := f.DownloadedAt
		if downloadedAt.IsZero() {
			downloadedAt = time.Now().UTC()
		}
		if _, err := stmt.Exec(f.Cycle, f.Path, f.Size, formatTime(downloadedAt)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert forcing file for %s: %v", f.Cycle, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	log.Printf("Successfully saved %d forcing file records", len(files))
	return nil
}

// ListForcingFiles returns every recorded source cycle, oldest first
func (r *SQLiteCycleRepository) ListForcingFiles() ([]entities.ForcingFile, error) {
	rows, err := r.db.Query(`SELECT cycle, path, size, downloaded_at FROM forcing_files ORDER BY cycle`)
	if err != nil {
		return nil, fmt.Errorf("failed to query forcing files: %v", err)
	}
	defer rows.Close()

	var result []entities.ForcingFile
	for rows.Next() {
		var f entities.ForcingFile
		var downloadedAt string
		if err := rows.Scan(&f.Cycle, &f.Path, &f.Size, &downloadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		if f.DownloadedAt, err = parseTime(downloadedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %v", err)
	}
	return result, nil
}

// GetLastUpdateTime returns the most recent cycle update, zero when there is none
func (r *SQLiteCycleRepository) GetLastUpdateTime() (time.Time, error) {
	var ts sql.NullString
	if err := r.db.QueryRow("SELECT MAX(updated_at) FROM cycles").Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("failed to get last update time: %v", err)
	}
	if !ts.Valid || ts.String == "" {
		return time.Time{}, nil
	}
	return parseTime(ts.String)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (*entities.CycleRecord, error) {
	var rec entities.CycleRecord
	var status, startedAt, updatedAt string
	if err := row.Scan(
		&rec.ID,
		&rec.Cycle,
		&status,
		&rec.Producer,
		&rec.RunID,
		&rec.Message,
		&startedAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = entities.CycleStatus(status)

	var err error
	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Timestamps are stored as RFC3339 text in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %v", s, err)
	}
	return t, nil
}
