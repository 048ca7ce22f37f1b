// Modul: store.go
// Beschreibung: SQLite-gestuetzte Trainingshistorie.
// Enthaelt ensureDB sowie Runs anlegen, Epochen aufzeichnen und abfragen.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileName is the database file below the working directory.
const FileName = "runs.db"

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrAmbiguousRun = errors.New("run id prefix is ambiguous")
)

type Store struct {
	DBPath string

	// dbMu protects database initialization only
	dbMu sync.Mutex
	db   *database
}

// New returns a store backed by workdir/runs.db. The database is opened on
// first use.
func New(workdir string) *Store {
	return &Store{DBPath: filepath.Join(workdir, FileName)}
}

func (s *Store) ensureDB() error {
	if s.db != nil {
		return nil
	}

	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.DBPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	database, err := newDatabase(s.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	s.db = database
	return nil
}

func (s *Store) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// BeginRun stores r with a fresh id and status running.
func (s *Store) BeginRun(r Run) (Run, error) {
	if err := s.ensureDB(); err != nil {
		return Run{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Run{}, fmt.Errorf("generate run id: %w", err)
	}
	r.ID = id.String()
	r.Status = StatusRunning
	r.CreatedAt = time.Now().UTC()
	r.FinishedAt = nil

	_, err = s.db.conn.Exec(`
		INSERT INTO runs (id, dataset, hidden_size, batch_size, updates_per_epoch, max_epoch, learning_rate, seed, dtype, status, checkpoint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Dataset, r.HiddenSize, r.BatchSize, r.UpdatesPerEpoch, r.MaxEpoch, r.LearningRate, r.Seed, r.DType, r.Status, r.Checkpoint, r.CreatedAt)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

// RecordEpoch stores the summary of one epoch. Recording the same epoch
// twice replaces the earlier row.
func (s *Store) RecordEpoch(runID string, e Epoch) error {
	if err := s.ensureDB(); err != nil {
		return err
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.conn.Exec(`
		INSERT OR REPLACE INTO epochs (run_id, epoch, loss, stddev, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, e.Epoch, e.Loss, e.Stddev, e.Duration.Milliseconds(), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert epoch: %w", err)
	}
	return nil
}

// FinishRun marks a run as done with the given status.
func (s *Store) FinishRun(runID string, status RunStatus, checkpoint string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}

	res, err := s.db.conn.Exec(`
		UPDATE runs SET status = ?, checkpoint = ?, finished_at = ? WHERE id = ?
	`, status, checkpoint, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const selectRuns = `
	SELECT r.id, r.dataset, r.hidden_size, r.batch_size, r.updates_per_epoch, r.max_epoch,
		r.learning_rate, r.seed, r.dtype, r.status, r.checkpoint, r.created_at, r.finished_at,
		(SELECT COUNT(*) FROM epochs e WHERE e.run_id = r.id),
		COALESCE((SELECT e.loss FROM epochs e WHERE e.run_id = r.id ORDER BY e.epoch DESC LIMIT 1), 0)
	FROM runs r
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Dataset, &r.HiddenSize, &r.BatchSize, &r.UpdatesPerEpoch, &r.MaxEpoch,
		&r.LearningRate, &r.Seed, &r.DType, &r.Status, &r.Checkpoint, &r.CreatedAt, &finished,
		&r.Epochs, &r.LastLoss)
	if err != nil {
		return Run{}, err
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return r, nil
}

// Runs lists all runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	rows, err := s.db.conn.Query(selectRuns + ` ORDER BY r.created_at DESC, r.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run looks up a run by its id or an unambiguous id prefix.
func (s *Store) Run(idOrPrefix string) (Run, error) {
	if err := s.ensureDB(); err != nil {
		return Run{}, err
	}
	if idOrPrefix == "" {
		return Run{}, fmt.Errorf("%w: empty id", ErrRunNotFound)
	}

	rows, err := s.db.conn.Query(selectRuns+` WHERE r.id LIKE ? || '%' LIMIT 2`, idOrPrefix)
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return Run{}, fmt.Errorf("scan run: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}

	switch len(found) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, idOrPrefix)
	case 1:
		return found[0], nil
	default:
		return Run{}, fmt.Errorf("%w: %s", ErrAmbiguousRun, idOrPrefix)
	}
}

// Epochs returns the recorded epochs of a run in order.
func (s *Store) Epochs(runID string) ([]Epoch, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	rows, err := s.db.conn.Query(`
		SELECT epoch, loss, stddev, duration_ms, created_at
		FROM epochs WHERE run_id = ? ORDER BY epoch
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query epochs: %w", err)
	}
	defer rows.Close()

	var epochs []Epoch
	for rows.Next() {
		var e Epoch
		var ms int64
		if err := rows.Scan(&e.Epoch, &e.Loss, &e.Stddev, &ms, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan epoch: %w", err)
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}
