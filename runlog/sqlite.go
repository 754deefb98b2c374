//go:build sqlite

package runlog

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, session, optimizer, learning_rate, channels, vector_size, memory_size, blueprint, resumed, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session = excluded.session,
			optimizer = excluded.optimizer,
			learning_rate = excluded.learning_rate,
			channels = excluded.channels,
			vector_size = excluded.vector_size,
			memory_size = excluded.memory_size,
			blueprint = excluded.blueprint,
			resumed = excluded.resumed,
			started_at = excluded.started_at
	`, run.ID, run.Session, run.Optimizer, run.LearningRate, run.Channels, run.VectorSize,
		run.MemorySize, run.Blueprint, run.Resumed, run.StartedAt.UnixNano())
	return err
}

const runColumns = `id, session, optimizer, learning_rate, channels, vector_size, memory_size, blueprint, resumed, started_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run     Run
		started int64
	)
	err := row.Scan(&run.ID, &run.Session, &run.Optimizer, &run.LearningRate, &run.Channels,
		&run.VectorSize, &run.MemorySize, &run.Blueprint, &run.Resumed, &started)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(0, started)
	return run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Run{}, false, err
	}

	run, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) AppendSteps(ctx context.Context, runID string, steps []StepRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO steps (run_id, step, epoch, loss, learning_rate, at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			epoch = excluded.epoch,
			loss = excluded.loss,
			learning_rate = excluded.learning_rate,
			at = excluded.at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, step := range steps {
		if _, err := stmt.ExecContext(ctx, runID, step.Step, step.Epoch, step.Loss, step.LearningRate, step.At.UnixNano()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetSteps(ctx context.Context, runID string) ([]StepRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT step, epoch, loss, learning_rate, at FROM steps
		WHERE run_id = ? ORDER BY step
	`, runID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var (
			step StepRecord
			at   int64
		)
		if err := rows.Scan(&step.Step, &step.Epoch, &step.Loss, &step.LearningRate, &at); err != nil {
			return nil, false, err
		}
		step.At = time.Unix(0, at)
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return steps, len(steps) > 0, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			session TEXT NOT NULL,
			optimizer TEXT NOT NULL,
			learning_rate REAL NOT NULL,
			channels INTEGER NOT NULL,
			vector_size INTEGER NOT NULL,
			memory_size INTEGER NOT NULL,
			blueprint TEXT NOT NULL,
			resumed INTEGER NOT NULL,
			started_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			epoch INTEGER NOT NULL,
			loss REAL NOT NULL,
			learning_rate REAL NOT NULL,
			at INTEGER NOT NULL,
			PRIMARY KEY (run_id, step)
		);
	`)
	return err
}
