// Package store persists evaluation runs and their reports in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/explainlab/stability-platform/internal/stability"
	apperrors "github.com/explainlab/stability-platform/pkg/errors"
	"github.com/explainlab/stability-platform/pkg/postgres"
)

// Run is a persisted evaluation run.
type Run struct {
	ID           string            `json:"id"`
	State        string            `json:"state"`
	ClassifierID string            `json:"classifier_id"`
	Method       string            `json:"method"`
	Options      stability.Options `json:"options"`
	Report       *stability.Report `json:"report,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Store persists runs in PostgreSQL.
//
// It requires a `stability_runs` table:
//
//	CREATE TABLE stability_runs (
//	    id            TEXT PRIMARY KEY,
//	    state         TEXT NOT NULL,
//	    classifier_id TEXT NOT NULL,
//	    method        TEXT NOT NULL,
//	    options       JSONB NOT NULL,
//	    report        JSONB,
//	    error         TEXT NOT NULL DEFAULT '',
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a run store.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "run-store"),
	}
}

// Create inserts a new run in its initial state.
func (s *Store) Create(ctx context.Context, run Run) error {
	opts, err := json.Marshal(run.Options)
	if err != nil {
		return fmt.Errorf("marshaling run options: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO stability_runs (id, state, classifier_id, method, options, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		run.ID, run.State, run.ClassifierID, run.Method, opts, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	s.logger.Info("run created", "run_id", run.ID, "method", run.Method)
	return nil
}

// SetState updates only the lifecycle state of a run.
func (s *Store) SetState(ctx context.Context, runID string, state stability.State) error {
	result, err := s.db.DB.ExecContext(ctx,
		`UPDATE stability_runs SET state = $2, updated_at = $3 WHERE id = $1`,
		runID, state.String(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("updating run %s state: %w", runID, err)
	}
	return checkAffected(result, runID)
}

// Finish records the terminal state of a run together with its report (on
// success) or error text (on failure). Terminal states are written once:
// a run already done or failed is left untouched.
func (s *Store) Finish(ctx context.Context, runID string, state stability.State, report *stability.Report, runErr error) error {
	var reportData []byte
	if report != nil {
		var err error
		reportData, err = json.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshaling report: %w", err)
		}
	}
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT state FROM stability_runs WHERE id = $1 FOR UPDATE`, runID,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return apperrors.Newf(apperrors.ErrRunNotFound, 404, "run %s", runID)
		}
		if err != nil {
			return fmt.Errorf("locking run %s: %w", runID, err)
		}
		if current == stability.StateDone.String() || current == stability.StateFailed.String() {
			s.logger.Warn("run already terminal, finish ignored", "run_id", runID, "state", current)
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE stability_runs SET state = $2, report = $3, error = $4, updated_at = $5 WHERE id = $1`,
			runID, state.String(), nullableJSON(reportData), errText, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("finishing run %s: %w", runID, err)
		}
		return nil
	})
}

// Get loads one run by ID.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT id, state, classifier_id, method, options, report, error, created_at, updated_at
		 FROM stability_runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrRunNotFound, 404, "run %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, state, classifier_id, method, options, report, error, created_at, updated_at
		 FROM stability_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return runs, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var run Run
	var opts []byte
	var report sql.NullString
	if err := row.Scan(&run.ID, &run.State, &run.ClassifierID, &run.Method,
		&opts, &report, &run.Error, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(opts, &run.Options); err != nil {
		return nil, fmt.Errorf("unmarshaling run options: %w", err)
	}
	if report.Valid && report.String != "" {
		run.Report = &stability.Report{}
		if err := json.Unmarshal([]byte(report.String), run.Report); err != nil {
			return nil, fmt.Errorf("unmarshaling run report: %w", err)
		}
	}
	return &run, nil
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}

func checkAffected(result sql.Result, runID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return nil
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrRunNotFound, 404, "run %s", runID)
	}
	return nil
}
