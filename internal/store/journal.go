package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Run kinds.
const (
	RunKindDeploy = "deploy"
	RunKindExtend = "extend"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunSkipped   = "skipped"
)

// ErrRunNotFound is returned when a run id has no journal entry.
var ErrRunNotFound = errors.New("run not found")

// Run is one deploy or extend invocation.
type Run struct {
	ID         string `json:"id"`
	Seq        int64  `json:"seq"`
	Kind       string `json:"kind"`
	Network    string `json:"network"`
	Status     string `json:"status"`
	FailedStep string `json:"failed_step,omitempty"`
	Error      string `json:"error,omitempty"`
	Manifest   string `json:"manifest,omitempty"` // final manifest JSON, set on success
}

// Step is one confirmed construction (or reuse) within a run.
type Step struct {
	RunID   string `json:"run_id"`
	Seq     int64  `json:"seq"`
	Step    string `json:"step"`
	Role    string `json:"role"`
	Kind    string `json:"kind"`
	Address string `json:"address"`
	Reused  bool   `json:"reused,omitempty"`
}

// BeginRun records a new run in the running state.
func (s *Store) BeginRun(ctx context.Context, id, kind, network string) (Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return Run{}, fmt.Errorf("begin run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, seq, kind, network, status)
		VALUES (?, ?, ?, ?, ?)
	`, id, seq, kind, network, RunRunning)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("begin run: commit: %w", err)
	}

	return Run{ID: id, Seq: seq, Kind: kind, Network: network, Status: RunRunning}, nil
}

// RecordStep appends a confirmed step to a run. Step.Seq must be unique
// within the run.
func (s *Store) RecordStep(ctx context.Context, step Step) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (run_id, seq, step, role, kind, address, reused)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, step.RunID, step.Seq, step.Step, step.Role, step.Kind, step.Address, step.Reused)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

// FinishRun moves a run out of the running state.
func (s *Store) FinishRun(ctx context.Context, id, status, failedStep, errMsg, manifest string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, failed_step = ?, error = ?, manifest = ?
		WHERE id = ?
	`, status, failedStep, errMsg, manifest, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// GetRun returns a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, kind, network, status, failed_step, error, manifest
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns runs in logical order. An empty network lists all.
//
// Returns an empty slice (not nil) when there are no runs.
func (s *Store) ListRuns(ctx context.Context, network string) ([]Run, error) {
	query := `
		SELECT id, seq, kind, network, status, failed_step, error, manifest
		FROM runs`
	var args []any
	if network != "" {
		query += ` WHERE network = ?`
		args = append(args, network)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListSteps returns a run's steps in logical order.
//
// Returns an empty slice (not nil) when the run has no steps.
func (s *Store) ListSteps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, step, role, kind, address, reused
		FROM steps
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []Step{}
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.RunID, &st.Seq, &st.Step, &st.Role, &st.Kind, &st.Address, &st.Reused); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Seq, &r.Kind, &r.Network, &r.Status, &r.FailedStep, &r.Error, &r.Manifest)
	return r, err
}
