package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("not found")

// Run is one recorded evaluation or sensitivity analysis.
type Run struct {
	// Seq is the monotonically increasing insert sequence.
	Seq int64

	// ID is the caller-assigned run identifier (a UUID in the CLI).
	ID string

	// Key is the content-addressed run key: a hash of the model
	// fingerprint, the kind, and the parameters.
	Key string

	// ModelFingerprint identifies the model the run evaluated.
	ModelFingerprint string

	// Kind names the analysis: "evaluate", "sensitivity/value",
	// "sensitivity/probability", or "sensitivity/risk".
	Kind string

	// Params is the canonical JSON of the run parameters.
	Params json.RawMessage

	// Result is the JSON report produced by the run.
	Result json.RawMessage

	// RootValue is the root result of the run, denormalized for listings.
	RootValue float64

	// CreatedAt is the insert timestamp, UTC.
	CreatedAt time.Time
}

const timeLayout = "2006-01-02T15:04:05.999Z"

// WriteModel records a model spec under its fingerprint. Writing the same
// fingerprint again is a no-op; the spec JSON of the first write wins,
// which is safe because the fingerprint is derived from the spec content.
func (s *Store) WriteModel(ctx context.Context, fingerprint, name string, spec json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO models (fingerprint, name, spec)
		VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`, fingerprint, name, string(spec))
	if err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}

// WriteRun records a run. Returns the stored run's ID and whether a new
// record was inserted.
//
// Uses ON CONFLICT(run_key) DO NOTHING for idempotency: re-recording a run
// with the same content-addressed key returns the existing record's ID and
// inserted=false. The model referenced by ModelFingerprint must already be
// written (foreign key constraint).
func (s *Store) WriteRun(ctx context.Context, run Run) (id string, inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, run_key, model_fingerprint, kind, params, result, root_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_key) DO NOTHING
	`,
		run.ID,
		run.Key,
		run.ModelFingerprint,
		run.Kind,
		string(run.Params),
		string(run.Result),
		run.RootValue,
	)
	if err != nil {
		return "", false, fmt.Errorf("write run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("write run: rows affected: %w", err)
	}

	if affected == 0 {
		// The run key already exists; surface the original record's ID.
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM runs WHERE run_key = ?`, run.Key,
		).Scan(&id); err != nil {
			return "", false, fmt.Errorf("write run: select existing: %w", err)
		}
	} else {
		id = run.ID
		inserted = true
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("write run: commit: %w", err)
	}
	return id, inserted, nil
}

// GetRun returns the run with the given content-addressed key, or
// ErrNotFound.
func (s *Store) GetRun(ctx context.Context, key string) (*Run, error) {
	return s.getRunWhere(ctx, "run_key = ?", key)
}

// GetRunByID returns the run with the given ID, or ErrNotFound.
func (s *Store) GetRunByID(ctx context.Context, id string) (*Run, error) {
	return s.getRunWhere(ctx, "id = ?", id)
}

func (s *Store) getRunWhere(ctx context.Context, where string, arg any) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, run_key, model_fingerprint, kind, params, result, root_value, created_at
		FROM runs WHERE `+where, arg)

	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first. Empty fingerprint or kind matches
// every model or kind; limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, fingerprint, kind string, limit int) ([]Run, error) {
	query := `
		SELECT seq, id, run_key, model_fingerprint, kind, params, result, root_value, created_at
		FROM runs WHERE 1=1`
	var args []any
	if fingerprint != "" {
		query += ` AND model_fingerprint = ?`
		args = append(args, fingerprint)
	}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetModelSpec returns the stored spec JSON for a fingerprint, or
// ErrNotFound.
func (s *Store) GetModelSpec(ctx context.Context, fingerprint string) (json.RawMessage, error) {
	var spec string
	err := s.db.QueryRowContext(ctx,
		`SELECT spec FROM models WHERE fingerprint = ?`, fingerprint,
	).Scan(&spec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return json.RawMessage(spec), nil
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var run Run
	var params, result, createdAt string
	if err := scan(
		&run.Seq, &run.ID, &run.Key, &run.ModelFingerprint,
		&run.Kind, &params, &result, &run.RootValue, &createdAt,
	); err != nil {
		return nil, err
	}
	run.Params = json.RawMessage(params)
	run.Result = json.RawMessage(result)

	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	run.CreatedAt = ts
	return &run, nil
}
