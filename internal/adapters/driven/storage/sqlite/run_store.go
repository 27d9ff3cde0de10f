package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// timeLayout has fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// SaveRun stores or updates a run record.
func (s *runStore) SaveRun(ctx context.Context, run domain.RunRecord) error {
	if run.RequestID == "" {
		return domain.ErrInvalidInput
	}

	resultJSON, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("marshalling result: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO runs (request_id, mode, status, scenario, result, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			mode = excluded.mode,
			status = excluded.status,
			scenario = excluded.scenario,
			result = excluded.result,
			finished_at = excluded.finished_at
	`, run.RequestID, string(run.Mode), string(run.Status), run.Scenario, string(resultJSON),
		run.CreatedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by request ID.
func (s *runStore) GetRun(ctx context.Context, requestID string) (*domain.RunRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT request_id, mode, status, scenario, result, created_at, finished_at
		FROM runs WHERE request_id = ?
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying run: %w", err)
		}
		return nil, domain.ErrNotFound
	}
	return scanRun(rows)
}

// ListRuns returns the most recent runs first.
func (s *runStore) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT request_id, mode, status, scenario, result, created_at, finished_at
		FROM runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

func scanRun(rows *sql.Rows) (*domain.RunRecord, error) {
	var run domain.RunRecord
	var mode, status string
	var resultJSON sql.NullString
	var createdAt, finishedAt string

	if err := rows.Scan(&run.RequestID, &mode, &status, &run.Scenario,
		&resultJSON, &createdAt, &finishedAt); err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.Mode = domain.PipelineMode(mode)
	run.Status = domain.RunStatus(status)

	if resultJSON.Valid && resultJSON.String != "" && resultJSON.String != jsonNull {
		var result domain.RunResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("unmarshalling result: %w", err)
		}
		run.Result = &result
	}

	var err error
	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
		return nil, fmt.Errorf("parsing finished_at: %w", err)
	}
	return &run, nil
}
