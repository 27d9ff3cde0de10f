// Package pgvector stores the passage index and run history in PostgreSQL
// using the pgvector extension for cosine distance search.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

// Ensure Store implements the interfaces.
var (
	_ driven.PassageIndex = (*Store)(nil)
	_ driven.RunStore     = (*Store)(nil)
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS umlgen_index_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	embedding_model TEXT NOT NULL,
	dimensions INTEGER NOT NULL,
	passage_count INTEGER NOT NULL,
	document_count INTEGER NOT NULL,
	built_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS umlgen_passages (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	document_id TEXT NOT NULL,
	source TEXT NOT NULL,
	content TEXT NOT NULL,
	position INTEGER NOT NULL,
	embedding vector NOT NULL
);

CREATE TABLE IF NOT EXISTS umlgen_runs (
	request_id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	scenario TEXT NOT NULL,
	result JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_umlgen_runs_created ON umlgen_runs(created_at);
`

// Store is a PostgreSQL-backed passage index and run store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection and creates the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: index.dsn is required for the pgvector backend", domain.ErrConfiguration)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing dsn: %w", domain.ErrConfiguration, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== Passage Index ====================

// Info returns the persisted index metadata.
func (s *Store) Info(ctx context.Context) (*domain.IndexInfo, error) {
	var info domain.IndexInfo
	err := s.pool.QueryRow(ctx, `
		SELECT embedding_model, dimensions, passage_count, document_count, built_at
		FROM umlgen_index_meta WHERE id = 1
	`).Scan(&info.EmbeddingModel, &info.Dimensions, &info.PassageCount, &info.DocumentCount, &info.BuiltAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: reading index metadata: %w", domain.ErrIndexCorrupt, err)
	}
	return &info, nil
}

// Verify checks the stored passages against the metadata.
func (s *Store) Verify(ctx context.Context) error {
	info, err := s.Info(ctx)
	if err != nil {
		return err
	}

	var count, bad int
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE vector_dims(embedding) != $1 OR btrim(content) = '')
		FROM umlgen_passages
	`, info.Dimensions).Scan(&count, &bad)
	if err != nil {
		return fmt.Errorf("%w: counting passages: %w", domain.ErrIndexCorrupt, err)
	}

	if count != info.PassageCount {
		return fmt.Errorf("%w: metadata records %d passages, found %d",
			domain.ErrIndexCorrupt, info.PassageCount, count)
	}
	if bad > 0 {
		return fmt.Errorf("%w: %d passages have unreadable content or embeddings", domain.ErrIndexCorrupt, bad)
	}
	return nil
}

// Replace swaps the stored passages and metadata in one transaction.
func (s *Store) Replace(ctx context.Context, info domain.IndexInfo, passages []domain.Passage) error {
	for i := range passages {
		if len(passages[i].Embedding) != info.Dimensions {
			return fmt.Errorf("%w: passage %s has %d dimensions, expected %d",
				domain.ErrInvalidInput, passages[i].ID, len(passages[i].Embedding), info.Dimensions)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DELETE FROM umlgen_passages"); err != nil {
		return fmt.Errorf("clearing passages: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM umlgen_index_meta"); err != nil {
		return fmt.Errorf("clearing index metadata: %w", err)
	}

	if len(passages) > 0 {
		batch := &pgx.Batch{}
		for i := range passages {
			p := &passages[i]
			batch.Queue(`
				INSERT INTO umlgen_passages (id, document_id, source, content, position, embedding)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, p.ID, p.DocumentID, p.Source, p.Content, p.Position, pgvector.NewVector(p.Embedding))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting passages: %w", err)
		}
	}

	info.PassageCount = len(passages)
	if _, err := tx.Exec(ctx, `
		INSERT INTO umlgen_index_meta (id, embedding_model, dimensions, passage_count, document_count, built_at)
		VALUES (1, $1, $2, $3, $4, $5)
	`, info.EmbeddingModel, info.Dimensions, info.PassageCount, info.DocumentCount, info.BuiltAt); err != nil {
		return fmt.Errorf("writing index metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing index: %w", err)
	}
	return nil
}

// Search returns the k passages nearest to query by cosine distance.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]domain.ScoredPassage, error) {
	if k <= 0 {
		return []domain.ScoredPassage{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, source, content, position, embedding,
		       1 - (embedding <=> $1) AS similarity
		FROM umlgen_passages
		ORDER BY embedding <=> $1, seq
		LIMIT $2
	`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("searching passages: %w", err)
	}
	defer rows.Close()

	results := make([]domain.ScoredPassage, 0, k)
	for rows.Next() {
		var sp domain.ScoredPassage
		var embedding pgvector.Vector
		if err := rows.Scan(&sp.Passage.ID, &sp.Passage.DocumentID, &sp.Passage.Source,
			&sp.Passage.Content, &sp.Passage.Position, &embedding, &sp.Similarity); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		sp.Passage.Embedding = embedding.Slice()
		results = append(results, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passages: %w", err)
	}
	return results, nil
}

// ==================== Run Store ====================

// SaveRun stores or updates a run record.
func (s *Store) SaveRun(ctx context.Context, run domain.RunRecord) error {
	if run.RequestID == "" {
		return domain.ErrInvalidInput
	}

	var result []byte
	if run.Result != nil {
		var err error
		if result, err = json.Marshal(run.Result); err != nil {
			return fmt.Errorf("marshalling result: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO umlgen_runs (request_id, mode, status, scenario, result, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_id) DO UPDATE SET
			mode = EXCLUDED.mode,
			status = EXCLUDED.status,
			scenario = EXCLUDED.scenario,
			result = EXCLUDED.result,
			finished_at = EXCLUDED.finished_at
	`, run.RequestID, string(run.Mode), string(run.Status), run.Scenario, result, run.CreatedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by request ID.
func (s *Store) GetRun(ctx context.Context, requestID string) (*domain.RunRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT request_id, mode, status, scenario, result, created_at, finished_at
		FROM umlgen_runs WHERE request_id = $1
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	runs, err := collectRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, domain.ErrNotFound
	}
	return &runs[0], nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT request_id, mode, status, scenario, result, created_at, finished_at
		FROM umlgen_runs ORDER BY created_at DESC LIMIT $1
	`, limitArg)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return collectRuns(rows)
}

func collectRuns(rows pgx.Rows) ([]domain.RunRecord, error) {
	defer rows.Close()

	var runs []domain.RunRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var run domain.RunRecord
		var mode, status string
		var result []byte
		if err := rows.Scan(&run.RequestID, &mode, &status, &run.Scenario,
			&result, &run.CreatedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Mode = domain.PipelineMode(mode)
		run.Status = domain.RunStatus(status)
		if len(result) > 0 {
			var r domain.RunResult
			if err := json.Unmarshal(result, &r); err != nil {
				return nil, fmt.Errorf("unmarshalling result: %w", err)
			}
			run.Result = &r
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}
