package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/umlgen/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// DatabaseFile is the file name of the database within the data directory.
const DatabaseFile = "index.db"

// SQLite primary result codes that indicate an unreadable database.
const (
	sqliteCorrupt = 11
	sqliteNotADB  = 26
)

// Store is a SQLite-backed passage index and run history.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.umlgen/data/index.db.
// An unreadable database file yields an error wrapping domain.ErrIndexCorrupt.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".umlgen", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// WAL mode lets queries proceed while a rebuild writes
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		if isCorruption(err) {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrIndexCorrupt, dbPath, err)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// OpenOrReset opens the store and, when the database file is unreadable,
// removes it and starts from an empty database. The returned flag reports
// whether a reset happened.
func OpenOrReset(dataDir string) (*Store, bool, error) {
	s, err := NewStore(dataDir)
	if err == nil {
		return s, false, nil
	}
	if !errors.Is(err, domain.ErrIndexCorrupt) {
		return nil, false, err
	}

	logger.Warn("index database is corrupt, recreating: %v", err)
	if err := removeDatabase(dataDir); err != nil {
		return nil, false, err
	}

	s, err = NewStore(dataDir)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func removeDatabase(dataDir string) error {
	base := filepath.Join(dataDir, DatabaseFile)
	for _, p := range []string{base, base + "-wal", base + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// PassageIndex returns a PassageIndex backed by this store.
func (s *Store) PassageIndex() driven.PassageIndex {
	return &passageIndex{store: s}
}

// RunStore returns a RunStore backed by this store.
func (s *Store) RunStore() driven.RunStore {
	return &runStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_index.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}

		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Passage Index ====================

// passageIndex implements driven.PassageIndex.
type passageIndex struct {
	store *Store
}

var _ driven.PassageIndex = (*passageIndex)(nil)

// Info returns the persisted index metadata.
func (p *passageIndex) Info(ctx context.Context) (*domain.IndexInfo, error) {
	row := p.store.db.QueryRowContext(ctx, `
		SELECT embedding_model, dimensions, passage_count, document_count, built_at
		FROM index_meta WHERE id = 1
	`)

	var info domain.IndexInfo
	var builtAt string
	if err := row.Scan(&info.EmbeddingModel, &info.Dimensions, &info.PassageCount,
		&info.DocumentCount, &builtAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: reading index metadata: %w", domain.ErrIndexCorrupt, err)
	}

	t, err := time.Parse(timeLayout, builtAt)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing built_at: %w", domain.ErrIndexCorrupt, err)
	}
	info.BuiltAt = t

	return &info, nil
}

// Verify checks that the stored passages match the recorded metadata.
func (p *passageIndex) Verify(ctx context.Context) error {
	info, err := p.Info(ctx)
	if err != nil {
		return err
	}

	var count int
	var badEmbeddings int
	row := p.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN length(embedding) != ? OR trim(content) = '' THEN 1 ELSE 0 END), 0)
		FROM passages
	`, info.Dimensions*4)
	if err := row.Scan(&count, &badEmbeddings); err != nil {
		return fmt.Errorf("%w: counting passages: %w", domain.ErrIndexCorrupt, err)
	}

	if count != info.PassageCount {
		return fmt.Errorf("%w: metadata records %d passages, found %d",
			domain.ErrIndexCorrupt, info.PassageCount, count)
	}
	if badEmbeddings > 0 {
		return fmt.Errorf("%w: %d passages have unreadable content or embeddings",
			domain.ErrIndexCorrupt, badEmbeddings)
	}
	return nil
}

// Replace swaps the stored passages and metadata in one transaction.
func (p *passageIndex) Replace(ctx context.Context, info domain.IndexInfo, passages []domain.Passage) error {
	tx, err := p.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM passages"); err != nil {
		return fmt.Errorf("clearing passages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM index_meta"); err != nil {
		return fmt.Errorf("clearing index metadata: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO passages (id, document_id, source, content, position, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing passage insert: %w", err)
	}
	defer stmt.Close()

	for i := range passages {
		passage := &passages[i]
		if len(passage.Embedding) != info.Dimensions {
			return fmt.Errorf("%w: passage %s has %d dimensions, expected %d",
				domain.ErrInvalidInput, passage.ID, len(passage.Embedding), info.Dimensions)
		}
		if _, err := stmt.ExecContext(ctx, passage.ID, passage.DocumentID, passage.Source,
			passage.Content, passage.Position, float32SliceToBytes(passage.Embedding)); err != nil {
			return fmt.Errorf("inserting passage %s: %w", passage.ID, err)
		}
	}

	info.PassageCount = len(passages)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO index_meta (id, embedding_model, dimensions, passage_count, document_count, built_at)
		VALUES (1, ?, ?, ?, ?, ?)
	`, info.EmbeddingModel, info.Dimensions, info.PassageCount, info.DocumentCount,
		info.BuiltAt.UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("writing index metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index: %w", err)
	}
	return nil
}

// Search scores every stored passage against the query vector.
// The corpus is a handful of reference PDFs, so a full scan is adequate.
func (p *passageIndex) Search(ctx context.Context, query []float32, k int) ([]domain.ScoredPassage, error) {
	rows, err := p.store.db.QueryContext(ctx, `
		SELECT id, document_id, source, content, position, embedding
		FROM passages ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("querying passages: %w", err)
	}
	defer rows.Close()

	var passages []domain.Passage //nolint:prealloc // size unknown from query
	for rows.Next() {
		var passage domain.Passage
		var blob []byte
		if err := rows.Scan(&passage.ID, &passage.DocumentID, &passage.Source,
			&passage.Content, &passage.Position, &blob); err != nil {
			return nil, fmt.Errorf("%w: scanning passage: %w", domain.ErrIndexCorrupt, err)
		}
		if len(blob)%4 != 0 {
			return nil, fmt.Errorf("%w: passage %s has a truncated embedding", domain.ErrIndexCorrupt, passage.ID)
		}
		passage.Embedding = bytesToFloat32Slice(blob)
		passages = append(passages, passage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passages: %w", err)
	}

	return domain.RankPassages(query, passages, k), nil
}

// Close is a no-op; the owning Store closes the database.
func (p *passageIndex) Close() error {
	return nil
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts []float32 to a little-endian byte slice.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return []byte{}
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// isCorruption reports whether err means the database file cannot be read.
func isCorruption(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqliteCorrupt, sqliteNotADB:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}
