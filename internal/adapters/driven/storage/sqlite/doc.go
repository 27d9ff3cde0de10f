// Package sqlite provides a SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. One database file serves two interfaces:
//
//   - PassageIndex: passages, their embeddings and the index metadata
//   - RunStore: the history of finished generation runs
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Corruption
//
// A database file SQLite cannot read is reported as domain.ErrIndexCorrupt.
// OpenOrReset removes such a file so the index can be rebuilt from the PDFs.
//
// # Data Location
//
// By default, the database is stored at ~/.umlgen/data/index.db
package sqlite
