package storage

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// inMemoryOptions keeps a single version of each key and no logging. Nothing
// survives Close.
func inMemoryOptions() badger.Options {
	return badger.DefaultOptions("").
		WithInMemory(true).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
}

// Open opens the database at path, creating the directory if needed. With
// inMemory set path is ignored.
func Open(path string, inMemory bool) (*badger.DB, error) {
	if inMemory {
		db, err := badger.Open(inMemoryOptions())
		if err != nil {
			return nil, fmt.Errorf("opening in-memory database: %w", err)
		}
		return db, nil
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	opts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return db, nil
}
