// internal/storage/archive/interface.go

// Package archive is cold storage for audit records: per-cycle analysis
// reports under reports/<symbol>/ and execution records under
// executions/. Backends only move bytes; the Archiver owns the record
// shapes and the path scheme.
package archive

import "context"

// Storage defines the interface for cold/archive storage backends
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}
