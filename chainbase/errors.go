package chainbase

import "errors"

// Store-level errors. Callers translate these into their own taxonomy.
var (
	ErrNotFound      = errors.New("chainbase: object not found")
	ErrDuplicateKey  = errors.New("chainbase: duplicate key")
	ErrNoSession     = errors.New("chainbase: mutation outside an undo session")
	ErrSessionClosed = errors.New("chainbase: undo session already closed")
	ErrSessionOrder  = errors.New("chainbase: undo session is not the innermost")
	ErrNoRevision    = errors.New("chainbase: no reversible revision")
	ErrTableExists   = errors.New("chainbase: table already registered")
	ErrNotEmpty      = errors.New("chainbase: table is not empty")
	ErrPendingUndo   = errors.New("chainbase: undo state pending")
)
