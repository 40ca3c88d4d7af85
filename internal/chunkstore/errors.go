package chunkstore

import "errors"

var (
	// ErrNotFound indicates the requested session or chunk does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStorageFull indicates the configured payload quota would be exceeded.
	// Callers must surface this to the user; admission of new chunks is
	// blocked until space is freed.
	ErrStorageFull = errors.New("chunk store quota exhausted")
	// ErrStaleState indicates a state update was issued against a chunk whose
	// current state no longer matches the expected one.
	ErrStaleState = errors.New("chunk state changed concurrently")
	// ErrDuplicateChunk indicates a chunk with the same (session, seq) key was
	// already persisted. Payloads are immutable; a second put is a caller bug.
	ErrDuplicateChunk = errors.New("chunk already exists")
)
