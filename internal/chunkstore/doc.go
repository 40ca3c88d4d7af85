// Package chunkstore persists recorded audio chunks in SQLite and tracks
// their delivery state. Chunks are keyed by (session, sequence); payloads are
// written once and never modified, while delivery state advances through
// pending, uploading, uploaded, and failed. The store is the single source of
// truth for what still needs to reach the remote end after a crash or
// restart.
package chunkstore
