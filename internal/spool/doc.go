// Package spool ingests captured audio segments from a drop directory into
// the chunk store, one file per segment, keyed by directory name (session)
// and file name (sequence number).
package spool
