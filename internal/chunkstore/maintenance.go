package chunkstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"
)

// Stats aggregates chunk counts and stored payload volume. An empty sessionID
// aggregates across all sessions.
func (s *Store) Stats(ctx context.Context, sessionID string) (*Stats, error) {
	ctx = ensureContext(ctx)

	query := `SELECT state, COUNT(1), COALESCE(SUM(size_bytes), 0) FROM chunks`
	var args []any
	if strings.TrimSpace(sessionID) != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` GROUP BY state`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunk stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{ByState: make(map[State]int)}
	for rows.Next() {
		var (
			stateStr string
			count    int
			bytes    int64
		)
		if err := rows.Scan(&stateStr, &count, &bytes); err != nil {
			return nil, fmt.Errorf("scan chunk stats: %w", err)
		}
		stats.ByState[State(stateStr)] = count
		stats.TotalChunks += count
		stats.TotalBytes += bytes
	}
	return stats, rows.Err()
}

// StoredBytes returns the total payload volume currently persisted.
func (s *Store) StoredBytes(ctx context.Context) (int64, error) {
	var stored int64
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COALESCE(SUM(size_bytes), 0) FROM chunks`,
	).Scan(&stored)
	if err != nil {
		return 0, fmt.Errorf("query stored bytes: %w", err)
	}
	return stored, nil
}

// DeleteUploaded removes chunks that have been delivered, freeing quota. An
// empty sessionID sweeps all sessions. Session counters keep their historical
// totals.
func (s *Store) DeleteUploaded(ctx context.Context, sessionID string) (int64, error) {
	query := `DELETE FROM chunks WHERE state = ?`
	args := []any{StateUploaded}
	if strings.TrimSpace(sessionID) != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete uploaded chunks: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOlderThan removes chunks captured before the cutoff regardless of
// state. Used by retention cleanup; terminal failures older than the retention
// window are abandoned rather than kept forever.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM chunks WHERE captured_at < ?`,
		timestamp(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired chunks: %w", err)
	}
	return res.RowsAffected()
}

// Vacuum reclaims file space after large deletes.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ensureContext(ctx), "VACUUM"); err != nil {
		return fmt.Errorf("vacuum database: %w", err)
	}
	return nil
}

// CheckHealth runs diagnostic checks against the chunk database.
func (s *Store) CheckHealth(ctx context.Context) *DatabaseHealth {
	ctx = ensureContext(ctx)
	health := &DatabaseHealth{DBPath: s.path}

	if _, err := os.Stat(s.path); err != nil {
		health.Error = fmt.Sprintf("database file: %v", err)
		return health
	}
	health.DatabaseExists = true

	if err := s.db.PingContext(ctx); err != nil {
		health.Error = fmt.Sprintf("ping database: %v", err)
		return health
	}
	health.DatabaseReadable = true

	var tableCount int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name IN ('sessions', 'chunks')",
	).Scan(&tableCount)
	if err != nil {
		health.Error = fmt.Sprintf("check tables: %v", err)
		return health
	}
	health.TableExists = tableCount == 2
	if !health.TableExists {
		health.Error = "sessions or chunks table missing"
		return health
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = fmt.Sprintf("integrity check: %v", err)
		return health
	}
	health.IntegrityCheck = integrity == "ok"
	if !health.IntegrityCheck {
		health.Error = fmt.Sprintf("integrity check failed: %s", integrity)
		return health
	}

	var total sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM chunks").Scan(&total); err != nil {
		health.Error = fmt.Sprintf("count chunks: %v", err)
		return health
	}
	health.TotalChunks = int(total.Int64)

	return health
}
