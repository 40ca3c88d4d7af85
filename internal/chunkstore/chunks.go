package chunkstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Put persists a freshly admitted chunk with state pending. The payload is
// immutable afterwards. Returns ErrStorageFull when the configured quota would
// be exceeded and ErrDuplicateChunk when the (session, seq) key already exists.
func (s *Store) Put(ctx context.Context, sessionID string, seq int64, payload []byte, contentType string, durationMs int64) error {
	if len(payload) == 0 {
		return errors.New("payload is empty")
	}
	if seq < 1 {
		return fmt.Errorf("sequence number must be >= 1, got %d", seq)
	}

	now := time.Now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		txCtx := ensureContext(ctx)

		if s.maxBytes > 0 {
			var stored int64
			if err := tx.QueryRowContext(txCtx, `SELECT COALESCE(SUM(size_bytes), 0) FROM chunks`).Scan(&stored); err != nil {
				return fmt.Errorf("query stored bytes: %w", err)
			}
			if stored+int64(len(payload)) > s.maxBytes {
				return fmt.Errorf("%w: %d bytes stored, %d byte quota", ErrStorageFull, stored, s.maxBytes)
			}
		}

		var exists int
		err := tx.QueryRowContext(txCtx,
			`SELECT COUNT(1) FROM chunks WHERE session_id = ? AND seq = ?`, sessionID, seq,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check chunk existence: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: %s/%d", ErrDuplicateChunk, sessionID, seq)
		}

		ts := timestamp(now)
		if _, err := tx.ExecContext(txCtx,
			`INSERT INTO chunks (
                session_id, seq, payload, size_bytes, content_type, duration_ms,
                captured_at, state, attempt_count, terminal, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
			sessionID,
			seq,
			payload,
			int64(len(payload)),
			contentType,
			durationMs,
			ts,
			StatePending,
			ts,
			ts,
		); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}

		if _, err := tx.ExecContext(txCtx,
			`UPDATE sessions SET chunks_total = chunks_total + 1, updated_at = ? WHERE id = ?`,
			ts, sessionID,
		); err != nil {
			return fmt.Errorf("bump session chunk count: %w", err)
		}
		return nil
	})
}

// Get fetches a chunk including its payload bytes.
func (s *Store) Get(ctx context.Context, sessionID string, seq int64) (*Chunk, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+chunkColumns+`, payload FROM chunks WHERE session_id = ? AND seq = ?`,
		sessionID, seq,
	)
	chunk, err := scanChunk(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	return chunk, nil
}

// ListByState returns chunk metadata (no payloads) matching a state, ordered
// by session then ascending sequence number. An empty sessionID matches all
// sessions.
func (s *Store) ListByState(ctx context.Context, sessionID string, state State) ([]*Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE state = ?`
	args := []any{state}
	if strings.TrimSpace(sessionID) != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY session_id, seq`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chunks by state: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows, false)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// NextEligible returns metadata for the next chunk an upload slot should take:
// pending, or failed with retry budget left and a due retry time. Within a
// session chunks come back in ascending sequence order so a contiguous prefix
// lands remotely as early as possible; across sessions ordering follows the
// session identifier and carries no guarantee.
func (s *Store) NextEligible(ctx context.Context, now time.Time) (*Chunk, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+chunkColumns+` FROM chunks
         WHERE (state = ? OR (state = ? AND terminal = 0 AND (next_retry_at IS NULL OR next_retry_at <= ?)))
         ORDER BY session_id, seq LIMIT 1`,
		StatePending,
		StateFailed,
		timestamp(now),
	)
	chunk, err := scanChunk(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next eligible chunk: %w", err)
	}
	return chunk, nil
}

// NextRetryTime returns the earliest scheduled retry among non-terminal
// failed chunks, or nil when none is scheduled. The scheduler uses it to wake
// exactly when a backoff expires instead of polling blind.
func (s *Store) NextRetryTime(ctx context.Context) (*time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT MIN(next_retry_at) FROM chunks
         WHERE state = ? AND terminal = 0 AND next_retry_at IS NOT NULL`,
		StateFailed,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("next retry time: %w", err)
	}
	if !raw.Valid {
		return nil, nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil, fmt.Errorf("parse retry time %q: %w", raw.String, err)
	}
	return &t, nil
}

// ClaimUploading transitions a chunk from pending/failed to uploading. The
// guard on the current state makes the claim atomic: a chunk already claimed
// by another slot yields ErrStaleState, which keeps any chunk out of two
// in-flight slots at once.
func (s *Store) ClaimUploading(ctx context.Context, sessionID string, seq int64) error {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE chunks
         SET state = ?, last_attempt_at = ?, updated_at = ?
         WHERE session_id = ? AND seq = ? AND state IN (?, ?) AND terminal = 0`,
		StateUploading,
		now,
		now,
		sessionID,
		seq,
		StatePending,
		StateFailed,
	)
	if err != nil {
		return fmt.Errorf("claim chunk: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s/%d", ErrStaleState, sessionID, seq)
	}
	return nil
}

// MarkUploaded completes a chunk's delivery, recording the remote object key.
// Only a chunk currently uploading can complete.
func (s *Store) MarkUploaded(ctx context.Context, sessionID string, seq int64, remoteKey string) error {
	now := timestamp(time.Now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		txCtx := ensureContext(ctx)
		res, err := tx.ExecContext(txCtx,
			`UPDATE chunks
             SET state = ?, remote_key = ?, last_error = NULL, next_retry_at = NULL, updated_at = ?
             WHERE session_id = ? AND seq = ? AND state = ?`,
			StateUploaded,
			nullableString(remoteKey),
			now,
			sessionID,
			seq,
			StateUploading,
		)
		if err != nil {
			return fmt.Errorf("mark uploaded: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s/%d", ErrStaleState, sessionID, seq)
		}

		if _, err := tx.ExecContext(txCtx,
			`UPDATE sessions SET chunks_uploaded = chunks_uploaded + 1, updated_at = ? WHERE id = ?`,
			now, sessionID,
		); err != nil {
			return fmt.Errorf("bump session uploaded count: %w", err)
		}
		return nil
	})
}

// MarkFailed records a failed delivery attempt: the attempt count increments,
// the error is captured, and the chunk becomes failed with a scheduled retry
// time. When terminal is true the chunk leaves the automatic retry set for
// good and counts against the session's failed total.
func (s *Store) MarkFailed(ctx context.Context, sessionID string, seq int64, errMsg string, nextRetryAt *time.Time, terminal bool) error {
	now := timestamp(time.Now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		txCtx := ensureContext(ctx)
		res, err := tx.ExecContext(txCtx,
			`UPDATE chunks
             SET state = ?, attempt_count = attempt_count + 1, terminal = ?,
                 last_error = ?, last_attempt_at = ?, next_retry_at = ?, updated_at = ?
             WHERE session_id = ? AND seq = ? AND state = ?`,
			StateFailed,
			boolToInt(terminal),
			nullableString(errMsg),
			now,
			nullableTime(nextRetryAt),
			now,
			sessionID,
			seq,
			StateUploading,
		)
		if err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s/%d", ErrStaleState, sessionID, seq)
		}

		if terminal {
			if _, err := tx.ExecContext(txCtx,
				`UPDATE sessions SET chunks_failed = chunks_failed + 1, updated_at = ? WHERE id = ?`,
				now, sessionID,
			); err != nil {
				return fmt.Errorf("bump session failed count: %w", err)
			}
		}
		return nil
	})
}

// RequeueTerminal moves terminal-failed chunks back to pending with a fresh
// retry budget. This is the manual recovery sweep; it never runs
// automatically. An empty sessionID sweeps all sessions.
func (s *Store) RequeueTerminal(ctx context.Context, sessionID string) (int64, error) {
	now := timestamp(time.Now())
	query := `UPDATE chunks
        SET state = ?, attempt_count = 0, terminal = 0,
            last_error = NULL, next_retry_at = NULL, updated_at = ?
        WHERE state = ? AND terminal = 1`
	args := []any{StatePending, now, StateFailed}
	if strings.TrimSpace(sessionID) != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue terminal chunks: %w", err)
	}
	return res.RowsAffected()
}

// ResetInFlight returns chunks stuck in uploading back to pending. Run at
// daemon startup: a chunk left uploading means the process died mid-transfer,
// and re-uploading to the same remote key is safe.
func (s *Store) ResetInFlight(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE chunks
         SET state = ?, next_retry_at = NULL, updated_at = ?
         WHERE state = ?`,
		StatePending,
		timestamp(time.Now()),
		StateUploading,
	)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight chunks: %w", err)
	}
	return res.RowsAffected()
}

const chunkColumns = "session_id, seq, size_bytes, content_type, duration_ms, captured_at, state, attempt_count, terminal, last_error, last_attempt_at, next_retry_at, remote_key, created_at, updated_at"

func scanChunk(scanner interface{ Scan(dest ...any) error }, withPayload bool) (*Chunk, error) {
	var (
		sessionID      string
		seq            int64
		sizeBytes      int64
		contentType    string
		durationMs     int64
		capturedRaw    string
		stateStr       string
		attemptCount   int
		terminal       sql.NullInt64
		lastError      sql.NullString
		lastAttemptRaw sql.NullString
		nextRetryRaw   sql.NullString
		remoteKey      sql.NullString
		createdRaw     string
		updatedRaw     string
		payload        []byte
	)

	dest := []any{
		&sessionID,
		&seq,
		&sizeBytes,
		&contentType,
		&durationMs,
		&capturedRaw,
		&stateStr,
		&attemptCount,
		&terminal,
		&lastError,
		&lastAttemptRaw,
		&nextRetryRaw,
		&remoteKey,
		&createdRaw,
		&updatedRaw,
	}
	if withPayload {
		dest = append(dest, &payload)
	}
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}

	chunk := &Chunk{
		SessionID:    sessionID,
		Seq:          seq,
		Payload:      payload,
		SizeBytes:    sizeBytes,
		ContentType:  contentType,
		DurationMs:   durationMs,
		State:        State(stateStr),
		AttemptCount: attemptCount,
		LastError:    lastError.String,
		RemoteKey:    remoteKey.String,
	}
	if terminal.Valid {
		chunk.Terminal = terminal.Int64 != 0
	}
	if captured, err := parseTimeString(capturedRaw); err == nil {
		chunk.CapturedAt = captured
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		chunk.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		chunk.UpdatedAt = updated
	}
	if lastAttemptRaw.Valid {
		if t, err := parseTimeString(lastAttemptRaw.String); err == nil {
			chunk.LastAttemptAt = &t
		}
	}
	if nextRetryRaw.Valid {
		if t, err := parseTimeString(nextRetryRaw.String); err == nil {
			chunk.NextRetryAt = &t
		}
	}
	return chunk, nil
}
