package chunkstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateSession creates a session record if absent. Calling it again with the
// same id is a no-op.
func (s *Store) CreateSession(ctx context.Context, sessionID, ownerID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("session id is required")
	}
	now := timestamp(time.Now())
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO sessions (id, owner_id, state, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (id) DO NOTHING`,
		sessionID,
		ownerID,
		SessionRecording,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession fetches a session by identifier.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`,
		sessionID,
	)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// ListSessions returns all sessions ordered by creation time.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// SetSessionState advances a session's lifecycle state. Completed sessions are
// immutable except for deletion.
func (s *Store) SetSessionState(ctx context.Context, sessionID string, state SessionState) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE sessions SET state = ?, updated_at = ? WHERE id = ? AND state != ?`,
		state,
		timestamp(time.Now()),
		sessionID,
		SessionCompleted,
	)
	if err != nil {
		return fmt.Errorf("set session state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.GetSession(ctx, sessionID)
		if getErr != nil {
			return getErr
		}
		if existing.State == SessionCompleted && state != SessionCompleted {
			return fmt.Errorf("session %s is completed and cannot transition to %s", sessionID, state)
		}
	}
	return nil
}

// DeleteSession removes a session and all of its chunks, returning the number
// of chunks deleted.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ensureContext(ctx), `DELETE FROM chunks WHERE session_id = ?`, sessionID)
		if err != nil {
			return fmt.Errorf("delete session chunks: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if _, err := tx.ExecContext(ensureContext(ctx), `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

const sessionColumns = "id, owner_id, state, chunks_total, chunks_uploaded, chunks_failed, created_at, updated_at"

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		id         string
		ownerID    string
		stateStr   string
		total      int
		uploaded   int
		failed     int
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &ownerID, &stateStr, &total, &uploaded, &failed, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	session := &Session{
		ID:             id,
		OwnerID:        ownerID,
		State:          SessionState(stateStr),
		ChunksTotal:    total,
		ChunksUploaded: uploaded,
		ChunksFailed:   failed,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		session.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		session.UpdatedAt = updated
	}
	return session, nil
}
