package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SaveSession upserts the remembered camera session for the active profile.
// Each profile keeps at most one saved session; saving replaces any previous
// record.
func (s *Store) SaveSession(ctx context.Context, sess SavedSession) error {
	if s.readOnly {
		return fmt.Errorf("config: save session: store opened read-only")
	}
	if strings.TrimSpace(sess.SessionID) == "" {
		return fmt.Errorf("config: save session: session id is empty")
	}

	createdAt := sess.CreatedAt
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(time.RFC3339)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO saved_sessions (instance_name, profile_name, session_id, relay_url, join_url, created_at, expires_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
            ON CONFLICT(instance_name, profile_name) DO UPDATE SET
                session_id = excluded.session_id,
                relay_url = excluded.relay_url,
                join_url = excluded.join_url,
                created_at = excluded.created_at,
                expires_at = excluded.expires_at,
                updated_at = CURRENT_TIMESTAMP
        `, s.instanceName, s.profileName, sess.SessionID, sess.RelayURL, sess.JoinURL, createdAt, sess.ExpiresAt); err != nil {
			return fmt.Errorf("config: save session: %w", err)
		}
		return nil
	})
}

// LoadSession returns the remembered session for the active profile.
// A missing record yields a NotFoundError.
func (s *Store) LoadSession(ctx context.Context) (SavedSession, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT session_id, relay_url, join_url, created_at, expires_at, updated_at
        FROM saved_sessions
        WHERE instance_name = ? AND profile_name = ?
    `, s.instanceName, s.profileName)

	sess, err := scanSavedSession(row)
	if err == sql.ErrNoRows {
		return SavedSession{}, NotFoundError{Entity: "saved session"}
	}
	if err != nil {
		return SavedSession{}, fmt.Errorf("config: load session: %w", err)
	}
	return sess, nil
}

// ClearSession removes the remembered session for the active profile.
// Clearing an absent record is not an error.
func (s *Store) ClearSession(ctx context.Context) error {
	if s.readOnly {
		return fmt.Errorf("config: clear session: store opened read-only")
	}

	if _, err := s.db.ExecContext(ctx, `
        DELETE FROM saved_sessions
        WHERE instance_name = ? AND profile_name = ?
    `, s.instanceName, s.profileName); err != nil {
		return fmt.Errorf("config: clear session: %w", err)
	}
	return nil
}
