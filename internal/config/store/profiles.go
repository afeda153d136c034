package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Profiles returns all profiles configured for the current instance.
func (s *Store) Profiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT name, is_default, created_at, updated_at
        FROM profiles
        WHERE instance_name = ?
        ORDER BY name
    `, s.instanceName)
	if err != nil {
		return nil, fmt.Errorf("config: list profiles: %w", err)
	}

	return scanList(rows, scanProfile, "config: scan profile", "config: iterate profiles")
}

// ActivateProfile marks the provided profile as the default one for the instance.
func (s *Store) ActivateProfile(ctx context.Context, profileName string) error {
	if s.readOnly {
		return fmt.Errorf("config: activate profile: store opened read-only")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM profiles
				WHERE instance_name = ? AND name = ?
			)
		`, s.instanceName, profileName).Scan(&exists); err != nil {
			return fmt.Errorf("config: check profile %q: %w", profileName, err)
		}
		if !exists {
			return NotFoundError{Entity: "profile", Key: profileName}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE profiles
			SET is_default = CASE WHEN name = ? THEN 1 ELSE 0 END,
			    updated_at = CURRENT_TIMESTAMP
			WHERE instance_name = ?
		`, profileName, s.instanceName); err != nil {
			return fmt.Errorf("config: update default profile: %w", err)
		}

		return nil
	})
}
