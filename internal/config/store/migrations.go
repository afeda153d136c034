package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// columnMigration adds a column to an existing table. Schema statements
// create the current shape for fresh databases; these bring older ones
// forward and are skipped when the column already exists.
type columnMigration struct {
	table  string
	column string
	ddl    string
}

var columnMigrations = []columnMigration{
	{
		table:  "saved_sessions",
		column: "join_url",
		ddl:    `ALTER TABLE saved_sessions ADD COLUMN join_url TEXT NOT NULL DEFAULT ''`,
	},
	{
		table:  "saved_sessions",
		column: "expires_at",
		ddl:    `ALTER TABLE saved_sessions ADD COLUMN expires_at TEXT NOT NULL DEFAULT ''`,
	},
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range columnMigrations {
		exists, err := columnExists(ctx, db, m.table, m.column)
		if err != nil {
			return fmt.Errorf("config: inspect %s.%s: %w", m.table, m.column, err)
		}
		if exists {
			continue
		}
		if _, err := db.ExecContext(ctx, m.ddl); err != nil {
			return fmt.Errorf("config: apply migration %q: %w", abbreviate(m.ddl), err)
		}
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// PruneExpiredSessions removes saved session records whose recorded expiry
// has passed. Records without a recorded expiry are kept. Returns the number
// of rows removed.
func (s *Store) PruneExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	if s.readOnly {
		return 0, fmt.Errorf("config: prune expired sessions: store opened read-only")
	}

	res, err := s.db.ExecContext(ctx, `
        DELETE FROM saved_sessions
        WHERE expires_at != '' AND expires_at < ?
    `, now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("config: prune expired sessions: %w", err)
	}
	return res.RowsAffected()
}
