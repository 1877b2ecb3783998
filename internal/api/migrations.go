package api

import (
	"database/sql"
	"fmt"
)

// columnExists checks if a column exists on a given table (SQLite PRAGMA table_info)
func columnExists(db *sql.DB, table string, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var cid int
	var name string
	var ctype string
	var notnull int
	var dflt sql.NullString
	var pk int

	for rows.Next() {
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, nil
}

// MigrateAddWeekStart ensures the users table has the week_start column
// (idempotent). Databases created before week-start configurability default
// every user to monday.
func MigrateAddWeekStart(db *sql.DB) error {
	exists, err := columnExists(db, "users", "week_start")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := db.Exec("ALTER TABLE users ADD COLUMN week_start TEXT NOT NULL DEFAULT 'monday'"); err != nil {
			return err
		}
	}
	return nil
}

// MigrateAddNudgeColumns ensures the habits table has nudge_hour and
// last_nudged_at columns (idempotent).
func MigrateAddNudgeColumns(db *sql.DB) error {
	exists, err := columnExists(db, "habits", "nudge_hour")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := db.Exec("ALTER TABLE habits ADD COLUMN nudge_hour INTEGER"); err != nil {
			return err
		}
	}

	exists, err = columnExists(db, "habits", "last_nudged_at")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := db.Exec("ALTER TABLE habits ADD COLUMN last_nudged_at DATETIME"); err != nil {
			return err
		}
	}
	return nil
}
