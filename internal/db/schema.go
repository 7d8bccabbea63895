package db

import (
	"database/sql"
	"fmt"
)

// Migrate creates every table the service needs. It is idempotent.
func Migrate(db *sql.DB) error {
	statements := []struct {
		label string
		sql   string
	}{
		// ─── libraries ───────────────────────────────────────────────────
		{"libraries", `
			CREATE TABLE IF NOT EXISTS libraries (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL UNIQUE,
				created_at  TEXT NOT NULL
			);`},

		// ─── volumes ─────────────────────────────────────────────────────
		{"volumes", `
			CREATE TABLE IF NOT EXISTS volumes (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				uuid            TEXT    NOT NULL,
				library_id      TEXT    NOT NULL,
				device_id       TEXT    NOT NULL,
				fingerprint     TEXT    NOT NULL,
				name            TEXT    NOT NULL,
				mount_path      TEXT    NOT NULL,
				mount_type      TEXT    NOT NULL,
				volume_type     TEXT    NOT NULL,
				disk_type       TEXT    NOT NULL,
				file_system     TEXT    NOT NULL,
				total_capacity  INTEGER NOT NULL DEFAULT 0,
				available_space INTEGER NOT NULL DEFAULT 0,
				read_only       INTEGER NOT NULL DEFAULT 0,
				hardware_id     TEXT,
				tracked_at      TEXT    NOT NULL,
				last_seen       TEXT    NOT NULL,
				UNIQUE(library_id, fingerprint),
				FOREIGN KEY (library_id) REFERENCES libraries(id) ON DELETE CASCADE
			);`},
		{"volumes indexes", `
			CREATE INDEX IF NOT EXISTS idx_volumes_library     ON volumes(library_id);
			CREATE INDEX IF NOT EXISTS idx_volumes_fingerprint ON volumes(fingerprint);
			CREATE INDEX IF NOT EXISTS idx_volumes_uuid        ON volumes(uuid);`},

		// ─── mime_types ──────────────────────────────────────────────────
		{"mime_types", `
			CREATE TABLE IF NOT EXISTS mime_types (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				uuid        TEXT     NOT NULL UNIQUE,
				mime_type   TEXT     NOT NULL UNIQUE,
				created_at  TEXT     NOT NULL
			);`},
		{"mime_types indexes", `
			CREATE INDEX IF NOT EXISTS idx_mime_types_sync ON mime_types(created_at, uuid);`},
	}

	for _, s := range statements {
		if _, err := db.Exec(s.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", s.label, err)
		}
	}
	return nil
}
