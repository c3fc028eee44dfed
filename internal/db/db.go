// Package db handles SQLite initialisation and schema migrations.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — one database, many "collections"
// ────────────────────────────────────────────────────────────────────
// The app was designed around a document database with named
// collections (users, events, attendance, payments, notifications) and
// a separate auth backend. Here every collection is a table in one
// SQLite file, and the auth backend gets two tables of its own
// (credentials, revoked_tokens).
//
// There are deliberately no foreign keys between collections: deleting
// an event leaves its attendance and payment records in place, exactly
// like deleting a document would. Array-valued fields (an event's
// assigned workers) and nested objects (a worker's payout details) are
// stored as JSON text and queried with SQLite's built-in json_each.
//
// modernc.org/sqlite is a pure-Go port of SQLite, so no C compiler is
// needed to build or cross-compile the server.
package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	// Blank import: the modernc driver registers itself with
	// database/sql under the name "sqlite" when this package loads.
	_ "modernc.org/sqlite"
)

// Open opens (or creates) the SQLite database at dsn and runs all migrations.
//
// Recommended DSN formats for modernc.org/sqlite:
//   - Production file: "izza.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
//   - Tests:           "file:testXYZ?mode=memory&cache=shared"
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("database ready", "dsn", dsn)
	return db, nil
}

// migrate runs each DDL statement in the schema individually. The driver
// only executes the first statement of a multi-statement string, so the
// schema is split on ";".
func migrate(db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

// Tables lists every table the schema creates, in creation order.
var Tables = []string{
	"credentials", "revoked_tokens", "users", "events", "attendance", "payments", "notifications",
}

// schema contains every CREATE statement for the application.
//
//	credentials    — auth backend: one row per identity (uid, email, bcrypt hash).
//	revoked_tokens — auth backend: token ids invalidated by sign-out.
//	users          — profile documents keyed by the identity uid.
//	events         — event requests; assigned_workers is a JSON array of uids.
//	attendance     — one row per worker shift; check_out_time NULL while open.
//	payments       — worker payouts, pending until marked paid.
//	notifications  — recipient_id is a uid or 'all' for broadcasts.
const schema = `
CREATE TABLE IF NOT EXISTS credentials (
    uid           TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    id             TEXT PRIMARY KEY,
    email          TEXT NOT NULL,
    name           TEXT NOT NULL,
    phone          TEXT NOT NULL DEFAULT '',
    role           TEXT NOT NULL CHECK(role IN ('user','admin','worker')),
    worker_details TEXT,
    created_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

CREATE TABLE IF NOT EXISTS events (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    event_date       DATETIME NOT NULL,
    location         TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'pending'
                         CHECK(status IN ('pending','approved','rejected','completed')),
    user_id          TEXT NOT NULL,
    user_name        TEXT NOT NULL DEFAULT '',
    assigned_workers TEXT NOT NULL DEFAULT '[]',
    created_at       DATETIME NOT NULL,
    updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id, event_date);
CREATE INDEX IF NOT EXISTS idx_events_status ON events(status, event_date);

CREATE TABLE IF NOT EXISTS attendance (
    id             TEXT PRIMARY KEY,
    event_id       TEXT NOT NULL,
    worker_id      TEXT NOT NULL,
    worker_name    TEXT NOT NULL DEFAULT '',
    event_title    TEXT NOT NULL DEFAULT '',
    check_in_time  DATETIME NOT NULL,
    check_out_time DATETIME,
    status         TEXT NOT NULL DEFAULT 'present'
                       CHECK(status IN ('present','absent')),
    earnings       REAL NOT NULL DEFAULT 0,
    created_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attendance_worker ON attendance(worker_id);
CREATE INDEX IF NOT EXISTS idx_attendance_event ON attendance(event_id, worker_id);

CREATE TABLE IF NOT EXISTS payments (
    id          TEXT PRIMARY KEY,
    worker_id   TEXT NOT NULL,
    worker_name TEXT NOT NULL DEFAULT '',
    event_id    TEXT NOT NULL,
    event_title TEXT NOT NULL DEFAULT '',
    amount      REAL NOT NULL,
    status      TEXT NOT NULL DEFAULT 'pending'
                    CHECK(status IN ('pending','paid')),
    paid_at     DATETIME,
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payments_worker ON payments(worker_id);
CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);

CREATE TABLE IF NOT EXISTS notifications (
    id           TEXT PRIMARY KEY,
    recipient_id TEXT NOT NULL,
    title        TEXT NOT NULL,
    message      TEXT NOT NULL DEFAULT '',
    type         TEXT NOT NULL,
    read         INTEGER NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at)
`
