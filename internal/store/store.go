// Package store implements the State Store (C2, spec.md §4.2): a durable,
// transactional SQLite-backed collection of closures, observed pipes,
// signature states, dispute attempts, and a bounded recent-events ring.
// Modeled on the teacher's services/payments-gateway SQLiteStore -- plain
// database/sql over modernc.org/sqlite, sequential schema Exec calls, one
// connection -- generalized from a single fixed schema to a forward-only
// migration list (spec.md §4.2: "missing columns are added by ALTER TABLE
// ADD COLUMN with a safe default").
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stackflow/watchtower/internal/apperr"
)

// Store is the durable, transactional state store.
type Store struct {
	db              *sql.DB
	maxRecentEvents int
}

// Open opens (creating if absent) the SQLite-backed store at path, running
// schema migrations and importing a legacy JSON snapshot if one is found
// (spec.md §4.2: "if the data file begins with { it is interpreted as a
// legacy JSON snapshot").
func Open(ctx context.Context, path string, maxRecentEvents int) (*Store, error) {
	if maxRecentEvents <= 0 {
		maxRecentEvents = 500
	}
	if legacy, err := detectLegacyJSON(path); err != nil {
		return nil, apperr.StateStore("inspect data file", err)
	} else if legacy != nil {
		if err := backupLegacyFile(path); err != nil {
			return nil, apperr.StateStore("back up legacy snapshot", err)
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, apperr.StateStore("open sqlite store", err)
		}
		db.SetMaxOpenConns(1)
		s := &Store{db: db, maxRecentEvents: maxRecentEvents}
		if err := s.migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := s.importLegacy(ctx, legacy); err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.StateStore("open sqlite store", err)
	}
	db.SetMaxOpenConns(1) // single connection: all writes serialize (spec.md §5)
	s := &Store{db: db, maxRecentEvents: maxRecentEvents}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

type migration struct {
	name string
	stmt string
}

var migrations = []migration{
	{"meta", `CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`},
	{"closures", `CREATE TABLE IF NOT EXISTS closures (
		pipe_id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		token TEXT NOT NULL,
		principal_1 TEXT NOT NULL,
		principal_2 TEXT NOT NULL,
		closer TEXT NOT NULL,
		expires_at TEXT,
		nonce TEXT NOT NULL,
		event_name TEXT NOT NULL,
		trigger_txid TEXT NOT NULL,
		block_height INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);`},
	{"observed_pipes", `CREATE TABLE IF NOT EXISTS observed_pipes (
		state_id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		token TEXT NOT NULL,
		principal_1 TEXT NOT NULL,
		principal_2 TEXT NOT NULL,
		balance_1 TEXT NOT NULL,
		balance_2 TEXT NOT NULL,
		pending_1_amount TEXT,
		pending_1_height INTEGER,
		pending_2_amount TEXT,
		pending_2_height INTEGER,
		expires_at TEXT,
		nonce TEXT NOT NULL,
		closer TEXT NOT NULL DEFAULT '',
		event_name TEXT NOT NULL,
		txid TEXT NOT NULL,
		block_height INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);`},
	{"signature_states", `CREATE TABLE IF NOT EXISTS signature_states (
		state_id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		pipe_id TEXT NOT NULL,
		for_principal TEXT NOT NULL,
		with_principal TEXT NOT NULL,
		token TEXT NOT NULL,
		amount TEXT NOT NULL,
		my_balance TEXT NOT NULL,
		their_balance TEXT NOT NULL,
		my_signature TEXT NOT NULL,
		their_signature TEXT NOT NULL,
		nonce TEXT NOT NULL,
		action INTEGER NOT NULL,
		actor TEXT NOT NULL,
		secret TEXT NOT NULL DEFAULT '',
		valid_after TEXT,
		beneficial_only INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);`},
	{"signature_states_idx", `CREATE INDEX IF NOT EXISTS idx_signature_states_pipe
		ON signature_states(contract_id, pipe_id);`},
	{"dispute_attempts", `CREATE TABLE IF NOT EXISTS dispute_attempts (
		attempt_id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		pipe_id TEXT NOT NULL,
		for_principal TEXT NOT NULL,
		trigger_txid TEXT NOT NULL,
		success INTEGER NOT NULL,
		dispute_txid TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`},
	{"recent_events", `CREATE TABLE IF NOT EXISTS recent_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		contract_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		txid TEXT NOT NULL,
		block_height INTEGER NOT NULL,
		block_hash TEXT NOT NULL,
		event_index INTEGER NOT NULL,
		event_name TEXT NOT NULL,
		sender TEXT NOT NULL,
		pipe_key_json TEXT,
		pipe_json TEXT,
		source TEXT NOT NULL,
		observed_at TEXT NOT NULL
	);`},
}

func (s *Store) migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m.stmt); err != nil {
			return apperr.StateStore(fmt.Sprintf("run migration %q", m.name), err)
		}
	}
	if err := s.ensureColumn(ctx, "observed_pipes", "closer", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	return s.touchMeta(ctx)
}

// ensureColumn implements spec.md §4.2's forward-only ALTER TABLE pattern:
// add a column with a safe default if it isn't already present.
func (s *Store) ensureColumn(ctx context.Context, table, column, ddlType string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return apperr.StateStore("inspect table "+table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return apperr.StateStore("scan table_info", err)
		}
		if name == column {
			return nil
		}
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddlType))
	if err != nil {
		return apperr.StateStore(fmt.Sprintf("add column %s.%s", table, column), err)
	}
	return nil
}

func (s *Store) touchMeta(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES ('version', '1')
		ON CONFLICT(key) DO NOTHING`)
	if err != nil {
		return apperr.StateStore("seed meta", err)
	}
	return s.touchUpdatedAt(ctx, s.db)
}

// execer is satisfied by both *sql.DB and *sql.Tx, so every mutation can
// reuse the same "bump meta.updated_at" helper inside or outside a
// transaction (spec.md §4.2: "every mutation updates meta.updated_at").
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) touchUpdatedAt(ctx context.Context, ex execer) error {
	_, err := ex.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES ('updated_at', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, time.Now().UTC().Format(time.RFC3339))
	return err
}

// withTx runs fn inside a single transaction, matching spec.md §5's
// requirement that an entire ingest/upsert call commit atomically.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StateStore("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := s.touchUpdatedAt(ctx, tx); err != nil {
		_ = tx.Rollback()
		return apperr.StateStore("touch updated_at", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.StateStore("commit transaction", err)
	}
	return nil
}

var errNotFound = errors.New("store: not found")

// ErrNotFound is not returned by the store's own single-row lookups, which
// report a missing row as a nil record with a nil error.
var ErrNotFound = errNotFound
