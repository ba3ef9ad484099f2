package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/deskflow/kernel/internal/logging"
)

// Store wraps the single embedded SQL database every kernel component
// shares. Repositories write through its connection one statement at a
// time; WithTxn is available for multi-statement work. It is the only
// shared mutable resource between components.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the SQLite file at path, applies
// pragmas for concurrent access, and runs additive schema migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) Conn() *sql.DB { return s.conn }

func (s *Store) Close() error {
	s.conn.SetMaxOpenConns(0)
	s.conn.SetMaxIdleConns(0)
	return s.conn.Close()
}

// WithTxn runs f inside a transaction, committing on a nil return and
// rolling back otherwise.
func (s *Store) WithTxn(f func(tx *sql.Tx) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// migrate creates the base schema on first open and then additively adds
// any columns introduced since, ignoring "duplicate column" errors.
func (s *Store) migrate() error {
	if _, err := s.conn.Exec(schemaSQL); err != nil {
		return err
	}
	for _, stmt := range additiveMigrations {
		if _, err := s.conn.Exec(stmt); err != nil {
			// SQLite reports "duplicate column name" for an ALTER that
			// already exists; schemaSQL already declares these columns, so
			// that's expected on every open and is not a failure.
			logging.Debug("store: additive migration skipped or already applied: %v", err)
		}
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS execution_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	operation_type TEXT NOT NULL,
	module TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	completed_at DATETIME,
	status TEXT NOT NULL,
	input_summary TEXT,
	output_summary TEXT,
	error_message TEXT,
	contract_id INTEGER
);
CREATE INDEX IF NOT EXISTS idx_execution_history_status ON execution_history(status);
CREATE INDEX IF NOT EXISTS idx_execution_history_started_at ON execution_history(started_at);

CREATE TABLE IF NOT EXISTS activity_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	action TEXT NOT NULL,
	entity_type TEXT,
	entity_id TEXT,
	severity TEXT NOT NULL,
	module TEXT,
	short_message TEXT,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_activity_log_timestamp ON activity_log(timestamp);

CREATE TABLE IF NOT EXISTS contracts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contract_number TEXT NOT NULL,
	contract_name TEXT,
	data TEXT
);

CREATE TABLE IF NOT EXISTS payment_stages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	stage_name TEXT,
	data TEXT,
	contract_id INTEGER NOT NULL REFERENCES contracts(id)
);
CREATE INDEX IF NOT EXISTS idx_payment_stages_contract_id ON payment_stages(contract_id);

CREATE TABLE IF NOT EXISTS workflow_execution (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_id TEXT NOT NULL UNIQUE,
	workflow_id TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	completed_at DATETIME,
	initial_context TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_workflow_execution_status ON workflow_execution(status);
CREATE INDEX IF NOT EXISTS idx_workflow_execution_execution_id ON workflow_execution(execution_id);

CREATE TABLE IF NOT EXISTS workflow_step_execution (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_id TEXT NOT NULL,
	step_id TEXT NOT NULL,
	step_type TEXT NOT NULL,
	status TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME,
	completed_at DATETIME,
	result_json TEXT,
	error_message TEXT,
	UNIQUE(execution_id, step_id)
);
CREATE INDEX IF NOT EXISTS idx_workflow_step_execution_id ON workflow_step_execution(execution_id);
CREATE INDEX IF NOT EXISTS idx_workflow_step_step_id ON workflow_step_execution(step_id);

CREATE TABLE IF NOT EXISTS workflow_approval (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_id TEXT NOT NULL,
	step_id TEXT NOT NULL,
	prompt TEXT,
	allowed_actions TEXT,
	decision TEXT,
	actor_id TEXT,
	comment TEXT,
	requested_at DATETIME NOT NULL,
	resolved_at DATETIME,
	timeout_policy TEXT NOT NULL DEFAULT 'wait',
	timeout_at DATETIME,
	UNIQUE(execution_id, step_id)
);
CREATE INDEX IF NOT EXISTS idx_workflow_approval_execution_id ON workflow_approval(execution_id);

CREATE TABLE IF NOT EXISTS ai_suggestion_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	suggestion_id TEXT NOT NULL,
	context TEXT,
	type TEXT,
	confidence REAL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ai_guardrail_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subject_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	reason TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ai_guardrail_audit_subject ON ai_guardrail_audit(subject_id);

CREATE TABLE IF NOT EXISTS ai_draft_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	draft_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`

// additiveMigrations holds ALTER TABLE statements for columns added after
// the base schema shipped. Each is attempted independently and a failure
// (column already exists) is logged, not fatal.
var additiveMigrations = []string{
	`ALTER TABLE workflow_approval ADD COLUMN timeout_policy TEXT NOT NULL DEFAULT 'wait'`,
	`ALTER TABLE workflow_approval ADD COLUMN timeout_at DATETIME`,
}
