package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// walCheckpointInterval is how often the background miner process
	// checkpoints the WAL file.
	walCheckpointInterval = 5 * time.Minute
)

// SQLiteStore implements EventStore using SQLite. Other components share the
// same database through DB() and issue SQL for the tables they own.
type SQLiteStore struct {
	db        *sql.DB
	logger    *slog.Logger
	now       func() time.Time
	stopCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ EventStore = (*SQLiteStore)(nil)

// DefaultDBPath returns the fallback database path (~/.termbrain/termbrain.db).
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".termbrain", "termbrain.db"), nil
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// migrates it to the latest schema. If the path is empty, DefaultDBPath is
// used.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		var err error
		dbPath, err = DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// modernc.org/sqlite uses _pragma=name(value) syntax
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection per process; other processes are serialized by WAL
	// locking and busy_timeout.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{
		db:        db,
		logger:    slog.Default(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	go store.walCheckpointLoop()

	return store, nil
}

// SetLogger replaces the logger used for background failures.
func (s *SQLiteStore) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Close closes the database connection.
// It is safe to call Close multiple times.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.stoppedCh

		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// SchemaVersion returns the latest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_meta`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) walCheckpointLoop() {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(walCheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
				s.logger.Warn("wal checkpoint failed", "error", err)
			}
		}
	}
}

// migrate runs database migrations to ensure the schema is up to date.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	currentVersion := 0
	row := s.db.QueryRowContext(ctx, `
		SELECT version FROM schema_meta ORDER BY version DESC LIMIT 1
	`)
	if err := row.Scan(&currentVersion); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows), isTableNotFoundError(err):
			currentVersion = 0
		default:
			return fmt.Errorf("failed to read schema version: %w", err)
		}
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{version: 1, sql: migrationV1},
		{version: 2, sql: migrationV2},
		{version: 3, sql: migrationV3},
		{version: 4, sql: migrationV4},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration v%d failed: %w", m.version, err)
		}

		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO schema_meta (version, applied_at_unix_ms)
			VALUES (?, ?)
		`, m.version, time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.version, err)
		}
	}

	return nil
}

func isTableNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "does not exist")
}

func isForeignKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "foreign key constraint")
}

// IsDuplicateKeyError reports whether err is a UNIQUE constraint violation.
// Owning packages use it to map inserts to their own sentinel errors.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key")
}

// migrationV1 creates the event log.
const migrationV1 = `
CREATE TABLE IF NOT EXISTS schema_meta (
  version INTEGER PRIMARY KEY,
  applied_at_unix_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS commands (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  ts_unix_ms INTEGER NOT NULL,

  command TEXT NOT NULL,
  command_norm TEXT NOT NULL,
  semantic_type TEXT NOT NULL,
  intent TEXT NOT NULL,
  complexity INTEGER NOT NULL DEFAULT 1,

  cwd TEXT NOT NULL,
  git_branch TEXT,
  project_type TEXT NOT NULL DEFAULT 'unknown',

  -- NULL until the post-exec hook finalizes the event
  exit_code INTEGER,
  duration_ms INTEGER,

  is_sensitive INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_commands_ts ON commands(ts_unix_ms);
CREATE INDEX IF NOT EXISTS idx_commands_type ON commands(semantic_type);
CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session_id, id);
CREATE INDEX IF NOT EXISTS idx_commands_cwd ON commands(cwd, ts_unix_ms);

CREATE TABLE IF NOT EXISTS errors (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  command_id INTEGER NOT NULL REFERENCES commands(id) ON DELETE CASCADE,
  ts_unix_ms INTEGER NOT NULL,
  solved INTEGER NOT NULL DEFAULT 0,
  solution TEXT,
  solved_at_unix_ms INTEGER
);

CREATE INDEX IF NOT EXISTS idx_errors_command ON errors(command_id);
CREATE INDEX IF NOT EXISTS idx_errors_unsolved ON errors(solved, ts_unix_ms);
`

// migrationV2 adds mined patterns and the knowledge base.
const migrationV2 = `
CREATE TABLE IF NOT EXISTS patterns (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  pattern_type TEXT NOT NULL,
  pattern_key TEXT NOT NULL,
  payload TEXT NOT NULL,
  frequency INTEGER NOT NULL,
  first_seen_unix_ms INTEGER NOT NULL,
  last_seen_unix_ms INTEGER NOT NULL,
  UNIQUE(pattern_type, pattern_key)
);

CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(pattern_type, frequency DESC);

CREATE TABLE IF NOT EXISTS knowledge (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  topic TEXT NOT NULL,
  insight TEXT NOT NULL,
  source TEXT NOT NULL,
  confidence INTEGER NOT NULL,
  verified INTEGER NOT NULL DEFAULT 0,
  created_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL,
  UNIQUE(topic, insight)
);

CREATE INDEX IF NOT EXISTS idx_knowledge_topic ON knowledge(topic);
`

// migrationV3 adds user-defined workflows and their run history.
const migrationV3 = `
CREATE TABLE IF NOT EXISTS workflows (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  description TEXT NOT NULL DEFAULT '',
  times_used INTEGER NOT NULL DEFAULT 0,
  success_rate REAL NOT NULL DEFAULT 0,
  created_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_steps (
  workflow_id INTEGER NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  command TEXT NOT NULL,
  PRIMARY KEY (workflow_id, position)
);

CREATE TABLE IF NOT EXISTS workflow_runs (
  run_id TEXT PRIMARY KEY,
  workflow_id INTEGER NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
  workflow_name TEXT NOT NULL,
  status TEXT NOT NULL,
  failed_step INTEGER,
  started_at_unix_ms INTEGER NOT NULL,
  ended_at_unix_ms INTEGER,
  duration_ms INTEGER
);

CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow ON workflow_runs(workflow_id, started_at_unix_ms DESC);
`

// migrationV4 adds intentions and flow samples.
const migrationV4 = `
CREATE TABLE IF NOT EXISTS intentions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  goal TEXT NOT NULL,
  context TEXT NOT NULL DEFAULT '{}',
  started_at_unix_ms INTEGER NOT NULL,
  completed_at_unix_ms INTEGER,
  success INTEGER,
  learnings TEXT NOT NULL DEFAULT '',
  elapsed_ms INTEGER
);

CREATE INDEX IF NOT EXISTS idx_intentions_session ON intentions(session_id, started_at_unix_ms DESC);

-- At most one open intention per session.
CREATE UNIQUE INDEX IF NOT EXISTS idx_intentions_open ON intentions(session_id) WHERE completed_at_unix_ms IS NULL;

CREATE TABLE IF NOT EXISTS cognitive_state (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  focus_area TEXT NOT NULL,
  productivity INTEGER NOT NULL,
  interruptions INTEGER NOT NULL,
  energy INTEGER NOT NULL,
  commands INTEGER NOT NULL,
  started_at_unix_ms INTEGER NOT NULL,
  ended_at_unix_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cognitive_state_focus ON cognitive_state(focus_area);
`
