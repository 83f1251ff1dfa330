package store

import (
	"database/sql"
	"fmt"
)

// migration is one idempotent schema change, run in order inside a single
// exclusive transaction on every open.
type migration struct {
	name string
	fn   func(*sql.DB) error
}

var migrationsList = []migration{
	{"knowledge_branch_column", migrateKnowledgeBranchColumn},
	{"session_branch_column", migrateSessionBranchColumn},
	{"self_improvement_tables", migrateSelfImprovementTables},
	{"observations_table", migrateObservationsTable},
}

// runMigrations applies every registered migration inside one EXCLUSIVE
// transaction, serializing schema changes across processes racing to open
// the same database file for the first time.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys for migrations: %w", err)
	}
	defer func() { _, _ = db.Exec("PRAGMA foreign_keys = ON") }()

	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("acquire exclusive lock for migrations: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	if err := applySchema(db); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}

	for _, m := range migrationsList {
		if err := m.fn(db); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	committed = true
	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func migrateKnowledgeBranchColumn(db *sql.DB) error {
	ok, err := hasColumn(db, "knowledge", "branch")
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE knowledge ADD COLUMN branch TEXT`)
	return err
}

func migrateSessionBranchColumn(db *sql.DB) error {
	ok, err := hasColumn(db, "sessions", "branch")
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE sessions ADD COLUMN branch TEXT`)
	return err
}

func migrateSelfImprovementTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			description TEXT NOT NULL,
			context TEXT,
			fix TEXT,
			project TEXT NOT NULL DEFAULT 'general',
			tags TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'open',
			resolved_at DATETIME,
			insight_id INTEGER,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_errors_category ON errors(category)`,
		`CREATE INDEX IF NOT EXISTS idx_errors_project ON errors(project)`,
		`CREATE INDEX IF NOT EXISTS idx_errors_created ON errors(created_at)`,

		`CREATE TABLE IF NOT EXISTS insights (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			content TEXT NOT NULL,
			context TEXT,
			category TEXT NOT NULL,
			importance INTEGER NOT NULL DEFAULT 2,
			confidence REAL NOT NULL DEFAULT 0.5,
			source_error_ids TEXT NOT NULL DEFAULT '[]',
			project TEXT NOT NULL DEFAULT 'general',
			tags TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'active',
			promoted_to_rule_id INTEGER,
			fire_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_status ON insights(status)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_category ON insights(category)`,

		`CREATE TABLE IF NOT EXISTS rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			content TEXT NOT NULL,
			context TEXT,
			category TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT 'global',
			priority INTEGER NOT NULL DEFAULT 5,
			source_insight_id INTEGER,
			project TEXT NOT NULL DEFAULT 'general',
			tags TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'active',
			fire_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			fail_count INTEGER NOT NULL DEFAULT 0,
			last_fired DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_status ON rules(status)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_scope ON rules(scope)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateObservationsTable(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			tool_name TEXT NOT NULL,
			observation_type TEXT NOT NULL,
			summary TEXT NOT NULL,
			files_affected TEXT NOT NULL DEFAULT '[]',
			project TEXT NOT NULL DEFAULT 'general',
			branch TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_created ON observations(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
