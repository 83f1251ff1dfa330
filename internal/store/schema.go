package store

import "database/sql"

// schemaStatements creates every base table the engine needs if absent.
// Columns added after the initial release live in migrations.go instead,
// so a fresh database and a long-lived one converge on the same shape.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		project TEXT NOT NULL DEFAULT 'general',
		status TEXT NOT NULL DEFAULT 'open',
		summary TEXT,
		log_count INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS knowledge (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		context TEXT,
		project TEXT NOT NULL DEFAULT 'general',
		tags TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'active',
		superseded_by INTEGER REFERENCES knowledge(id),
		confidence REAL NOT NULL DEFAULT 1.0,
		source TEXT NOT NULL DEFAULT 'explicit',
		created_at DATETIME NOT NULL,
		last_confirmed DATETIME NOT NULL,
		recall_count INTEGER NOT NULL DEFAULT 0,
		last_recalled DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_knowledge_status ON knowledge(status)`,
	`CREATE INDEX IF NOT EXISTS idx_knowledge_type ON knowledge(type)`,
	`CREATE INDEX IF NOT EXISTS idx_knowledge_project ON knowledge(project)`,
	`CREATE INDEX IF NOT EXISTS idx_knowledge_session ON knowledge(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_knowledge_last_confirmed ON knowledge(last_confirmed)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
		content, context, tags, content='knowledge', content_rowid='id'
	)`,
	`CREATE TRIGGER IF NOT EXISTS knowledge_ai AFTER INSERT ON knowledge BEGIN
		INSERT INTO knowledge_fts(rowid, content, context, tags)
		VALUES (new.id, new.content, new.context, new.tags);
	END`,
	`CREATE TRIGGER IF NOT EXISTS knowledge_ad AFTER DELETE ON knowledge BEGIN
		INSERT INTO knowledge_fts(knowledge_fts, rowid, content, context, tags)
		VALUES ('delete', old.id, old.content, old.context, old.tags);
	END`,
	`CREATE TRIGGER IF NOT EXISTS knowledge_au AFTER UPDATE ON knowledge BEGIN
		INSERT INTO knowledge_fts(knowledge_fts, rowid, content, context, tags)
		VALUES ('delete', old.id, old.content, old.context, old.tags);
		INSERT INTO knowledge_fts(rowid, content, context, tags)
		VALUES (new.id, new.content, new.context, new.tags);
	END`,

	`CREATE TABLE IF NOT EXISTS relations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_id INTEGER NOT NULL REFERENCES knowledge(id),
		to_id INTEGER NOT NULL REFERENCES knowledge(id),
		type TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE(from_id, to_id, type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_id)`,

	`CREATE TABLE IF NOT EXISTS timeline_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		ts DATETIME NOT NULL,
		event TEXT NOT NULL,
		summary TEXT NOT NULL,
		details TEXT,
		project TEXT NOT NULL DEFAULT 'general',
		files TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_timeline_session ON timeline_events(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_timeline_ts ON timeline_events(ts)`,

	`CREATE TABLE IF NOT EXISTS schema_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

func applySchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
