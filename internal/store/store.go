// Package store is the durable persistence layer: a single SQLite database
// guarded by a cross-process advisory lock, a lock-step full-text index,
// and startup integrity repair.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

// Store owns the database connection and the process-wide write lock. It is
// the engine's sole mutator: every other package reaches the database only
// through a *Store.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	log  zerolog.Logger
}

// Open creates dbPath's parent directory if needed, takes an exclusive
// cross-process advisory lock on lockPath for the process lifetime, opens
// the database in WAL mode, runs migrations, and repairs the lexical index
// if it is found corrupted.
func Open(ctx context.Context, dbPath, lockPath string, log zerolog.Logger) (*Store, error) {
	if err := ensureParentDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	lk := flock.New(lockPath)
	locked, err := lk.TryLockContext(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("acquire store lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("store lock %s is held by another process", lockPath)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		_ = lk.Unlock()
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		_ = lk.Unlock()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{db: db, lock: lk, log: log}
	if err := s.repairIndexIfCorrupted(ctx); err != nil {
		_ = db.Close()
		_ = lk.Unlock()
		return nil, fmt.Errorf("repair lexical index: %w", err)
	}
	return s, nil
}

// Close releases the database connection and the advisory lock.
func (s *Store) Close() error {
	dbErr := s.db.Close()
	lockErr := s.lock.Unlock()
	if dbErr != nil {
		return dbErr
	}
	return lockErr
}

// UnderlyingDB exposes the raw connection for packages (tests, dashboard
// read endpoints) that need direct SQL access without growing Store's own
// surface.
func (s *Store) UnderlyingDB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a single write transaction and commits on success,
// rolling back on any error or panic. Every multi-statement write (dedup
// probe + insert, retrieval merge + recall bump) goes through this so a
// reader never observes a partially applied change.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// repairIndexIfCorrupted probes knowledge_fts with a trivial query; on
// failure it first asks SQLite to rebuild the index in place, and only if
// that also fails does it drop and recreate the index from the active rows.
func (s *Store) repairIndexIfCorrupted(ctx context.Context) error {
	_, probeErr := s.db.ExecContext(ctx, `INSERT INTO knowledge_fts(knowledge_fts) VALUES('integrity-check')`)
	if probeErr == nil {
		return nil
	}
	s.log.Warn().Err(probeErr).Msg("lexical index failed integrity probe, attempting rebuild")

	if _, err := s.db.ExecContext(ctx, `INSERT INTO knowledge_fts(knowledge_fts) VALUES('rebuild')`); err == nil {
		return nil
	}

	s.log.Warn().Msg("lexical index rebuild failed, dropping and recreating from active rows")
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS knowledge_fts`); err != nil {
		return fmt.Errorf("drop corrupted index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE VIRTUAL TABLE knowledge_fts USING fts5(
		content, context, tags, content='knowledge', content_rowid='id'
	)`); err != nil {
		return fmt.Errorf("recreate index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO knowledge_fts(rowid, content, context, tags)
		SELECT id, content, context, tags FROM knowledge WHERE status = 'active'`); err != nil {
		return fmt.Errorf("repopulate index from active rows: %w", err)
	}
	return nil
}

func ensureParentDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
