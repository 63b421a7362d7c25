package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// The archive is an append-mostly event log with occasional retention
// deletes, read by the history endpoints. WAL keeps readers off the
// writers' backs; busy_timeout plus the retry loop below covers the rest.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// openDB opens the archive database at path, creating parent directories
// and applying pragmas and the schema.
func openDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("archive: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("archive: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: apply schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	return db, nil
}

// openMemory opens an in-memory archive database for tests. MaxOpenConns(1)
// pins every query to the one connection that holds the in-memory database.
func openMemory(tb testing.TB) *sql.DB {
	tb.Helper()
	db, err := openDB(":memory:")
	if err != nil {
		tb.Fatalf("archive.openMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	tb.Cleanup(func() { db.Close() })
	return db
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// retryBusy runs fn, retrying SQLITE_BUSY failures with linear backoff.
// Any other error surfaces immediately.
func retryBusy(ctx context.Context, fn func() error) error {
	const attempts = 3
	var err error
	for i := range attempts {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		backoff := time.Duration(100*(i+1)) * time.Millisecond
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("archive: retry interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

// runTx executes fn inside a transaction, retrying on busy.
func runTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return retryBusy(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("archive: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("archive: commit: %w", err)
		}
		return nil
	})
}

// execRetry executes one statement, retrying on busy.
func execRetry(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retryBusy(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
