package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	// StateDir holds the database and pdfcpu's config inside a workspace.
	StateDir      = ".formfill"
	defaultDBName = "formfill.db"
	busyTimeoutMS = 5000
)

type Config struct {
	Workspace string
}

// Dir returns the state directory of a workspace.
func Dir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, StateDir)
}

// EnsureWorkspace creates the state directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := Dir(workspace)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the workspace database. Batch generation stores documents and
// audit events from several goroutines, so writers wait on the lock instead
// of failing with SQLITE_BUSY.
func Open(cfg Config) (*sql.DB, error) {
	dir, err := EnsureWorkspace(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		filepath.Join(dir, defaultDBName), busyTimeoutMS)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
