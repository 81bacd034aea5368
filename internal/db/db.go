// Package db opens the sqlite workspace database.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultDBName      = "giveaway.db"
	stateDir           = ".giveaway"
	defaultBusyTimeout = 5 * time.Second
)

type Config struct {
	Workspace string
	// File overrides <workspace>/.giveaway/giveaway.db.
	File string
	// BusyTimeout bounds how long a writer waits on a locked database.
	BusyTimeout time.Duration
}

func (c Config) path() string {
	if c.File != "" {
		return c.File
	}
	return Path(c.Workspace)
}

// EnsureWorkspace creates the .giveaway state directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	dir := StateDir(workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace state dir: %w", err)
	}
	return dir, nil
}

// Open opens the database with foreign keys on and WAL journaling, so the
// API server and webhook dispatcher can read while a draw is written.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.File == "" {
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	conn, err := sql.Open("sqlite", "file:"+cfg.path()+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", cfg.path(), err)
	}
	return conn, nil
}

// StateDir returns the .giveaway directory of a workspace.
func StateDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDir)
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return filepath.Join(StateDir(workspace), defaultDBName)
}
