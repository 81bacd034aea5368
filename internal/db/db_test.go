package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesWorkspace(t *testing.T) {
	ws := t.TempDir()
	conn, err := Open(Config{Workspace: ws})
	require.NoError(t, err)
	defer conn.Close()

	_, err = os.Stat(filepath.Join(ws, ".giveaway"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws, ".giveaway", "giveaway.db"), Path(ws))

	var fk int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
	var mode string
	require.NoError(t, conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpenExplicitFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "other.db")
	conn, err := Open(Config{File: file})
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec(`CREATE TABLE t(id INTEGER)`)
	require.NoError(t, err)
	_, err = os.Stat(file)
	assert.NoError(t, err)
}
