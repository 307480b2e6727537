// Package testutil provides shared test helpers for setting up workspaces and databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/patto/internal/index"
	"github.com/starford/patto/internal/noteservice"
	"github.com/starford/patto/internal/storage"
	"github.com/starford/patto/internal/workspace"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "patto-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary workspace directory with a storage
// provider and a repository that logs nothing.
func TestWorkspace(t *testing.T) (*storage.FS, *workspace.Repository) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	repo := workspace.New(store, workspace.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	t.Cleanup(repo.Close)
	return store, repo
}

// TestService wires a note service over a fresh workspace and database.
func TestService(t *testing.T) (*noteservice.Service, *storage.FS) {
	t.Helper()
	store, repo := TestWorkspace(t)
	return noteservice.NewService(store, repo, TestDB(t)), store
}
