// Package storage defines the workspace file-system abstraction.
package storage

import "github.com/starford/patto/internal/models"

// Provider is the interface for workspace file operations. All paths are
// slash or OS separated and relative to the workspace root.
type Provider interface {
	// Root returns the absolute workspace directory.
	Root() string
	// Ext returns the note file extension, including the dot.
	Ext() string
	// List returns metadata for every note file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Stat returns metadata for a single note file.
	Stat(path string) (models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
