// Package models defines value types shared by storage and the workspace.
package models

import "time"

// NoteMetadata describes a note file without its content.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
