package index

// NoteIndex is the persisted view of the workspace used by search and the
// task listing. Consumers depend on it rather than on *DB.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string, links []LinkRow, tasks []TaskRow) error
	DeleteNote(uri string) error
	GetChecksum(uri string) (string, error)
	AllChecksums() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	Tasks(status string) ([]TaskRow, error)
	Close() error
}

var _ NoteIndex = (*DB)(nil)
