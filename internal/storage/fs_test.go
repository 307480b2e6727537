package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/patto/internal/apperr"
)

func tempWorkspace(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempWorkspace(t)
	content := []byte("Hello\n\t[World]\n")
	if err := s.Write("note.pn", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("note.pn")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempWorkspace(t)
	if err := s.Write("a/b/c.pn", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.pn")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestDeleteAndMove(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("old.pn", []byte("data"))
	if err := s.Move("old.pn", "sub/new.pn"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := s.Read("old.pn"); err == nil {
		t.Error("old path should not exist")
	}
	if err := s.Delete("sub/new.pn"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("sub/new.pn"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestListFiltersExtensionAndHiddenDirs(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("a.pn", []byte("a"))
	_ = s.Write("sub/b.pn", []byte("b"))
	_ = s.Write("readme.md", []byte("not a note"))
	_ = s.Write(".git/c.pn", []byte("hidden"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	seen := map[string]bool{}
	for _, m := range items {
		seen[m.Path] = true
		if m.Checksum == "" {
			t.Errorf("missing checksum for %s", m.Path)
		}
	}
	if !seen["a.pn"] || !seen["sub/b.pn"] {
		t.Errorf("unexpected paths: %v", seen)
	}
}

func TestCustomExtension(t *testing.T) {
	s, err := NewFS(t.TempDir(), "txt")
	if err != nil {
		t.Fatal(err)
	}
	if s.Ext() != ".txt" {
		t.Fatalf("ext = %q", s.Ext())
	}
	_ = s.Write("a.txt", []byte("a"))
	_ = s.Write("b.pn", []byte("b"))
	items, _ := s.List("")
	if len(items) != 1 || items[0].Path != "a.txt" {
		t.Errorf("items = %+v", items)
	}
}

func TestStat(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("n.pn", []byte("12345"))
	m, err := s.Stat("n.pn")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if m.Size != 5 || m.Path != "n.pn" || m.UpdatedAt.IsZero() {
		t.Errorf("meta = %+v", m)
	}
	if _, err := s.Stat("missing.pn"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempWorkspace(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.pn",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Write("atomic.pn", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.pn", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.pn")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".patto-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_Errors(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing"), ""); err == nil {
		t.Error("expected error for non-existent dir")
	}

	f, _ := os.CreateTemp("", "patto-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name(), ""); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestSafePathRejectsEscapes(t *testing.T) {
	f, err := NewFS(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"../out.pn", "/etc/passwd.pn", "a/../../b.pn"} {
		if _, err := f.Read(p); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("Read(%q) err = %v, want ErrInvalidInput", p, err)
		}
	}
}
