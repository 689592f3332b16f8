package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLocalListFiles_MissingPathReturnsEmpty(t *testing.T) {
	// WHAT: Listing a nonexistent folder yields an empty result, not an error.
	// WHY: A misconfigured source folder must not crash a batch at listing time.
	l := NewLocal()
	files, err := l.ListFiles(filepath.Join(t.TempDir(), "does-not-exist"), "RE-*.pdf")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected empty, got %v", files)
	}
}

func TestLocalListFiles_GlobFiltersCandidates(t *testing.T) {
	// WHAT: Only files matching the invoice prefix pattern are returned.
	l := NewLocal()
	dir := t.TempDir()
	for _, name := range []string{"RE-2024-001.pdf", "RE-2024-002.pdf", "notes.txt", "scan.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := l.ListFiles(dir, "RE-*.pdf")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files: %v", len(files), files)
	}
	if filepath.Base(files[0]) != "RE-2024-001.pdf" || filepath.Base(files[1]) != "RE-2024-002.pdf" {
		t.Errorf("unexpected ordering: %v", files)
	}
}

func TestLocalMoveFile_CreatesDestinationDir(t *testing.T) {
	// WHAT: MoveFile creates the target directory before renaming.
	// WHY: The target folder may not exist on the first run of the day.
	l := NewLocal()
	dir := t.TempDir()
	src := filepath.Join(dir, "RE-1.pdf")
	if err := os.WriteFile(src, []byte("pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "archive", "2024", "RE-1.pdf")
	if err := l.MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if l.Exists(src) {
		t.Error("source still present")
	}
	data, err := l.ReadFile(dst)
	if err != nil || string(data) != "pdf" {
		t.Errorf("destination content: %q, %v", data, err)
	}
}

func TestLocalListDirectories(t *testing.T) {
	// WHAT: Subdirectories are listed sorted case-insensitively; files are not.
	l := NewLocal()
	dir := t.TempDir()
	for _, d := range []string{"beta", "Alpha"} {
		if err := os.Mkdir(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := l.ListDirectories(dir)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Name != "Alpha" || entries[1].Name != "beta" {
		t.Errorf("ordering: %v", entries)
	}
	if entries[0].AccessDenied {
		t.Error("unexpected access-denied flag")
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	p, err := New(Config{Type: "local"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*Local); !ok {
		t.Errorf("expected *Local, got %T", p)
	}
	if _, err := New(Config{Type: "tape"}); err == nil {
		t.Error("unknown backend must fail")
	}
}

func TestSMBConfigValidation(t *testing.T) {
	// WHAT: Missing host/share or credentials fail before any dial.
	if _, err := NewSMB(Config{Type: "smb"}); err == nil {
		t.Error("expected error for missing host/share")
	}
	if _, err := NewSMB(Config{Type: "smb", SMBHost: "nas", SMBShare: "docs"}); err == nil {
		t.Error("expected error for missing credentials")
	}
}

func TestJoinSlash(t *testing.T) {
	if got := joinSlash("a/", "/b", "c"); got != "a/b/c" {
		t.Errorf("got %q", got)
	}
}
