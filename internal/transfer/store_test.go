package transfer

import (
	"os"
	"path/filepath"
	"testing"
)

func commit(t *testing.T, s Store, name string, data []byte) string {
	t.Helper()
	a, err := s.Create(name, int64(len(data)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := a.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	path, err := a.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return path
}

func TestMemoryStoreUniqueNames(t *testing.T) {
	s := NewMemoryStore()

	first := commit(t, s, "notes.txt", []byte("one"))
	second := commit(t, s, "notes.txt", []byte("two"))
	empty := commit(t, s, "empty", nil)

	if first != "notes.txt" || second != "notes (1).txt" {
		t.Errorf("names = %q, %q", first, second)
	}
	if got, _ := s.Get(second); string(got) != "two" {
		t.Errorf("second content = %q", got)
	}
	if got, ok := s.Get(empty); !ok || got == nil || len(got) != 0 {
		t.Errorf("empty file = %v, %v", got, ok)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}

func TestMemoryStoreAbort(t *testing.T) {
	s := NewMemoryStore()
	a, _ := s.Create("x", 3)
	a.Write([]byte("abc"))
	a.Abort()
	if s.Len() != 0 {
		t.Error("aborted artifact was stored")
	}
}

func TestDirStoreCommit(t *testing.T) {
	dir := t.TempDir()
	s := &DirStore{Dir: filepath.Join(dir, "downloads")}

	first := commit(t, s, "photo.jpg", []byte("jpeg"))
	second := commit(t, s, "photo.jpg", []byte("jpeg2"))

	if filepath.Base(first) != "photo.jpg" {
		t.Errorf("first path = %q", first)
	}
	if first == second {
		t.Fatal("second commit overwrote the first file")
	}
	data, err := os.ReadFile(second)
	if err != nil || string(data) != "jpeg2" {
		t.Errorf("second file = %q, %v", data, err)
	}

	entries, _ := os.ReadDir(s.Dir)
	if len(entries) != 2 {
		t.Errorf("directory has %d entries, want 2 with no temp files left", len(entries))
	}
}

func TestDirStoreAbortRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	s := &DirStore{Dir: dir}

	a, err := s.Create("partial.bin", 10)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a.Write([]byte("12345"))
	if err := a.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("directory not empty after abort: %v", entries)
	}
}
