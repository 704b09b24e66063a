package files

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestValidateAllowsEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.json", nil)

	info, err := Validate(path)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if info.Size != 0 || info.Name != "empty.json" || info.Type != "application/json" {
		t.Errorf("info = %+v", info)
	}
}

func TestOpenReturnsReadableFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "blob", []byte("abc"))

	info, f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if info.Size != 3 || info.Type != "application/octet-stream" || !filepath.IsAbs(info.Path) {
		t.Errorf("info = %+v", info)
	}
	buf := make([]byte, 3)
	if _, err := f.Read(buf); err != nil || string(buf) != "abc" {
		t.Errorf("Read = %q, %v", buf, err)
	}
}

func TestValidateRejectsMissingAndDirectories(t *testing.T) {
	dir := t.TempDir()

	if _, err := Validate(filepath.Join(dir, "nope")); !errors.Is(err, ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
	if _, err := Validate(dir); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("directory error = %v", err)
	}
}

func TestValidateFilesReportsEveryFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "a.bin", []byte{1, 2})

	infos, err := ValidateFiles([]string{good})
	if err != nil || len(infos) != 1 || GetTotalSize(infos) != 2 {
		t.Fatalf("ValidateFiles = %v, %v", infos, err)
	}

	_, err = ValidateFiles([]string{good, filepath.Join(dir, "x"), dir})
	if !errors.Is(err, ErrNotExist) || !errors.Is(err, ErrIsDirectory) {
		t.Errorf("error = %v, want both failures", err)
	}

	if _, err := ValidateFiles(nil); !errors.Is(err, ErrNoFiles) {
		t.Errorf("empty list error = %v", err)
	}
}
