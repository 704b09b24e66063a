package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.00 KB",
		40000:           "39.06 KB",
		5 * 1024 * 1024: "5.00 MB",
		3 << 30:         "3.00 GB",
	}
	for in, want := range tests {
		if got := FormatSize(in); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := FormatSpeed(512); got != "512 B/s" {
		t.Errorf("FormatSpeed(512) = %q", got)
	}
	if got := FormatSpeed(2 * 1024 * 1024); got != "2.00 MB/s" {
		t.Errorf("FormatSpeed(2MB) = %q", got)
	}
}

func TestFormatTimeDuration(t *testing.T) {
	tests := map[time.Duration]string{
		5 * time.Second:                           "5s",
		2*time.Minute + 3*time.Second:             "2m 3s",
		time.Hour + 4*time.Minute + 2*time.Second: "1h 4m 2s",
	}
	for in, want := range tests {
		if got := FormatTimeDuration(in); got != want {
			t.Errorf("FormatTimeDuration(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestGetUniqueFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")

	if got := GetUniqueFilename(path); got != path {
		t.Errorf("free name changed to %q", got)
	}

	os.WriteFile(path, nil, 0644)
	if got, want := GetUniqueFilename(path), filepath.Join(dir, "report (1).pdf"); got != want {
		t.Errorf("GetUniqueFilename = %q, want %q", got, want)
	}

	os.WriteFile(filepath.Join(dir, "report (1).pdf"), nil, 0644)
	if got, want := GetUniqueFilename(path), filepath.Join(dir, "report (2).pdf"); got != want {
		t.Errorf("GetUniqueFilename = %q, want %q", got, want)
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a much longer file name.txt", 10, "a much ..."},
		{"héllo wörld", 8, "héllo..."},
		{"abc", 2, "ab"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
