package files

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

var (
	ErrNoFiles     = errors.New("no files specified")
	ErrNotExist    = errors.New("file does not exist")
	ErrIsDirectory = errors.New("is a directory (directories are not supported)")
)

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	// Size is the file size in bytes. Empty files are allowed.
	Size int64

	// Type is the MIME type of the file (e.g., "application/pdf", "text/plain")
	Type string
}

// ValidateFiles checks that every path is a readable regular file. All
// failures are reported together.
func ValidateFiles(filePaths []string) ([]FileInfo, error) {
	if len(filePaths) == 0 {
		return nil, ErrNoFiles
	}

	var infos []FileInfo
	var errs []error
	for _, path := range filePaths {
		info, err := Validate(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		infos = append(infos, info)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("file validation failed: %w", errors.Join(errs...))
	}
	return infos, nil
}

// Validate checks a single file and returns its info.
func Validate(path string) (FileInfo, error) {
	info, f, err := Open(path)
	if err != nil {
		return FileInfo{}, err
	}
	f.Close()
	return info, nil
}

// Open validates path and opens it for reading. The caller closes the file.
func Open(path string) (FileInfo, *os.File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, nil, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FileInfo{}, nil, fmt.Errorf("%s: %w", path, ErrNotExist)
		}
		return FileInfo{}, nil, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return FileInfo{}, nil, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	if stat.IsDir() {
		file.Close()
		return FileInfo{}, nil, fmt.Errorf("%s: %w", path, ErrIsDirectory)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(absPath))
	if mimeType == "" {
		// Default to binary if unknown
		mimeType = "application/octet-stream"
	}

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: mimeType,
	}, file, nil
}

// GetTotalSize returns the total size of all files
func GetTotalSize(fileInfos []FileInfo) int64 {
	var total int64
	for _, file := range fileInfos {
		total += file.Size
	}
	return total
}
