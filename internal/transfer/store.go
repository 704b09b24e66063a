package transfer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sharemesh/sharemesh/internal/utils"
)

// Artifact receives the plaintext of one inbound transfer.
type Artifact interface {
	Write(p []byte) (int, error)

	// Commit finalizes the artifact and returns where it was stored.
	Commit() (string, error)

	// Abort discards everything written so far.
	Abort() error
}

// Store creates artifacts for accepted transfers.
type Store interface {
	Create(name string, size int64) (Artifact, error)
}

// MemoryStore keeps completed files in memory.
type MemoryStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (s *MemoryStore) Create(name string, size int64) (Artifact, error) {
	a := &memoryArtifact{store: s, name: name}
	if size > 0 && size <= 64*ChunkSize {
		a.buf.Grow(int(size))
	}
	return a, nil
}

// Get returns the committed content stored under name.
func (s *MemoryStore) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[name]
	return b, ok
}

// Len reports how many files were committed.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

type memoryArtifact struct {
	store *MemoryStore
	name  string
	buf   bytes.Buffer
}

func (a *memoryArtifact) Write(p []byte) (int, error) { return a.buf.Write(p) }

func (a *memoryArtifact) Commit() (string, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	name := a.name
	for i := 1; ; i++ {
		if _, taken := a.store.files[name]; !taken {
			break
		}
		ext := filepath.Ext(a.name)
		name = fmt.Sprintf("%s (%d)%s", a.name[:len(a.name)-len(ext)], i, ext)
	}
	data := bytes.Clone(a.buf.Bytes())
	if data == nil {
		data = []byte{}
	}
	a.store.files[name] = data
	return name, nil
}

func (a *memoryArtifact) Abort() error {
	a.buf.Reset()
	return nil
}

// DirStore writes files into a directory. Data goes to a hidden temp file
// that is renamed to a unique final name on commit.
type DirStore struct {
	Dir string
}

func (s *DirStore) Create(name string, size int64) (Artifact, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, NewFileError("create directory", dir, err)
	}

	file, err := os.CreateTemp(dir, ".sharemesh-*.part")
	if err != nil {
		return nil, NewFileError("create file", name, err)
	}
	return &fileArtifact{file: file, dir: dir, name: name}, nil
}

type fileArtifact struct {
	file *os.File
	dir  string
	name string
}

func (a *fileArtifact) Write(p []byte) (int, error) {
	n, err := a.file.Write(p)
	if err != nil {
		return n, NewFileError("write", a.name, err)
	}
	return n, nil
}

func (a *fileArtifact) Commit() (string, error) {
	tmp := a.file.Name()
	if err := a.file.Close(); err != nil {
		os.Remove(tmp)
		return "", NewFileError("close", a.name, err)
	}

	final := utils.GetUniqueFilename(filepath.Join(a.dir, a.name))
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", NewFileError("rename", a.name, err)
	}
	return final, nil
}

func (a *fileArtifact) Abort() error {
	a.file.Close()
	return os.Remove(a.file.Name())
}
