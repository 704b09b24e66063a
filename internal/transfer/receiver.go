package transfer

import (
	"bytes"
	"hash"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/sharemesh/sharemesh/internal/protocol"
)

// inbound is one file announced by one peer. Until accepted it holds only
// the announced metadata; no chunk is decrypted or stored.
type inbound struct {
	peerID   string
	name     string
	size     int64
	mimeType string
	key      *Key

	mu       sync.Mutex
	accepted bool
	cipher   *chunkCipher
	artifact Artifact
	hasher   hash.Hash
	received int64
	throttle progressThrottle
}

// accept opens the artifact and readies decryption.
func (in *inbound) accept(store Store) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.accepted {
		return nil
	}
	cc, err := newChunkCipher(in.key)
	if err != nil {
		return err
	}
	artifact, err := store.Create(in.name, in.size)
	if err != nil {
		return err
	}
	in.cipher = cc
	in.artifact = artifact
	in.hasher = blake3.New()
	in.accepted = true
	return nil
}

func (in *inbound) isAccepted() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.accepted
}

// write decrypts one chunk and appends it. Chunks must arrive at the
// running offset; the link is ordered and reliable, so anything else is a
// protocol violation.
func (in *inbound) write(chunk protocol.FileChunk) (int64, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.accepted {
		return in.received, ErrNotAccepted
	}
	if chunk.Offset != in.received {
		return in.received, NewFileError("receive chunk", in.name, ErrUnexpectedOffset)
	}

	plaintext, err := in.cipher.open(chunk.Offset, chunk.Data)
	if err != nil {
		return in.received, NewFileError("receive chunk", in.name, err)
	}
	if in.received+int64(len(plaintext)) > in.size {
		return in.received, NewFileError("receive chunk", in.name, ErrSizeMismatch)
	}

	if _, err := in.artifact.Write(plaintext); err != nil {
		return in.received, err
	}
	in.hasher.Write(plaintext)
	in.received += int64(len(plaintext))
	clear(plaintext)
	return in.received, nil
}

// finish verifies the whole file and commits the artifact.
func (in *inbound) finish(end protocol.FileEnd) (string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.accepted {
		return "", ErrNotAccepted
	}
	if end.Name != in.name {
		return "", WrapError("finish", ErrInvalidFile, "file-end name does not match file-meta")
	}
	if in.received != in.size {
		return "", NewFileError("finish", in.name, ErrSizeMismatch)
	}
	if !bytes.Equal(in.hasher.Sum(nil), end.Digest) {
		return "", NewFileError("finish", in.name, ErrDigestMismatch)
	}

	path, err := in.artifact.Commit()
	if err != nil {
		return "", err
	}
	in.artifact = nil
	return path, nil
}

// discard drops partial data and wipes the key.
func (in *inbound) discard() {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.artifact != nil {
		in.artifact.Abort()
		in.artifact = nil
	}
	in.key.Wipe()
}
