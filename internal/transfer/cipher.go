package transfer

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/chacha20poly1305"
)

const redacted = "[REDACTED]"

// SealedOverhead is the number of bytes sealing adds to a chunk:
// 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const SealedOverhead = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// Key is a per-transfer content key. It never prints its bytes.
type Key struct {
	b [KeySize]byte
}

// NewKey draws a fresh random key.
func NewKey() (*Key, error) {
	k := &Key{}
	if _, err := rand.Read(k.b[:]); err != nil {
		return nil, NewError("generate key", err)
	}
	return k, nil
}

// KeyFromBytes copies a key received in file-meta.
func KeyFromBytes(b []byte) (*Key, error) {
	if len(b) != KeySize {
		return nil, WrapError("load key", ErrInvalidKey, fmt.Sprintf("got %d bytes, want %d", len(b), KeySize))
	}
	k := &Key{}
	copy(k.b[:], b)
	return k, nil
}

// Bytes returns a copy of the key material for the file-meta frame.
func (k *Key) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, k.b[:])
	return out
}

// Wipe zeroes the key.
func (k *Key) Wipe() {
	if k == nil {
		return
	}
	clear(k.b[:])
}

func (k *Key) String() string { return redacted }

func (k *Key) GoString() string { return redacted }

func (k *Key) LogValue() slog.Value { return slog.StringValue(redacted) }

var _ slog.LogValuer = (*Key)(nil)

// chunkCipher seals and opens chunks under one key.
type chunkCipher struct {
	aead cipher.AEAD
}

func newChunkCipher(k *Key) (*chunkCipher, error) {
	aead, err := chacha20poly1305.NewX(k.b[:])
	if err != nil {
		return nil, NewError("init cipher", err)
	}
	return &chunkCipher{aead: aead}, nil
}

// seal encrypts one chunk. The output is nonce || ciphertext || tag and the
// plaintext offset is bound as additional data.
func (c *chunkCipher) seal(offset int64, plaintext []byte) ([]byte, error) {
	out := make([]byte, chacha20poly1305.NonceSizeX, SealedOverhead+len(plaintext))
	if _, err := rand.Read(out); err != nil {
		return nil, NewError("generate nonce", err)
	}
	return c.aead.Seal(out, out, plaintext, offsetAD(offset)), nil
}

// open decrypts a chunk sealed at offset.
func (c *chunkCipher) open(offset int64, sealed []byte) ([]byte, error) {
	if len(sealed) < SealedOverhead {
		return nil, WrapError("open chunk", ErrDecrypt, "chunk too short")
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, offsetAD(offset))
	if err != nil {
		return nil, NewError("open chunk", ErrDecrypt)
	}
	return plaintext, nil
}

func offsetAD(offset int64) []byte {
	var ad [8]byte
	binary.BigEndian.PutUint64(ad[:], uint64(offset))
	return ad[:]
}
