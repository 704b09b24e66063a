package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/sharemesh/sharemesh/internal/protocol"
)

// outbound is one file offered to one peer. It holds its reader until the
// peer answers; streaming only starts after accept.
type outbound struct {
	peerID   string
	conn     Conn
	name     string
	size     int64
	mimeType string
	reader   io.Reader
	key      *Key

	mu       sync.Mutex
	accepted bool
	retired  bool
	cancel   context.CancelFunc
}

func (o *outbound) meta() protocol.FileMeta {
	return protocol.FileMeta{
		Name:     o.name,
		Size:     o.size,
		Key:      o.key.Bytes(),
		MimeType: o.mimeType,
	}
}

// start marks the transfer accepted. It reports false if it already was or
// if the offer was retired.
func (o *outbound) start(cancel context.CancelFunc) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.accepted || o.retired {
		return false
	}
	o.accepted = true
	o.cancel = cancel
	return true
}

// retire ends a pending offer so a late accept cannot start it. It reports
// false if the transfer is already streaming.
func (o *outbound) retire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.accepted {
		return false
	}
	o.retired = true
	return true
}

// abort stops a running stream. Pending transfers have nothing to stop.
func (o *outbound) abort() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// release wipes the key and closes the reader if it is closable.
func (o *outbound) release() {
	o.key.Wipe()
	if c, ok := o.reader.(io.Closer); ok {
		c.Close()
	}
}

// stream reads, seals and sends every chunk, then file-end. It reports the
// number of plaintext bytes sent.
func (o *outbound) stream(ctx context.Context, progress func(sent int64)) (int64, error) {
	cc, err := newChunkCipher(o.key)
	if err != nil {
		return 0, err
	}

	hasher := blake3.New()
	buf := make([]byte, ChunkSize)
	reader := io.LimitReader(o.reader, o.size)

	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return offset, NewFileError("send", o.name, ErrLinkLost)
		}

		n, readErr := io.ReadFull(reader, buf)
		if n > 0 {
			hasher.Write(buf[:n])
			sealed, err := cc.seal(offset, buf[:n])
			if err != nil {
				return offset, err
			}
			if err := o.conn.Send(protocol.TypeFileChunk, protocol.FileChunk{Offset: offset, Data: sealed}); err != nil {
				return offset, NewFileError("send chunk", o.name, linkErr(err))
			}
			offset += int64(n)
			progress(offset)
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return offset, NewFileError("read", o.name, readErr)
		}
	}

	if err := o.conn.Send(protocol.TypeFileEnd, protocol.FileEnd{Name: o.name, Digest: hasher.Sum(nil)}); err != nil {
		return offset, NewFileError("send end", o.name, linkErr(err))
	}
	if offset != o.size {
		return offset, WrapError("send", ErrSizeMismatch, o.name)
	}
	return offset, nil
}

// linkErr marks a failed send as a lost link.
func linkErr(err error) error {
	if errors.Is(err, ErrLinkLost) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrLinkLost, err)
}
