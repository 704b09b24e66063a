// Package protocol defines the frames peers exchange over a PeerLink.
package protocol

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformed is returned for frames that cannot be decoded.
var ErrMalformed = errors.New("malformed message")

// Frame types.
const (
	TypeFileMeta  = "file-meta"
	TypeAccept    = "accept"
	TypeReject    = "reject"
	TypeFileChunk = "file-chunk"
	TypeFileEnd   = "file-end"
	TypeChat      = "chat"
)

// Message represents every data channel frame.
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// FileMeta announces a file. Key is the per-transfer content key.
type FileMeta struct {
	Name     string `msgpack:"name"`
	Size     int64  `msgpack:"size"`
	Key      []byte `msgpack:"key"`
	MimeType string `msgpack:"mimeType"`
}

// Accept is the receiver's consent to a pending transfer.
type Accept struct {
	Name string `msgpack:"name"`
}

// Reject declines a pending transfer.
type Reject struct {
	Name   string `msgpack:"name"`
	Reason string `msgpack:"reason,omitempty"`
}

// FileChunk carries one sealed chunk. Offset is the plaintext offset.
type FileChunk struct {
	Offset int64  `msgpack:"offset"`
	Data   []byte `msgpack:"data"`
}

// FileEnd closes a transfer. Digest is the BLAKE3-256 of the plaintext.
type FileEnd struct {
	Name   string `msgpack:"name"`
	Digest []byte `msgpack:"digest"`
}

// Chat is a text message. SentAt is in Unix milliseconds.
type Chat struct {
	Text   string `msgpack:"text"`
	SentAt int64  `msgpack:"sentAt"`
}

// NewMessage creates a new Message with the given type and payload
func NewMessage(t string, payload any) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    t,
		Payload: b,
	}, nil
}

// DecodePayload decodes the message payload into the provided struct
func (m Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s frame has no payload", ErrMalformed, m.Type)
	}
	if err := msgpack.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, m.Type, err)
	}
	return nil
}

// Encode serializes a typed frame.
func Encode(t string, payload any) ([]byte, error) {
	msg, err := NewMessage(t, payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(msg)
}

// Decode parses a frame. Unknown types are not an error here; callers decide
// what to do with them.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return msg, nil
}
