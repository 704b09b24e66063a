// Package peer manages the direct channels between two room members: the
// Link abstraction, the Session lifecycle on top of it, and the transports
// that negotiate links.
package peer

import "errors"

var (
	// ErrLinkClosed is returned when sending on a closed link.
	ErrLinkClosed = errors.New("link closed")
)

// Link is a reliable, ordered, bidirectional message channel to one peer.
// Either side may close it, and both sides observe the closure through Done.
type Link interface {
	// Send delivers one message. It may block while the transport applies
	// backpressure. Safe for concurrent use.
	Send(data []byte) error

	// Messages yields inbound messages in order. Messages that arrive before
	// anyone reads are queued.
	Messages() <-chan []byte

	// Done is closed when the link is closed by either side or fails.
	Done() <-chan struct{}

	Close() error
}
