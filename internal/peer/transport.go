package peer

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Signal types.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// Signal is the negotiation payload relayed between two sessions. The relay
// treats it as opaque.
type Signal struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Request describes one side of a link negotiation.
type Request struct {
	LocalID string
	PeerID  string

	// Initiator creates the data channel and sends the offer.
	Initiator bool

	// SendSignal relays a negotiation payload to the peer.
	SendSignal func(Signal) error
}

// Negotiation is an in-progress link setup.
type Negotiation interface {
	// HandleSignal feeds a payload received from the peer.
	HandleSignal(Signal) error

	// Link yields the link once it is open. It yields at most once.
	Link() <-chan Link

	// Close abandons the negotiation. It does not close a link already
	// delivered.
	Close() error
}

// Transport negotiates links with peers.
type Transport interface {
	Negotiate(ctx context.Context, req Request) (Negotiation, error)
}
