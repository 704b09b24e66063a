package mesh

import (
	"github.com/sharemesh/sharemesh/internal/chat"
	"github.com/sharemesh/sharemesh/internal/peer"
	"github.com/sharemesh/sharemesh/internal/transfer"
)

// EventKind identifies what a node Event reports.
type EventKind int

const (
	EventPeerJoined EventKind = iota
	EventPeerLinked
	EventPeerLeft
	EventChat
	EventTransfer
	EventRelayError
	EventRelayLost
)

func (k EventKind) String() string {
	switch k {
	case EventPeerJoined:
		return "peer-joined"
	case EventPeerLinked:
		return "peer-linked"
	case EventPeerLeft:
		return "peer-left"
	case EventChat:
		return "chat"
	case EventTransfer:
		return "transfer"
	case EventRelayError:
		return "relay-error"
	case EventRelayLost:
		return "relay-lost"
	}
	return "unknown"
}

// PeerInfo describes one remote room member.
type PeerInfo struct {
	ID    string
	Name  string
	State peer.State
}

// Event is delivered to the node's OnEvent callback.
type Event struct {
	Kind     EventKind
	Peer     PeerInfo
	Chat     chat.Message
	Transfer transfer.Event
	Err      error
}
