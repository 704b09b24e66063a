package transfer

const (
	// ChunkSize is the number of plaintext bytes sealed into each file-chunk.
	ChunkSize = 16 * 1024

	// KeySize is the size of a per-transfer content key.
	KeySize = 32
)

// Direction tells whether a transfer is being sent or received.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// EventKind identifies a transfer event.
type EventKind int

const (
	// EventOffer is raised when a peer announces a file.
	EventOffer EventKind = iota
	EventProgress
	EventCompleted
	EventFailed
	// EventRejected is raised when a peer declines a file we offered.
	EventRejected
)

func (k EventKind) String() string {
	switch k {
	case EventOffer:
		return "offer"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventRejected:
		return "rejected"
	}
	return "unknown"
}

// Event describes a transfer state change.
type Event struct {
	Kind      EventKind
	Direction Direction
	PeerID    string
	Name      string
	MimeType  string
	Size      int64
	Bytes     int64
	Percent   float64

	// Path is where a completed inbound file was stored.
	Path string

	Err error
}
