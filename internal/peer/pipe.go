package peer

import (
	"context"
	"sync"
)

const pipeBuffer = 256

type pipeEnd struct {
	in   chan []byte
	peer *pipeEnd

	done      chan struct{}
	closeOnce *sync.Once
}

// Pipe returns two connected in-memory links. Closing either end closes both.
func Pipe() (Link, Link) {
	done := make(chan struct{})
	once := &sync.Once{}
	a := &pipeEnd{in: make(chan []byte, pipeBuffer), done: done, closeOnce: once}
	b := &pipeEnd{in: make(chan []byte, pipeBuffer), done: done, closeOnce: once}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipeEnd) Send(data []byte) error {
	select {
	case <-p.done:
		return ErrLinkClosed
	default:
	}

	msg := make([]byte, len(data))
	copy(msg, data)

	select {
	case p.peer.in <- msg:
		return nil
	case <-p.done:
		return ErrLinkClosed
	}
}

func (p *pipeEnd) Messages() <-chan []byte { return p.in }

func (p *pipeEnd) Done() <-chan struct{} { return p.done }

func (p *pipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// Loopback is an in-process Transport. Two sessions that negotiate with each
// other's IDs are connected with a Pipe; no signals are exchanged.
type Loopback struct {
	mu      sync.Mutex
	pending map[[2]string]*loopbackNegotiation
}

// NewLoopback creates an empty loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{pending: make(map[[2]string]*loopbackNegotiation)}
}

var _ Transport = (*Loopback)(nil)

// Negotiate pairs the request with the counterpart's request, whichever
// arrives first.
func (l *Loopback) Negotiate(ctx context.Context, req Request) (Negotiation, error) {
	key := pairKey(req.LocalID, req.PeerID)
	n := &loopbackNegotiation{owner: l, key: key, link: make(chan Link, 1)}

	l.mu.Lock()
	defer l.mu.Unlock()

	if other, ok := l.pending[key]; ok {
		delete(l.pending, key)
		a, b := Pipe()
		other.link <- a
		n.link <- b
		return n, nil
	}
	l.pending[key] = n
	return n, nil
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

type loopbackNegotiation struct {
	owner *Loopback
	key   [2]string
	link  chan Link
}

func (n *loopbackNegotiation) HandleSignal(Signal) error { return nil }

func (n *loopbackNegotiation) Link() <-chan Link { return n.link }

func (n *loopbackNegotiation) Close() error {
	n.owner.mu.Lock()
	if n.owner.pending[n.key] == n {
		delete(n.owner.pending, n.key)
	}
	n.owner.mu.Unlock()
	return nil
}
