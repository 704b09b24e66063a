package peer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sharemesh/sharemesh/internal/protocol"
)

var (
	ErrNotLinked     = errors.New("peer session is not linked yet")
	ErrAlreadyLinked = errors.New("peer session is already linked")
	ErrSessionClosed = errors.New("peer session closed")
)

// State is the lifecycle position of a Session.
type State int

const (
	Negotiating State = iota
	Linked
	Closed
)

func (s State) String() string {
	switch s {
	case Negotiating:
		return "negotiating"
	case Linked:
		return "linked"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Handler receives the frames of a linked session.
type Handler interface {
	// HandleFrame is called from the session's dispatch goroutine, one frame
	// at a time, in arrival order.
	HandleFrame(s *Session, msg protocol.Message)

	// PeerClosed is called exactly once when the session closes.
	PeerClosed(s *Session)
}

// Session is the logical connection to one remote room member.
type Session struct {
	ID   string
	Name string

	handler Handler
	logger  *slog.Logger

	mu    sync.Mutex
	state State
	link  Link

	sendMu    sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session in the Negotiating state.
func NewSession(id, name string, handler Handler, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:      id,
		Name:    name,
		handler: handler,
		logger:  logger.With(slog.Group("peer", "id", id, "name", name)),
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Attach binds an open link and starts dispatching its frames. It succeeds
// once; frames the link queued earlier are dispatched first.
func (s *Session) Attach(link Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Closed:
		return ErrSessionClosed
	case Linked:
		return ErrAlreadyLinked
	}

	s.link = link
	s.state = Linked
	s.logger.Debug("peer linked")
	go s.dispatch(link)
	return nil
}

// Send encodes and sends one frame.
func (s *Session) Send(msgType string, payload any) error {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msgType, err)
	}
	return s.SendRaw(data)
}

// SendRaw sends one already encoded frame.
func (s *Session) SendRaw(data []byte) error {
	s.mu.Lock()
	state, link := s.state, s.link
	s.mu.Unlock()

	switch state {
	case Negotiating:
		return ErrNotLinked
	case Closed:
		return ErrSessionClosed
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := link.Send(data); err != nil {
		if errors.Is(err, ErrLinkClosed) {
			return ErrSessionClosed
		}
		return err
	}
	return nil
}

// Close tears the session down and closes its link.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		link := s.link
		s.state = Closed
		s.mu.Unlock()

		close(s.done)
		if link != nil {
			link.Close()
		}
		s.logger.Debug("peer session closed")
		if s.handler != nil {
			s.handler.PeerClosed(s)
		}
	})
}

func (s *Session) dispatch(link Link) {
	for {
		select {
		case data := <-link.Messages():
			s.deliver(data)

		case <-link.Done():
			s.drain(link)
			s.Close()
			return

		case <-s.done:
			return
		}
	}
}

// drain delivers frames that arrived before the link closed.
func (s *Session) drain(link Link) {
	for {
		select {
		case data := <-link.Messages():
			s.deliver(data)
		default:
			return
		}
	}
}

func (s *Session) deliver(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warn("dropping malformed frame", "error", err, "size", len(data))
		return
	}
	if s.handler != nil {
		s.handler.HandleFrame(s, msg)
	}
}
