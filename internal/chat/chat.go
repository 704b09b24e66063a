// Package chat implements the room chat channel carried over peer sessions.
package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sharemesh/sharemesh/internal/protocol"
)

// DefaultLogSize bounds how many messages a Channel keeps.
const DefaultLogSize = 500

// Message is one chat line, local or remote.
type Message struct {
	SenderID   string
	SenderName string
	Text       string
	SentAt     time.Time
	Local      bool
}

// Peer is a linked session that chat frames can be sent to.
type Peer interface {
	Send(msgType string, payload any) error
}

// Options configures a Channel.
type Options struct {
	SelfID   string
	SelfName string

	// Peers lists the sessions a broadcast goes to. It is called once per
	// broadcast.
	Peers func() []Peer

	// OnMessage is called for every message appended to the log.
	OnMessage func(Message)

	LogSize int
	Logger  *slog.Logger
	now     func() time.Time
}

// Channel fans chat out to every linked peer and keeps a bounded log.
type Channel struct {
	peers     func() []Peer
	onMessage func(Message)
	limit     int
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	selfID   string
	selfName string
	log      []Message
}

// NewChannel creates a chat channel.
func NewChannel(opts Options) *Channel {
	if opts.Peers == nil {
		opts.Peers = func() []Peer { return nil }
	}
	if opts.OnMessage == nil {
		opts.OnMessage = func(Message) {}
	}
	if opts.LogSize <= 0 {
		opts.LogSize = DefaultLogSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Channel{
		peers:     opts.Peers,
		onMessage: opts.OnMessage,
		limit:     opts.LogSize,
		logger:    opts.Logger,
		now:       opts.now,
		selfID:    opts.SelfID,
		selfName:  opts.SelfName,
	}
}

// Broadcast sends text to every linked peer and echoes it locally. Blank
// text is ignored and reports false. Send failures are returned joined; the
// local echo happens regardless.
func (c *Channel) Broadcast(text string) (Message, bool, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, false, nil
	}

	c.mu.Lock()
	msg := Message{SenderID: c.selfID, SenderName: c.selfName, Text: text, SentAt: c.now(), Local: true}
	c.mu.Unlock()

	frame := protocol.Chat{Text: text, SentAt: msg.SentAt.UnixMilli()}
	var errs []error
	for _, p := range c.peers() {
		if err := p.Send(protocol.TypeChat, frame); err != nil {
			errs = append(errs, err)
		}
	}

	c.append(msg)
	if len(errs) > 0 {
		c.logger.Warn("chat not delivered to every peer", "failed", len(errs))
		return msg, true, fmt.Errorf("chat broadcast: %w", errors.Join(errs...))
	}
	return msg, true, nil
}

// Receive appends a message from a peer. Blank text is dropped.
func (c *Channel) Receive(fromID, fromName string, frame protocol.Chat) (Message, bool) {
	if strings.TrimSpace(frame.Text) == "" {
		c.logger.Debug("dropping empty chat", "peer", fromID)
		return Message{}, false
	}
	sentAt := c.now()
	if frame.SentAt > 0 {
		sentAt = time.UnixMilli(frame.SentAt)
	}
	msg := Message{SenderID: fromID, SenderName: fromName, Text: frame.Text, SentAt: sentAt}
	c.append(msg)
	return msg, true
}

// Messages returns the log, oldest first.
func (c *Channel) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.log))
	copy(out, c.log)
	return out
}

func (c *Channel) append(msg Message) {
	c.mu.Lock()
	c.log = append(c.log, msg)
	if over := len(c.log) - c.limit; over > 0 {
		c.log = append(c.log[:0], c.log[over:]...)
	}
	c.mu.Unlock()
	c.onMessage(msg)
}
