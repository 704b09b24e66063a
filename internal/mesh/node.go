// Package mesh binds the relay connection, peer sessions, file transfers and
// chat of one local participant together.
package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sharemesh/sharemesh/internal/chat"
	"github.com/sharemesh/sharemesh/internal/files"
	"github.com/sharemesh/sharemesh/internal/peer"
	"github.com/sharemesh/sharemesh/internal/protocol"
	"github.com/sharemesh/sharemesh/internal/signaling"
	"github.com/sharemesh/sharemesh/internal/transfer"
)

// DefaultNegotiationTimeout bounds how long a peer may stay negotiating.
const DefaultNegotiationTimeout = 30 * time.Second

var (
	ErrUnknownPeer = errors.New("no such peer in the room")
	ErrNotInRoom   = errors.New("not in a room")
	ErrInRoom      = errors.New("already in a room")
	ErrNodeClosed  = errors.New("node closed")
	ErrRelayLost   = errors.New("relay connection lost")
)

// Options configures a Node.
type Options struct {
	RelayURL string

	// Transport negotiates peer links. Required.
	Transport peer.Transport

	// Store receives accepted files. Defaults to a transfer.MemoryStore.
	Store transfer.Store

	// OnEvent receives every node event. It is called from internal
	// goroutines, never with node locks held, and should return quickly.
	OnEvent func(Event)

	NegotiationTimeout time.Duration
	ProgressInterval   time.Duration
	Logger             *slog.Logger
}

type remote struct {
	session     *peer.Session
	negotiation peer.Negotiation
	cancel      context.CancelFunc
}

type reply struct {
	roomID string
	err    error
}

// Node is one participant: a relay session plus a peer session per other
// room member.
type Node struct {
	client    *signaling.Client
	handler   *signaling.Handler
	transport peer.Transport
	transfers *transfer.Manager
	chat      *chat.Channel
	onEvent   func(Event)
	timeout   time.Duration
	logger    *slog.Logger

	self signaling.Member

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reqMu   sync.Mutex
	waiting chan reply

	mu     sync.Mutex
	roomID string
	peers  map[string]*remote
	closed bool
}

// Connect dials the relay and waits for the assigned identity.
func Connect(ctx context.Context, opts Options) (*Node, error) {
	if opts.Transport == nil {
		return nil, errors.New("mesh: transport is required")
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(Event) {}
	}
	if opts.NegotiationTimeout <= 0 {
		opts.NegotiationTimeout = DefaultNegotiationTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	client := signaling.NewClient(opts.RelayURL, opts.Logger)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	handler := signaling.NewHandler(client)
	go handler.Start()

	var self signaling.Member
	select {
	case m, ok := <-handler.NameAssigned:
		if !ok {
			client.Close()
			return nil, ErrRelayLost
		}
		self = m
	case serr, ok := <-handler.Error:
		client.Close()
		if !ok {
			return nil, ErrRelayLost
		}
		return nil, serr
	case <-ctx.Done():
		client.Close()
		return nil, ctx.Err()
	}

	nodeCtx, cancel := context.WithCancel(context.Background())
	n := &Node{
		client:    client,
		handler:   handler,
		transport: opts.Transport,
		onEvent:   opts.OnEvent,
		timeout:   opts.NegotiationTimeout,
		logger:    opts.Logger.With("self", self.Name),
		self:      self,
		ctx:       nodeCtx,
		cancel:    cancel,
		peers:     make(map[string]*remote),
	}
	n.transfers = transfer.NewManager(transfer.Options{
		Store:            opts.Store,
		OnEvent:          n.transferEvent,
		ProgressInterval: opts.ProgressInterval,
		Logger:           n.logger,
	})
	n.chat = chat.NewChannel(chat.Options{
		SelfID:    self.ID,
		SelfName:  self.Name,
		Peers:     n.linkedPeers,
		OnMessage: func(m chat.Message) { n.onEvent(Event{Kind: EventChat, Chat: m}) },
		Logger:    n.logger,
	})

	n.logger.Info("connected to relay", "id", self.ID)
	n.wg.Add(1)
	go n.run()
	return n, nil
}

// Self returns the identity the relay assigned.
func (n *Node) Self() signaling.Member { return n.self }

// RoomID returns the current room, or "" outside a room.
func (n *Node) RoomID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.roomID
}

// CreateRoom creates a room with the given capacity and joins it.
func (n *Node) CreateRoom(ctx context.Context, capacity int) (string, error) {
	res, err := n.request(ctx, func() error { return n.client.CreateRoom(capacity) })
	if err != nil {
		return "", err
	}
	if err := n.JoinRoom(ctx, res.roomID); err != nil {
		return res.roomID, err
	}
	return res.roomID, nil
}

// JoinRoom joins roomID and starts linking with its members.
func (n *Node) JoinRoom(ctx context.Context, roomID string) error {
	roomID = strings.ToUpper(strings.TrimSpace(roomID))
	if roomID == "" {
		return ErrNotInRoom
	}
	n.mu.Lock()
	current := n.roomID
	n.mu.Unlock()
	if current != "" && current != roomID {
		return ErrInRoom
	}

	_, err := n.request(ctx, func() error { return n.client.JoinRoom(roomID) })
	return err
}

// LeaveRoom leaves the current room and closes every peer session.
func (n *Node) LeaveRoom() error {
	n.mu.Lock()
	roomID := n.roomID
	n.roomID = ""
	n.mu.Unlock()

	if roomID == "" {
		return ErrNotInRoom
	}
	n.closePeers()
	n.logger.Info("left room", "room", roomID)
	return n.client.LeaveRoom(roomID)
}

// Peers lists the other room members sorted by name.
func (n *Node) Peers() []PeerInfo {
	n.mu.Lock()
	out := make([]PeerInfo, 0, len(n.peers))
	for _, r := range n.peers {
		out = append(out, info(r.session))
	}
	n.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Say broadcasts a chat message to every linked peer.
func (n *Node) Say(text string) error {
	_, _, err := n.chat.Broadcast(text)
	return err
}

// SendFile offers the file at path to the named peer.
func (n *Node) SendFile(peerName, path string) error {
	r, err := n.lookup(peerName)
	if err != nil {
		return err
	}
	info, f, err := files.Open(path)
	if err != nil {
		return err
	}
	if err := n.transfers.SendFile(r.session.ID, r.session, info.Name, info.Size, info.Type, f); err != nil {
		f.Close()
		return err
	}
	return nil
}

// Accept consents to the pending offer from the named peer.
func (n *Node) Accept(peerName string) error {
	r, err := n.lookup(peerName)
	if err != nil {
		return err
	}
	return n.transfers.Accept(r.session.ID, r.session)
}

// Reject declines the pending offer from the named peer.
func (n *Node) Reject(peerName string) error {
	r, err := n.lookup(peerName)
	if err != nil {
		return err
	}
	return n.transfers.Reject(r.session.ID, r.session)
}

// Pending returns the unanswered offer from the named peer.
func (n *Node) Pending(peerName string) (name string, size int64, ok bool) {
	r, err := n.lookup(peerName)
	if err != nil {
		return "", 0, false
	}
	return n.transfers.Pending(r.session.ID)
}

// Close leaves the room, drops every peer and disconnects from the relay.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	n.closePeers()
	n.transfers.Close()
	n.cancel()
	n.client.Close()
	n.wg.Wait()
	return nil
}

// request sends one relay request and waits for its answer. The relay
// answers requests in order, so one outstanding request at a time is enough
// to pair answers with requests.
func (n *Node) request(ctx context.Context, send func() error) (reply, error) {
	n.reqMu.Lock()
	defer n.reqMu.Unlock()

	ch := make(chan reply, 1)
	n.mu.Lock()
	n.waiting = ch
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.waiting = nil
		n.mu.Unlock()
	}()

	if err := send(); err != nil {
		return reply{}, err
	}
	select {
	case res := <-ch:
		return res, res.err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-n.ctx.Done():
		return reply{}, ErrNodeClosed
	case <-n.client.Done():
		return reply{}, ErrRelayLost
	}
}

// answer hands a relay reply to the waiting request. It reports false when
// nobody is waiting.
func (n *Node) answer(res reply) bool {
	n.mu.Lock()
	ch := n.waiting
	n.waiting = nil
	n.mu.Unlock()
	if ch == nil {
		return false
	}
	ch <- res
	return true
}

func (n *Node) run() {
	defer n.wg.Done()
	h := n.handler

	for {
		select {
		case roomID, ok := <-h.RoomCreated:
			if !ok {
				n.relayLost()
				return
			}
			n.logger.Info("room created", "room", roomID)
			n.answer(reply{roomID: roomID})

		case members, ok := <-h.UsersInRoom:
			if !ok {
				n.relayLost()
				return
			}
			n.joined(members)

		case joined, ok := <-h.NewUserJoined:
			if !ok {
				n.relayLost()
				return
			}
			n.logger.Info("peer joined", "peer", joined.Member.Name)
			n.startPeer(joined.Member, false)

		case left, ok := <-h.UserLeft:
			if !ok {
				n.relayLost()
				return
			}
			n.peerLeft(left)

		case sig, ok := <-h.Signal:
			if !ok {
				n.relayLost()
				return
			}
			n.signal(sig)

		case serr, ok := <-h.Error:
			if !ok {
				n.relayLost()
				return
			}
			n.logger.Warn("relay error", "code", serr.Code, "error", serr.Message)
			if !n.answer(reply{err: serr}) {
				n.onEvent(Event{Kind: EventRelayError, Err: serr})
			}

		case <-n.ctx.Done():
			return
		}
	}
}

func (n *Node) relayLost() {
	select {
	case <-n.ctx.Done():
		return
	default:
	}
	n.logger.Warn("relay connection lost")
	n.onEvent(Event{Kind: EventRelayLost, Err: ErrRelayLost})
}

func (n *Node) joined(members signaling.RoomMembers) {
	n.mu.Lock()
	n.roomID = members.RoomID
	n.mu.Unlock()
	n.logger.Info("joined room", "room", members.RoomID, "members", len(members.Members))

	for _, m := range members.Members {
		if m.ID != n.self.ID {
			n.startPeer(m, true)
		}
	}
	n.answer(reply{roomID: members.RoomID})
}

// startPeer creates the session for m and starts negotiating its link.
func (n *Node) startPeer(m signaling.Member, initiator bool) *remote {
	n.mu.Lock()
	if r, ok := n.peers[m.ID]; ok || n.closed {
		n.mu.Unlock()
		return r
	}

	ctx, cancel := context.WithTimeout(n.ctx, n.timeout)
	r := &remote{
		session: peer.NewSession(m.ID, m.Name, n, n.logger),
		cancel:  cancel,
	}
	n.peers[m.ID] = r
	n.mu.Unlock()

	neg, err := n.transport.Negotiate(ctx, peer.Request{
		LocalID:   n.self.ID,
		PeerID:    m.ID,
		Initiator: initiator,
		SendSignal: func(sig peer.Signal) error {
			return n.client.SendSignal(m.ID, sig)
		},
	})
	if err != nil {
		n.logger.Warn("peer negotiation failed", "peer", m.Name, "error", err)
		r.session.Close()
		return nil
	}

	n.mu.Lock()
	r.negotiation = neg
	n.mu.Unlock()

	select {
	case <-r.session.Done():
		neg.Close()
		return nil
	default:
	}

	n.onEvent(Event{Kind: EventPeerJoined, Peer: info(r.session)})
	n.wg.Add(1)
	go n.awaitLink(ctx, r, neg)
	return r
}

func (n *Node) awaitLink(ctx context.Context, r *remote, neg peer.Negotiation) {
	defer n.wg.Done()

	select {
	case link, ok := <-neg.Link():
		if !ok {
			r.session.Close()
			return
		}
		if err := r.session.Attach(link); err != nil {
			link.Close()
			return
		}
		n.logger.Info("peer linked", "peer", r.session.Name)
		n.onEvent(Event{Kind: EventPeerLinked, Peer: info(r.session)})

	case <-ctx.Done():
		if r.session.State() == peer.Negotiating {
			n.logger.Warn("peer negotiation timed out", "peer", r.session.Name)
		}
		r.session.Close()

	case <-r.session.Done():
	}
}

func (n *Node) signal(sig signaling.Signal) {
	var payload peer.Signal
	if err := json.Unmarshal(sig.Signal, &payload); err != nil {
		n.logger.Warn("dropping malformed signal", "from", sig.From, "error", err)
		return
	}

	n.mu.Lock()
	r := n.peers[sig.From]
	n.mu.Unlock()
	if r == nil {
		// First contact from a session we have not been told about.
		r = n.startPeer(signaling.Member{ID: sig.From, Name: sig.From}, false)
		if r == nil {
			return
		}
	}

	n.mu.Lock()
	neg := r.negotiation
	n.mu.Unlock()
	if neg == nil {
		return
	}
	if err := neg.HandleSignal(payload); err != nil {
		n.logger.Warn("signal rejected", "peer", r.session.Name, "type", payload.Type, "error", err)
	}
}

func (n *Node) peerLeft(left signaling.UserLeft) {
	n.mu.Lock()
	r := n.peers[left.PeerID]
	n.mu.Unlock()
	if r == nil {
		return
	}
	n.logger.Info("peer left", "peer", r.session.Name)
	r.session.Close()
}

// HandleFrame routes a peer frame to chat or the transfer manager.
func (n *Node) HandleFrame(s *peer.Session, msg protocol.Message) {
	if msg.Type != protocol.TypeChat {
		n.transfers.HandleFrame(s.ID, s, msg)
		return
	}
	var frame protocol.Chat
	if err := msg.DecodePayload(&frame); err != nil {
		n.logger.Warn("dropping malformed chat", "peer", s.Name, "error", err)
		return
	}
	n.chat.Receive(s.ID, s.Name, frame)
}

// PeerClosed forgets a closed session and aborts its transfers.
func (n *Node) PeerClosed(s *peer.Session) {
	var neg peer.Negotiation
	n.mu.Lock()
	r := n.peers[s.ID]
	if r != nil && r.session == s {
		delete(n.peers, s.ID)
		neg = r.negotiation
	} else {
		r = nil
	}
	n.mu.Unlock()

	n.transfers.PeerClosed(s.ID)
	if r == nil {
		return
	}
	if neg != nil {
		neg.Close()
	}
	r.cancel()
	n.onEvent(Event{Kind: EventPeerLeft, Peer: info(s)})
}

func (n *Node) closePeers() {
	n.mu.Lock()
	sessions := make([]*peer.Session, 0, len(n.peers))
	for _, r := range n.peers {
		sessions = append(sessions, r.session)
	}
	n.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (n *Node) linkedPeers() []chat.Peer {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]chat.Peer, 0, len(n.peers))
	for _, r := range n.peers {
		if r.session.State() == peer.Linked {
			out = append(out, r.session)
		}
	}
	return out
}

func (n *Node) lookup(name string) (*remote, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range n.peers {
		if strings.EqualFold(r.session.Name, name) || r.session.ID == name {
			if r.session.State() != peer.Linked {
				return nil, fmt.Errorf("%s: %w", name, peer.ErrNotLinked)
			}
			return r, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrUnknownPeer)
}

func (n *Node) transferEvent(ev transfer.Event) {
	n.mu.Lock()
	p := PeerInfo{ID: ev.PeerID, Name: ev.PeerID}
	if r, ok := n.peers[ev.PeerID]; ok {
		p = info(r.session)
	}
	n.mu.Unlock()
	n.onEvent(Event{Kind: EventTransfer, Peer: p, Transfer: ev})
}

func info(s *peer.Session) PeerInfo {
	return PeerInfo{ID: s.ID, Name: s.Name, State: s.State()}
}

var _ peer.Handler = (*Node)(nil)
