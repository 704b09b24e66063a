package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often the hub sweeps never-joined rooms.
const DefaultSweepInterval = time.Minute

// Hub is the central brain of the signaling server.
// It owns the connected clients and routes every control message through a
// single goroutine. Room and name state live in the Registry and the
// IdentityAllocator, which are safe to share.
type Hub struct {
	Registry *Registry
	Names    IdentityAllocator

	logger        *slog.Logger
	sweepInterval time.Duration

	// clients maps session IDs to connected clients. Only Run touches it.
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan *Message
	done       chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub(registry *Registry, names IdentityAllocator, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Registry:      registry,
		Names:         names,
		logger:        logger,
		sweepInterval: DefaultSweepInterval,
		clients:       make(map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		inbound:       make(chan *Message),
		done:          make(chan struct{}),
	}
}

// SetSweepInterval changes the never-joined room sweep period. Call before Run.
func (h *Hub) SetSweepInterval(d time.Duration) {
	if d > 0 {
		h.sweepInterval = d
	}
}

// Register hands a client to the hub. It reports false if the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister tells the hub the client's connection is gone.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatch queues an inbound message. It reports false if the hub has stopped.
func (h *Hub) Dispatch(msg *Message) bool {
	select {
	case h.inbound <- msg:
		return true
	case <-h.done:
		return false
	}
}

// Run starts the hub's main processing loop. It returns when ctx is done,
// after closing every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.sweepInterval)
	defer func() {
		ticker.Stop()
		close(h.done)
		for _, c := range h.clients {
			h.drop(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client.ID] = client
			h.logger.Info("client registered", logSession(client), "remote", client.Conn.RemoteAddr().String())
			h.deliver(client, newMessage(TypeUserNameAssigned, client.Member()))

		case client := <-h.unregister:
			if _, ok := h.clients[client.ID]; !ok {
				continue
			}
			h.logger.Info("client unregistered", logSession(client))
			h.disconnect(client)

		case msg := <-h.inbound:
			if _, ok := h.clients[msg.client.ID]; !ok {
				continue
			}
			h.handle(msg)

		case now := <-ticker.C:
			if removed := h.Registry.Sweep(now); removed > 0 {
				h.logger.Info("swept idle rooms", "count", removed)
			}
		}
	}
}

// handle runs the signaling logic for one inbound message.
func (h *Hub) handle(msg *Message) {
	c := msg.client
	h.logger.Debug("message received", "type", msg.Type, logSession(c))

	switch msg.Type {
	case TypeCreateRoom:
		var req CreateRoomPayload
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			h.deliver(c, errorMessage(CodeBadRequest, errors.New("invalid createRoom payload")))
			return
		}
		roomID, err := h.Registry.CreateRoom(req.Capacity)
		if err != nil {
			h.deliver(c, errorMessage(CodeInvalidCapacity, err))
			return
		}
		h.logger.Info("room created", "room", roomID, "capacity", req.Capacity, logSession(c))
		h.deliver(c, &Message{Type: TypeRoomCreated, RoomID: roomID})

	case TypeJoinRoom:
		if msg.RoomID == "" {
			h.deliver(c, errorMessage(CodeBadRequest, errors.New("room id is required")))
			return
		}
		result, err := h.Registry.Join(c.Member(), msg.RoomID)
		switch {
		case errors.Is(err, ErrRoomFull):
			h.logger.Info("room join failed: room is full", "room", msg.RoomID, logSession(c))
			h.deliver(c, errorMessage(CodeRoomFull, err))
			return
		case errors.Is(err, ErrRoomNotFound):
			h.logger.Info("room join failed: room not found", "room", msg.RoomID, logSession(c))
			h.deliver(c, errorMessage(CodeRoomNotFound, err))
			return
		case err != nil:
			h.deliver(c, errorMessage(CodeBadRequest, err))
			return
		}

		if result.Left != nil {
			h.announceDeparture(*result.Left)
		}

		h.logger.Info("client joined room", "room", result.RoomID, "members", len(result.Members), logSession(c))
		joined := newMessage(TypeUsersInRoom, result.Members)
		joined.RoomID = result.RoomID
		h.deliver(c, joined)

		for _, m := range result.Notify {
			if peer, ok := h.clients[m.ID]; ok {
				notice := newMessage(TypeNewUserJoined, c.Member())
				notice.RoomID = result.RoomID
				h.deliver(peer, notice)
			}
		}

	case TypeLeaveRoom:
		roomID := msg.RoomID
		if roomID == "" {
			roomID, _ = h.Registry.RoomOf(c.ID)
		}
		if d, ok := h.Registry.Leave(c.ID, roomID); ok {
			h.logger.Info("client left room", "room", d.RoomID, logSession(c))
			h.announceDeparture(d)
		}

	case TypeSignal:
		var req SignalRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.TargetID == "" {
			h.deliver(c, errorMessage(CodeBadRequest, errors.New("invalid signal payload")))
			return
		}
		h.relay(c, req.TargetID, req.Signal)

	default:
		h.logger.Warn("unknown message type", "type", msg.Type, logSession(c))
	}
}

// relay forwards an opaque payload to the target session. Payloads for
// sessions that are not connected are dropped; the sender's negotiation
// times out on its own.
func (h *Hub) relay(from *Client, targetID string, payload json.RawMessage) {
	target, ok := h.clients[targetID]
	if !ok {
		h.logger.Debug("dropping signal for unknown target", "target", targetID, logSession(from))
		return
	}
	h.logger.Debug("relaying signal", "target", targetID, logSession(from))
	h.deliver(target, newMessage(TypeSignal, SignalDelivery{From: from.ID, Signal: payload}))
}

// announceDeparture sends userLeft to the members remaining in the room.
func (h *Hub) announceDeparture(d Departure) {
	for _, m := range d.Remaining {
		if peer, ok := h.clients[m.ID]; ok {
			h.deliver(peer, newMessage(TypeUserLeft, UserLeftPayload{PeerID: d.Member.ID, RoomID: d.RoomID}))
		}
	}
}

// deliver queues a message without blocking the hub. A client that cannot
// keep up is disconnected.
func (h *Hub) deliver(c *Client, msg *Message) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	select {
	case c.Send <- msg:
	default:
		h.logger.Warn("send buffer full, disconnecting", logSession(c))
		h.disconnect(c)
	}
}

// disconnect removes the client from every room, releases its name and
// closes its send channel.
func (h *Hub) disconnect(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	departures := h.Registry.RemoveMember(c.ID)
	h.drop(c)
	for _, d := range departures {
		h.logger.Info("peer left room", "room", d.RoomID, logSession(c))
		h.announceDeparture(d)
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	h.Names.Release(c.Name)
	close(c.Send)
}
