package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Handler routes incoming relay messages to typed channels. Every channel is
// closed when the connection ends.
type Handler struct {
	client        *Client
	logger        *slog.Logger
	NameAssigned  chan Member
	RoomCreated   chan string
	UsersInRoom   chan RoomMembers
	NewUserJoined chan NewUserJoined
	UserLeft      chan UserLeft
	Signal        chan Signal
	Error         chan *ServerError
	closeOnce     sync.Once
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:        client,
		logger:        client.logger,
		NameAssigned:  make(chan Member, 1),
		RoomCreated:   make(chan string, 1),
		UsersInRoom:   make(chan RoomMembers, 1),
		NewUserJoined: make(chan NewUserJoined, 16),
		UserLeft:      make(chan UserLeft, 16),
		Signal:        make(chan Signal, 64),
		Error:         make(chan *ServerError, 4),
	}
}

// Start begins listening to incoming messages and routing them. It returns
// when the connection ends.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case MessageTypeUserNameAssigned:
			var m Member
			if h.decode(msg, &m) {
				h.NameAssigned <- m
			}

		case MessageTypeRoomCreated:
			h.RoomCreated <- msg.RoomID

		case MessageTypeUsersInRoom:
			var members []Member
			if h.decode(msg, &members) {
				h.UsersInRoom <- RoomMembers{RoomID: msg.RoomID, Members: members}
			}

		case MessageTypeNewUserJoined:
			var m Member
			if h.decode(msg, &m) {
				h.NewUserJoined <- NewUserJoined{RoomID: msg.RoomID, Member: m}
			}

		case MessageTypeUserLeft:
			var left UserLeft
			if h.decode(msg, &left) {
				h.UserLeft <- left
			}

		case MessageTypeSignal:
			var sig Signal
			if h.decode(msg, &sig) {
				h.Signal <- sig
			}

		case MessageTypeError:
			errPayload := &ServerError{Message: "unknown error from relay"}
			h.decode(msg, errPayload)
			h.Error <- errPayload

		default:
			h.logger.Debug("ignoring relay message", "type", msg.Type)
		}
	}
}

func (h *Handler) decode(msg *Message, v any) bool {
	if len(msg.Payload) == 0 {
		h.logger.Debug("relay message without payload", "type", msg.Type)
		return false
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		h.logger.Debug("failed to parse relay payload", "type", msg.Type, "error", err)
		return false
	}
	return true
}

func (h *Handler) close() {
	h.closeOnce.Do(func() {
		close(h.NameAssigned)
		close(h.RoomCreated)
		close(h.UsersInRoom)
		close(h.NewUserJoined)
		close(h.UserLeft)
		close(h.Signal)
		close(h.Error)
	})
}
