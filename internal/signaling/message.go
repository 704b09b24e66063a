package signaling

import "encoding/json"

// Message represents all WebSocket messages between a peer and the relay.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	RoomID  string          `json:"room_id,omitempty"`
}

// Message type constants.
const (
	MessageTypeCreateRoom = "createRoom"
	MessageTypeJoinRoom   = "joinRoom"
	MessageTypeLeaveRoom  = "leaveRoom"
	MessageTypeSignal     = "signal"

	MessageTypeUserNameAssigned = "userNameAssigned"
	MessageTypeRoomCreated      = "roomCreated"
	MessageTypeUsersInRoom      = "usersInRoom"
	MessageTypeNewUserJoined    = "newUserJoined"
	MessageTypeUserLeft         = "userLeft"
	MessageTypeError            = "error"
)

// Member is a session as the relay describes it.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomMembers is the member list delivered after a successful join.
type RoomMembers struct {
	RoomID  string
	Members []Member
}

// NewUserJoined announces a member that joined our room.
type NewUserJoined struct {
	RoomID string
	Member Member
}

// UserLeft announces a member leaving a room.
type UserLeft struct {
	PeerID string `json:"peerId"`
	RoomID string `json:"roomId"`
}

// Signal is an opaque negotiation payload relayed from another session.
type Signal struct {
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

type signalRequest struct {
	TargetID string `json:"targetId"`
	Signal   any    `json:"signal"`
}

type createRoomRequest struct {
	Capacity int `json:"capacity"`
}

// ServerError represents error messages from the relay.
type ServerError struct {
	Message string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// Relay error codes.
const (
	CodeRoomFull        = "room_full"
	CodeRoomNotFound    = "room_not_found"
	CodeInvalidCapacity = "invalid_capacity"
	CodeNameExhausted   = "name_exhausted"
	CodeBadRequest      = "bad_request"
)

func (e *ServerError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Message + " (" + e.Code + ")"
}
