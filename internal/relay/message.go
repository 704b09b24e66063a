package relay

import "encoding/json"

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	RoomID  string          `json:"room_id,omitempty"`

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client `json:"-"`
}

// Control channel event names.
const (
	TypeUserNameAssigned = "userNameAssigned"
	TypeCreateRoom       = "createRoom"
	TypeRoomCreated      = "roomCreated"
	TypeJoinRoom         = "joinRoom"
	TypeUsersInRoom      = "usersInRoom"
	TypeNewUserJoined    = "newUserJoined"
	TypeLeaveRoom        = "leaveRoom"
	TypeUserLeft         = "userLeft"
	TypeSignal           = "signal"
	TypeError            = "error"
)

// Error codes carried in ErrorPayload.Code.
const (
	CodeRoomFull        = "room_full"
	CodeRoomNotFound    = "room_not_found"
	CodeInvalidCapacity = "invalid_capacity"
	CodeNameExhausted   = "name_exhausted"
	CodeBadRequest      = "bad_request"
)

// CreateRoomPayload is sent with createRoom.
type CreateRoomPayload struct {
	Capacity int `json:"capacity"`
}

// UserLeftPayload announces a member leaving a room.
type UserLeftPayload struct {
	PeerID string `json:"peerId"`
	RoomID string `json:"roomId"`
}

// SignalRequest is the client's signal message: an opaque payload for targetId.
type SignalRequest struct {
	TargetID string          `json:"targetId"`
	Signal   json.RawMessage `json:"signal"`
}

// SignalDelivery is what the target receives.
type SignalDelivery struct {
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

// ErrorPayload represents relay-level failures.
type ErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func newMessage(msgType string, payload any) *Message {
	msg := &Message{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic(err)
		}
		msg.Payload = data
	}
	return msg
}

func errorMessage(code string, err error) *Message {
	return newMessage(TypeError, ErrorPayload{Error: err.Error(), Code: code})
}
