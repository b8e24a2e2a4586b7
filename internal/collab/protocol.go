package collab

import (
	"encoding/json"
	"time"
)

// Message is the envelope for every frame in both directions. Payload is
// one of the closed set of payload structs below, selected by Type.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> server message types. A join is carried by the connection
// handshake itself (URL + token), not a frame.
const (
	TypeLeave       = "leave"
	TypeSlideChange = "slide_change"
	TypeEdit        = "edit"
	TypePing        = "ping"
)

// Server -> client message types.
const (
	TypeJoined       = "joined"
	TypeUserJoined   = "user_joined"
	TypeUserLeft     = "user_left"
	TypeSlideChanged = "slide_changed"
	TypeEditEvent    = "edit"
	TypeRoleUpdated  = "role_updated"
	TypeError        = "error"
	TypePong         = "pong"
)

type SlideChangePayload struct {
	SlideNumber int `json:"slideNumber"`
}

type JoinedPayload struct {
	ConnectionID   string       `json:"connectionId"`
	PresentationID string       `json:"presentationId"`
	Role           Role         `json:"role"`
	ActiveUsers    []ActiveUser `json:"activeUsers"`
}

type UserJoinedPayload struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

type UserLeftPayload struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

type SlideChangedPayload struct {
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	SlideNumber int       `json:"slideNumber"`
	Timestamp   time.Time `json:"timestamp"`
}

type EditPayload struct {
	UserID    string          `json:"userId"`
	Username  string          `json:"username"`
	EditData  json.RawMessage `json:"editData"`
	Timestamp time.Time       `json:"timestamp"`
}

type RoleUpdatedPayload struct {
	Role Role `json:"role"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func newMessage(msgType string, payload any) *Message {
	data, err := json.Marshal(payload)
	if err != nil {
		return &Message{Type: msgType}
	}
	return &Message{Type: msgType, Payload: data}
}
