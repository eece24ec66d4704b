package server

import (
	"encoding/json"
	"fmt"

	"whiteboard/internal/board"
)

// Client-to-server event names.
const (
	EventCreateRoom   = "create_room"
	EventCheckRoom    = "check_room"
	EventJoinRoom     = "join_room"
	EventJoinedRoom   = "joined_room"
	EventDraw         = "draw"
	EventUndo         = "undo"
	EventDeleteStroke = "delete_stroke"
	EventMouseMove    = "mouse_move"
	EventSendMsg      = "send_msg"
	EventSendReaction = "send_reaction"
	EventLeaveRoom    = "leave_room"
)

// Server-to-client event names.
const (
	EventCreated          = "created"
	EventRoomExists       = "room_exists"
	EventJoined           = "joined"
	EventRoom             = "room"
	EventYourMove         = "your_move"
	EventUserDraw         = "user_draw"
	EventUserUndo         = "user_undo"
	EventStrokeDeleted    = "stroke_deleted"
	EventMouseMoved       = "mouse_moved"
	EventNewUser          = "new_user"
	EventUserDisconnected = "user_disconnected"
	EventNewMsg           = "new_msg"
	EventReactionReceived = "reaction_received"
)

// Envelope is the wire frame for every protocol event.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope for event type t.
func NewEnvelope(t string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// JoinRoomPayload asks to join an existing room.
type JoinRoomPayload struct {
	RoomID string     `json:"roomId"`
	User   board.User `json:"user"`
}

// CheckRoomPayload asks whether a room id is joinable.
type CheckRoomPayload struct {
	RoomID string `json:"roomId"`
}

// RoomExistsPayload answers a check_room request.
type RoomExistsPayload struct {
	Exists bool `json:"exists"`
}

// CreatedPayload carries the id of a freshly created room along with the
// server-assigned connection id of the creator.
type CreatedPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// JoinedPayload acknowledges a join attempt. Failed is set when the room
// was at capacity, in which case RoomID is empty. UserID is the
// server-assigned connection id, which keys the joiner's bucket in
// subsequent room snapshots.
type JoinedPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
	Failed bool   `json:"failed,omitempty"`
}

// RoomPayload is the full snapshot sent in response to joined_room.
// UsersMoves and Users are JSON-encoded strings so clients can parse
// them independently of the envelope.
type RoomPayload struct {
	ID         string `json:"id"`
	UsersMoves string `json:"usersMoves"`
	Users      string `json:"users"`
	Drawed     string `json:"drawed"`
}

// UserDrawPayload broadcasts a peer's accepted move.
type UserDrawPayload struct {
	Move   board.Move `json:"move"`
	UserID string     `json:"userId"`
}

// UserRefPayload names a connection in undo/disconnect broadcasts.
type UserRefPayload struct {
	UserID string `json:"userId"`
}

// StrokeDeletedPayload names the removed move.
type StrokeDeletedPayload struct {
	MoveID string `json:"moveId"`
}

// DeleteStrokePayload requests removal of a move by id.
type DeleteStrokePayload struct {
	MoveID string `json:"moveId"`
}

// MouseMovePayload reports a cursor position.
type MouseMovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MouseMovedPayload fans a cursor position out to peers.
type MouseMovedPayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	UserID string  `json:"userId"`
}

// NewUserPayload announces a user's first connection in a room.
type NewUserPayload struct {
	UserID string     `json:"userId"`
	User   board.User `json:"user"`
}

// MsgPayload is a chat message from a client.
type MsgPayload struct {
	Msg string `json:"msg"`
}

// NewMsgPayload fans a chat message out to the room.
type NewMsgPayload struct {
	UserID string `json:"userId"`
	Msg    string `json:"msg"`
}

// Reaction is an ephemeral emoji reaction anchored to a canvas position.
type Reaction struct {
	ID    string `json:"id"`
	Emoji string `json:"emoji"`
	User  struct {
		Name  string `json:"name"`
		Image string `json:"image,omitempty"`
	} `json:"user"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"`
}
