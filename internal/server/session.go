package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"whiteboard/internal/board"
)

// sessionState tracks where a connection is in its protocol lifecycle.
type sessionState int

const (
	stateConnected sessionState = iota
	stateInRoom
)

// session is one live websocket connection. Its fields other than id and
// conn are only touched from the connection's read goroutine.
type session struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex

	state     sessionState
	roomID    string
	user      board.User
	firstConn bool
}

func (c *session) send(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	sess := &session{id: uuid.NewString(), conn: conn}
	s.logger.Info("ws connected", slog.String("conn", sess.id))

	defer func() {
		if sess.state == stateInRoom {
			s.leaveRoom(sess)
		}
		conn.Close()
		s.logger.Info("ws disconnected", slog.String("conn", sess.id))
	}()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		s.dispatch(sess, env)
	}
}

// dispatch routes one inbound event through the per-connection state
// machine. Events arriving in the wrong state are dropped; there is no
// legal transition for them.
func (s *Server) dispatch(sess *session, env Envelope) {
	switch sess.state {
	case stateConnected:
		switch env.Type {
		case EventCreateRoom:
			s.handleCreateRoom(sess, env.Payload)
		case EventJoinRoom:
			s.handleJoinRoom(sess, env.Payload)
		case EventCheckRoom:
			s.handleCheckRoom(sess, env.Payload)
		}
	case stateInRoom:
		switch env.Type {
		case EventJoinedRoom:
			s.handleJoinedRoom(sess)
		case EventDraw:
			s.handleDraw(sess, env.Payload)
		case EventUndo:
			s.handleUndo(sess)
		case EventDeleteStroke:
			s.handleDeleteStroke(sess, env.Payload)
		case EventMouseMove:
			s.handleMouseMove(sess, env.Payload)
		case EventSendMsg:
			s.handleSendMsg(sess, env.Payload)
		case EventSendReaction:
			s.handleSendReaction(sess, env.Payload)
		case EventLeaveRoom:
			s.leaveRoom(sess)
		}
	}
}

func (s *Server) handleCreateRoom(sess *session, payload json.RawMessage) {
	var user board.User
	if err := json.Unmarshal(payload, &user); err != nil {
		s.logger.Error("decode create_room", slog.String("error", err.Error()))
		return
	}

	roomID := s.rooms.CreateRoom(sess.id, user)
	sess.firstConn = s.presence.AddConnection(roomID, user.ID, sess.id)
	sess.state = stateInRoom
	sess.roomID = roomID
	sess.user = user
	s.register(roomID, sess)

	s.emit(sess, EventCreated, CreatedPayload{RoomID: roomID, UserID: sess.id})
}

func (s *Server) handleCheckRoom(sess *session, payload json.RawMessage) {
	var req CheckRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	// Rooms materialize lazily on join, so any id is joinable.
	s.emit(sess, EventRoomExists, RoomExistsPayload{Exists: true})
}

func (s *Server) handleJoinRoom(sess *session, payload json.RawMessage) {
	var req JoinRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Error("decode join_room", slog.String("error", err.Error()))
		return
	}

	if err := s.rooms.JoinRoom(req.RoomID, sess.id, req.User); err != nil {
		s.emit(sess, EventJoined, JoinedPayload{RoomID: "", Failed: true})
		return
	}

	sess.firstConn = s.presence.AddConnection(req.RoomID, req.User.ID, sess.id)
	sess.state = stateInRoom
	sess.roomID = req.RoomID
	sess.user = req.User
	s.register(req.RoomID, sess)

	s.emit(sess, EventJoined, JoinedPayload{RoomID: req.RoomID, UserID: sess.id})
}

func (s *Server) handleJoinedRoom(sess *session) {
	snapshot, err := s.rooms.Snapshot(sess.roomID)
	if err != nil {
		s.logger.Error("room snapshot", slog.String("room", sess.roomID), slog.String("error", err.Error()))
		return
	}
	s.emit(sess, EventRoom, snapshot)

	// Peers only learn about a logical user once, however many tabs the
	// user opens and however many times this connection resyncs.
	if sess.firstConn {
		s.broadcast(sess.roomID, sess, EventNewUser, NewUserPayload{UserID: sess.id, User: sess.user})
		sess.firstConn = false
	}
}

func (s *Server) handleDraw(sess *session, payload json.RawMessage) {
	var move board.Move
	if err := json.Unmarshal(payload, &move); err != nil {
		s.logger.Error("decode draw", slog.String("error", err.Error()))
		return
	}
	if !move.Options.Shape.Valid() {
		s.logger.Warn("rejected draw", slog.String("conn", sess.id), slog.String("shape", string(move.Options.Shape)))
		return
	}

	// The server is the single source of truth for identity and order.
	move.ID = uuid.NewString()
	move.Timestamp = time.Now().UnixMilli()

	s.rooms.AddMove(sess.roomID, sess.id, move)

	s.emit(sess, EventYourMove, move)
	s.broadcast(sess.roomID, sess, EventUserDraw, UserDrawPayload{Move: move, UserID: sess.id})
}

func (s *Server) handleUndo(sess *session) {
	if _, ok := s.rooms.UndoLastMove(sess.roomID, sess.id); !ok {
		return
	}
	s.broadcast(sess.roomID, sess, EventUserUndo, UserRefPayload{UserID: sess.id})
}

func (s *Server) handleDeleteStroke(sess *session, payload json.RawMessage) {
	var req DeleteStrokePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Error("decode delete_stroke", slog.String("error", err.Error()))
		return
	}

	s.rooms.DeleteMoveByID(sess.roomID, req.MoveID)

	// Deletion has no local-optimistic variant: everyone, including the
	// requester, applies the same broadcast.
	s.broadcast(sess.roomID, nil, EventStrokeDeleted, StrokeDeletedPayload{MoveID: req.MoveID})
}

func (s *Server) handleMouseMove(sess *session, payload json.RawMessage) {
	var req MouseMovePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	s.broadcast(sess.roomID, sess, EventMouseMoved, MouseMovedPayload{X: req.X, Y: req.Y, UserID: sess.id})
}

func (s *Server) handleSendMsg(sess *session, payload json.RawMessage) {
	var req MsgPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	s.broadcast(sess.roomID, nil, EventNewMsg, NewMsgPayload{UserID: sess.id, Msg: req.Msg})
}

func (s *Server) handleSendReaction(sess *session, payload json.RawMessage) {
	var reaction Reaction
	if err := json.Unmarshal(payload, &reaction); err != nil {
		return
	}
	s.broadcast(sess.roomID, sess, EventReactionReceived, reaction)
}

// leaveRoom tears down a session's room membership: its bucket is folded
// into drawed, and peers hear user_disconnected only when this was the
// user's last connection. The departure broadcast carries the connection
// id from the user's new_user announcement, which is the only id peers
// hold the user under; the id of whichever tab happened to close last
// would mean nothing to them.
func (s *Server) leaveRoom(sess *session) {
	roomID := sess.roomID

	s.rooms.LeaveRoom(roomID, sess.id)
	announced, last := s.presence.RemoveConnection(roomID, sess.user.ID, sess.id)
	s.unregister(roomID, sess)

	if last {
		s.broadcast(roomID, nil, EventUserDisconnected, UserRefPayload{UserID: announced})
	}

	sess.state = stateConnected
	sess.roomID = ""
	sess.user = board.User{}
	sess.firstConn = false
}
